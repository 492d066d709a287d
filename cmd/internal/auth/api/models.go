package authapi

import "campusmart/cmd/identity"

type registerRequest struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Phone      string `json:"phone"`
	CampusRole string `json:"campusRole"`
	Username   string `json:"username"`
}

// loginRequest accepts either email or identifier (email or username).
type loginRequest struct {
	Email      string `json:"email"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	Message      string              `json:"message"`
	Token        string              `json:"token"`
	RefreshToken string              `json:"refreshToken"`
	User         identity.PublicUser `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type meResponse struct {
	User identity.PublicUser `json:"user"`
}
