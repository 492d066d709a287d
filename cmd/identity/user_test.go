package identity

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPublic_OmitsCredentials(t *testing.T) {
	t.Parallel()

	u := User{
		ID:           "01HZX",
		Username:     "ada",
		Email:        "ada@uni.edu",
		Role:         RoleUser,
		CampusRole:   CampusRoleStudent,
		PasswordHash: "$argon2id$secret",
	}
	b, err := json.Marshal(u.Public())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "argon2id") || strings.Contains(strings.ToLower(string(b)), "password") {
		t.Fatalf("public payload leaks credentials: %s", b)
	}
	for _, key := range []string{"id", "username", "fullName", "email", "phone", "campusRole", "role", "isVerified", "profileImage"} {
		if !strings.Contains(string(b), `"`+key+`"`) {
			t.Fatalf("payload missing %q: %s", key, b)
		}
	}
}

func TestRoleCapabilities(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{role: RoleUser, cap: CapabilityTrade, want: true},
		{role: RoleUser, cap: CapabilityAdmin, want: false},
		{role: RoleAdmin, cap: CapabilityAdmin, want: true},
		{role: Role("ghost"), cap: CapabilityTrade, want: false},
	}
	for _, tc := range cases {
		if got := tc.role.Can(tc.cap); got != tc.want {
			t.Fatalf("%s.Can(%s)=%v want=%v", tc.role, tc.cap, got, tc.want)
		}
	}

	if ParseRole(" ADMIN ") != RoleAdmin || ParseRole("root") != RoleUser {
		t.Fatalf("ParseRole mismatch")
	}
	if r, ok := ParseCampusRole("Vendor"); !ok || r != CampusRoleVendor {
		t.Fatalf("ParseCampusRole(Vendor)=%v,%v", r, ok)
	}
	if _, ok := ParseCampusRole("alien"); ok {
		t.Fatalf("expected unknown campus role to be rejected")
	}
}
