package session

import "context"

// VerificationMessage is the payload handed to the email sender after registration.
type VerificationMessage struct {
	UserID   string
	Email    string
	FullName string
}

// EmailSender delivers account emails. Delivery itself is an external concern.
type EmailSender interface {
	SendEmailVerification(ctx context.Context, msg VerificationMessage) error
}

// NoopEmailSender drops every message.
type NoopEmailSender struct{}

// SendEmailVerification implements EmailSender.
func (NoopEmailSender) SendEmailVerification(_ context.Context, _ VerificationMessage) error {
	return nil
}
