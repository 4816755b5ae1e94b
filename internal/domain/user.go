package domain

import (
	"strings"
	"time"
)

// User is the internal identity record bound to one external subject.
type User struct {
	ID              string
	ExternalSubject string
	Name            string
	Email           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return NewValidationError("user_id", "is required")
	}
	if strings.TrimSpace(u.ExternalSubject) == "" {
		return NewValidationError("external_subject", "is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return NewValidationError("email", "is required")
	}
	return nil
}

// NormalizeEmail lower-cases and trims an email so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
