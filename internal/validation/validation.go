// Package validation checks registration and login payloads.
//
// Rules run in a fixed order and the first failure is reported, so callers
// always receive a single human readable message.
package validation

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	MinPasswordLength     = 8
	MaxPasswordBytes      = 72 // bcrypt ignores anything past this
	MaxUsernameLength     = 80
	MaxEmailLength        = 120
	MaxCompanyNameLength  = 200
	missingLoginFieldsMsg = "Username and password are required"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Registration is the payload accepted by the register endpoint.
type Registration struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
}

// Credentials is the payload accepted by the login endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate returns the first rule violation in the registration payload.
func (r Registration) Validate() error {
	// presence is checked for every field before any format rule
	if err := firstError(
		validation.Validate(r.Username, validation.Required.Error("username is required")),
		validation.Validate(r.Email, validation.Required.Error("email is required")),
		validation.Validate(r.Password, validation.Required.Error("password is required")),
	); err != nil {
		return err
	}

	return firstError(
		validation.Validate(r.Username,
			validation.RuneLength(0, MaxUsernameLength).Error("Username must be 80 characters or less"),
			validation.Match(usernameRegex).Error("Username can only contain letters, numbers, hyphens, and underscores"),
		),
		validation.Validate(r.Email,
			validation.RuneLength(0, MaxEmailLength).Error("Email must be 120 characters or less"),
			validation.Match(emailRegex).Error("Invalid email format"),
		),
		validation.Validate(r.Password,
			validation.RuneLength(MinPasswordLength, 0).Error("Password must be at least 8 characters long"),
			validation.Length(0, MaxPasswordBytes).Error("Password must be 72 bytes or less"),
		),
		validation.Validate(r.CompanyName,
			validation.RuneLength(0, MaxCompanyNameLength).Error("Company name must be 200 characters or less"),
		),
	)
}

// Validate checks that both login fields are present.
func (c Credentials) Validate() error {
	return firstError(
		validation.Validate(c.Username, validation.Required.Error(missingLoginFieldsMsg)),
		validation.Validate(c.Password, validation.Required.Error(missingLoginFieldsMsg)),
	)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
