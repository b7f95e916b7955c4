// Package validate holds the form rules shared by the sign-in, registration,
// forgot-password and profile pages.
package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/isdelr/vs-recorder/internal/models"
)

const (
	UsernameMin = 3
	UsernameMax = 30
	PasswordMin = 8
	PasswordMax = 128
	EmailMax    = 254
)

// FormField is the key used for errors that belong to the whole form.
const FormField = "form"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// UsernameRules are the rules for a new or edited username.
func UsernameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Username is required"),
		validation.Length(UsernameMin, UsernameMax).Error("Username must be between 3 and 30 characters"),
		validation.Match(usernamePattern).Error("Username may only contain letters, numbers, underscores and hyphens"),
	}
}

// EmailRules are the rules for an email address.
func EmailRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Email is required"),
		validation.Length(0, EmailMax).Error("Email is too long"),
		is.Email.Error("Please enter a valid email address"),
	}
}

// PasswordRules are the rules for a new password.
func PasswordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Password is required"),
		validation.Length(PasswordMin, PasswordMax).Error("Password must be between 8 and 128 characters"),
		validation.By(letterAndDigit),
	}
}

func letterAndDigit(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return errors.New("Password must contain at least one letter and one number")
	}
	return nil
}

func equals(other, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != other {
			return errors.New(message)
		}
		return nil
	}
}

// Username validates a single username value.
func Username(s string) error { return validation.Validate(s, UsernameRules()...) }

// Email validates a single email value.
func Email(s string) error { return validation.Validate(strings.TrimSpace(s), EmailRules()...) }

// Password validates a single password value.
func Password(s string) error { return validation.Validate(s, PasswordRules()...) }

// LoginForm is the sign-in form. Only presence is checked; the server decides
// whether the credentials are right.
type LoginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (f LoginForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, validation.Required.Error("Username is required")),
		validation.Field(&f.Password, validation.Required.Error("Password is required")),
	)
}

// Credentials returns the wire payload for the form.
func (f LoginForm) Credentials() models.Credentials {
	return models.Credentials{Username: strings.TrimSpace(f.Username), Password: f.Password}
}

// RegisterForm is the sign-up form.
type RegisterForm struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (f RegisterForm) Validate() error {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, UsernameRules()...),
		validation.Field(&f.Email, EmailRules()...),
		validation.Field(&f.Password, PasswordRules()...),
		validation.Field(&f.ConfirmPassword,
			validation.Required.Error("Please confirm your password"),
			validation.By(equals(f.Password, "Passwords do not match")),
		),
	)
}

// Registration returns the wire payload, without the confirmation field.
func (f RegisterForm) Registration() models.Registration {
	return models.Registration{
		Username: strings.TrimSpace(f.Username),
		Email:    strings.TrimSpace(f.Email),
		Password: f.Password,
	}
}

// ForgotPasswordForm is the password recovery form.
type ForgotPasswordForm struct {
	Email string `json:"email"`
}

func (f ForgotPasswordForm) Validate() error {
	f.Email = strings.TrimSpace(f.Email)
	return validation.ValidateStruct(&f, validation.Field(&f.Email, EmailRules()...))
}

// ProfileForm edits the signed-in user's profile.
type ProfileForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (f ProfileForm) Validate() error {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, UsernameRules()...),
		validation.Field(&f.Email, EmailRules()...),
	)
}

// Update returns the fields of the form that differ from current.
func (f ProfileForm) Update(current models.UserProfile) models.ProfileUpdate {
	var u models.ProfileUpdate
	if name := strings.TrimSpace(f.Username); name != current.Username {
		u.Username = &name
	}
	if email := strings.TrimSpace(f.Email); email != current.Email {
		u.Email = &email
	}
	return u
}

// FieldErrors flattens a validation error into field -> message. Errors that
// are not per-field are reported under FormField. A nil error yields nil.
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	out[FormField] = err.Error()
	return out
}

// fieldErrorer is implemented by API errors that carry a structured
// field map.
type fieldErrorer interface {
	FieldErrors() map[string]string
}

// FromAPIError maps a failed API call onto form fields using the structured
// field map the API returned. Anything not attributable to a field lands
// under FormField.
func FromAPIError(err error) map[string]string {
	if err == nil {
		return nil
	}
	out := map[string]string{}
	var fe fieldErrorer
	if errors.As(err, &fe) {
		for field, msg := range fe.FieldErrors() {
			out[field] = msg
		}
	}
	if len(out) == 0 {
		out[FormField] = err.Error()
	}
	return out
}
