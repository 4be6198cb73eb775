package service

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

// ErrInvalidInput matches every *ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError reports a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrInvalidInput) hold for validation errors.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

const (
	minNameLen = 2
	maxNameLen = 100
)

var (
	nameRe  = regexp.MustCompile(`^[A-Za-z '\-]+$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	angleBrackets = strings.NewReplacer("<", "", ">", "")
)

// Input is a sanitized, validated registration request.
type Input struct {
	Name   string
	Email  string
	Phone  string
	Gender model.Gender
}

// Sanitize strips angle brackets and surrounding whitespace.
func Sanitize(s string) string {
	return strings.TrimSpace(angleBrackets.Replace(s))
}

// NormalizeEmail sanitizes and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(Sanitize(email))
}

// Validate sanitizes and checks a registration request.
func Validate(name, email, phone, gender string) (Input, error) {
	in := Input{
		Name:  Sanitize(name),
		Email: NormalizeEmail(email),
		Phone: Sanitize(phone),
	}
	if err := validateName(in.Name); err != nil {
		return Input{}, err
	}
	if err := validateEmail(in.Email); err != nil {
		return Input{}, err
	}
	g, err := ParseGender(gender)
	if err != nil {
		return Input{}, err
	}
	in.Gender = g
	return in, nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return invalid("name", "Name is required")
	case n < minNameLen:
		return invalid("name", "Name must be at least 2 characters")
	case n > maxNameLen:
		return invalid("name", "Name is too long")
	case !nameRe.MatchString(name):
		return invalid("name", "Name can only contain letters, spaces, hyphens, and apostrophes")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "Email is required")
	}
	if !emailRe.MatchString(email) {
		return invalid("email", "Invalid email format")
	}
	return nil
}

// ParseGender maps free-form input onto a declared category. Empty input
// means undeclared.
func ParseGender(s string) (model.Gender, error) {
	s = Sanitize(s)
	if s == "" {
		return "", nil
	}
	key := genderKey(s)
	for _, g := range model.Genders {
		if genderKey(string(g)) == key {
			return g, nil
		}
	}
	return "", invalid("gender", "Gender must be one of Male, Female, Other, Prefer not to say")
}

func genderKey(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
}
