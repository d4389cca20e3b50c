package auth

import (
	"fmt"
	"pinger/domain"
	"pinger/errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// IdentityRequest mirrors domain.Identity with the rules a well-formed claim must follow.
type IdentityRequest struct {
	Username string `validate:"required,displayname"`
	UniqueID string `validate:"required,max=128,identitykey"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("displayname", isDisplayName)
	_ = v.RegisterValidation("identitykey", isIdentityKey)
	return v
}

// ValidateIdentity rejects empty or malformed identities with ErrInvalidIdentity.
func ValidateIdentity(identity domain.Identity) error {
	req := IdentityRequest{Username: identity.Username, UniqueID: identity.UniqueID}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidIdentity, err)
	}
	return nil
}

// ValidateTarget applies the same rules to a ping recipient, reported as ErrInvalidTarget.
func ValidateTarget(identity domain.Identity) error {
	if err := ValidateIdentity(identity); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidTarget, err)
	}
	return nil
}

// isDisplayName accepts up to 64 printable runes, not blank.
func isDisplayName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.TrimSpace(s) == "" || utf8.RuneCountInString(s) > 64 {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// isIdentityKey accepts printable ASCII without spaces or ':' (the queue key separator).
func isIdentityKey(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if r <= ' ' || r > '~' || r == ':' {
			return false
		}
	}
	return true
}
