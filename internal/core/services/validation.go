package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"pulse/internal/core/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DefaultMaxContentLength bounds message content in runes.
const DefaultMaxContentLength = 5000

// validateRequest checks struct tags and maps failures to domain.ErrValidation.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %s", domain.ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

// normalizeMessage applies defaults and validates an outbound message.
func normalizeMessage(p *domain.SendRequest, maxLen int) error {
	if p.Kind == "" {
		p.Kind = domain.KindText
	}
	if err := validateRequest(p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Content) == "" && p.Attachment == nil {
		return fmt.Errorf("%w: content or attachment required", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(p.Content); n > maxLen {
		return fmt.Errorf("%w: content is %d characters, limit is %d", domain.ErrValidation, n, maxLen)
	}
	return nil
}
