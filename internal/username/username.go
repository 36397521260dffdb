// Package username normalizes and validates user names accepted by the services.
package username

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the maximum number of characters of a user name.
const MaxLength = 64

var (
	// ErrInvalid is returned when a user name does not satisfy the naming rules.
	ErrInvalid = errors.New("invalid username")

	// ErrReserved is returned when a user name may not be registered.
	ErrReserved = errors.New("reserved username")
)

// Reserver reports whether a user name is reserved.
type Reserver interface {
	IsReserved(name string) bool
}

// Normalize trims surrounding spaces and applies Unicode NFKC normalization, so that visually identical names
// are stored identically.
func Normalize(name string) string {
	return norm.NFKC.String(strings.TrimSpace(name))
}

// Fold returns the case-folded form of name, used for case-insensitive comparisons.
func Fold(name string) string {
	// Casers are stateful and must not be shared between goroutines.
	return cases.Fold().String(Normalize(name))
}

// Validate checks that name is a valid, already normalized, user name.
func Validate(name string) error {
	if name == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalid)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: must be valid UTF-8", ErrInvalid)
	}
	if n := utf8.RuneCountInString(name); n > MaxLength {
		return fmt.Errorf("%w: %d characters, maximum is %d", ErrInvalid, n, MaxLength)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: must not contain whitespace or control characters", ErrInvalid)
		}
	}
	return nil
}

// Prepare normalizes raw and checks that the result can be registered.
// A nil reserver disables the reserved names check.
func Prepare(raw string, reserver Reserver) (string, error) {
	name := Normalize(raw)
	if err := Validate(name); err != nil {
		return "", err
	}
	if reserver != nil && reserver.IsReserved(name) {
		return "", fmt.Errorf("%w: %q", ErrReserved, name)
	}
	return name, nil
}
