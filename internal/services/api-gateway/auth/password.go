package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	// bcrypt only looks at the first 72 bytes.
	maxBcryptInput = 72
)

const specialChars = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"

var commonPasswords = []string{
	"password", "password123", "12345678", "qwertyuiop",
	"admin", "admin123", "letmein", "welcome", "monkey",
	"dragon", "master", "login", "abc123", "password1",
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PasswordViolations lists every rule the password breaks. An empty result
// means the password is acceptable.
func PasswordViolations(pw string) []string {
	var out []string
	n := len([]rune(pw))
	if n < minPasswordLen {
		out = append(out, fmt.Sprintf("must be at least %d characters long", minPasswordLen))
	}
	if n > maxPasswordLen {
		out = append(out, fmt.Sprintf("must be less than %d characters", maxPasswordLen))
	}

	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	if !lower {
		out = append(out, "must contain at least one lowercase letter")
	}
	if !upper {
		out = append(out, "must contain at least one uppercase letter")
	}
	if !digit {
		out = append(out, "must contain at least one number")
	}
	if !special {
		out = append(out, "must contain at least one special character")
	}
	if hasRepeat(pw, 3) {
		out = append(out, "cannot contain repeating characters (e.g., aaa, 111)")
	}
	if hasDigitRun(pw, 3) {
		out = append(out, "cannot contain sequential characters")
	}
	lowered := strings.ToLower(pw)
	for _, c := range commonPasswords {
		if strings.Contains(lowered, c) {
			out = append(out, "cannot contain common words or patterns")
			break
		}
	}
	return out
}

// ValidatePassword returns nil or an error wrapping ErrWeakPassword that
// names the first broken rule.
func ValidatePassword(pw string) error {
	if v := PasswordViolations(pw); len(v) > 0 {
		return fmt.Errorf("%w: password %s", ErrWeakPassword, v[0])
	}
	return nil
}

func ValidEmail(email string) bool { return emailRe.MatchString(email) }

func hasRepeat(s string, n int) bool {
	rs := []rune(s)
	run := 1
	for i := 1; i < len(rs); i++ {
		if rs[i] == rs[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasDigitRun reports ascending digit runs such as 123 or 789.
func hasDigitRun(s string, n int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if isDigit(s[i]) && isDigit(s[i-1]) && s[i] == s[i-1]+1 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > maxBcryptInput {
		// bcrypt refuses longer input; the policy allows up to 128 runes.
		password = password[:maxBcryptInput]
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrWeakPassword
		}
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Compare(hash, password string) bool {
	if len(password) > maxBcryptInput {
		password = password[:maxBcryptInput]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
