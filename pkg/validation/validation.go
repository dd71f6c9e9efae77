package validation

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// dataURLRegex matches base64 data URLs and captures the MIME type.
	dataURLRegex = regexp.MustCompile(`^data:([a-zA-Z0-9.+\-]+/[a-zA-Z0-9.+\-]+)(?:;[a-zA-Z0-9=.\-]+)*;base64,`)
)

const (
	MaxUsernameLength = 30
	MaxCaptionLength  = 2200
	MaxMessageLength  = 500
)

func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateUsername accepts letters, digits, '_', '-', '.' and symbol runes
// such as emoji. Whether emoji are permitted for a given user is a policy
// decision made by the caller.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if username != strings.TrimSpace(username) {
		return fmt.Errorf("username must not start or end with spaces")
	}
	if n := utf8.RuneCountInString(username); n > MaxUsernameLength {
		return fmt.Errorf("username is too long (max %d characters)", MaxUsernameLength)
	}
	for _, r := range username {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == '_', r == '-', r == '.':
		case unicode.Is(unicode.So, r), r == '\u200d', r == '\ufe0f':
		default:
			return fmt.Errorf("username contains invalid character %q", r)
		}
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 72 {
		// bcrypt ignores bytes past 72.
		return fmt.Errorf("password is too long (max 72 bytes)")
	}
	return nil
}

// ValidatePasswordPair checks a new password and its confirmation.
func ValidatePasswordPair(password, confirm string) error {
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	return ValidatePassword(password)
}

// DataURL is a decoded base64 data URL.
type DataURL struct {
	MIMEType string
	Size     int
}

// ParseDataURL validates a base64 data URL whose MIME type starts with one of
// the allowed prefixes (e.g. "image/") and whose payload fits in maxBytes.
func ParseDataURL(raw string, maxBytes int, allowedPrefixes ...string) (DataURL, error) {
	m := dataURLRegex.FindStringSubmatch(raw)
	if m == nil {
		return DataURL{}, fmt.Errorf("media must be a base64 data URL")
	}
	mime := strings.ToLower(m[1])

	allowed := len(allowedPrefixes) == 0
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(mime, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return DataURL{}, fmt.Errorf("media type %s is not allowed", mime)
	}

	payload := raw[len(m[0]):]
	size := base64.StdEncoding.DecodedLen(len(payload)) - strings.Count(payload[max(0, len(payload)-2):], "=")
	if size > maxBytes {
		return DataURL{}, fmt.Errorf("media is too large (max %d MB)", maxBytes/(1024*1024))
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return DataURL{}, fmt.Errorf("media payload is not valid base64")
	}

	return DataURL{MIMEType: mime, Size: size}, nil
}

func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
