// Package sanitize normalizes and validates every externally supplied
// string before it reaches a query or an insert. All functions are pure;
// strict validators return an error, best-effort ones degrade to the
// empty string (or zero) so callers decide whether an empty field blocks
// the operation.
package sanitize

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrInvalidCURP  = errors.New("invalid CURP format")
	ErrInvalidRFC   = errors.New("invalid RFC format")
	ErrInvalidEmail = errors.New("invalid email format")
	ErrInvalidUUID  = errors.New("invalid UUID")
)

var (
	curpPattern  = regexp.MustCompile(`^[A-Z]{4}\d{6}[A-Z]{6}[A-Z0-9]{2}$`)
	rfcPattern   = regexp.MustCompile(`^[A-Z]{3,4}\d{6}[A-Z0-9]{3}$`)
	emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)
	emailLoose   = regexp.MustCompile(`^[\w.-]*@*[\w.-]*\.*\w*$`)

	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	whitespace      = regexp.MustCompile(`\s+`)

	plainDisallowed      = regexp.MustCompile(`[^a-zA-Z0-9.()/-]+`)
	plainDisallowedEnie  = regexp.MustCompile(`[^a-zA-Z0-9ñÑ.()/-]+`)
	accentDisallowed     = regexp.MustCompile(`[^a-záéíóúüA-ZÁÉÍÓÚÜ0-9.()/-]+`)
	accentDisallowedEnie = regexp.MustCompile(`[^a-záéíóúüñA-ZÁÉÍÓÚÜÑ0-9.()/-]+`)

	nonDigits = regexp.MustCompile(`[^0-9]`)
)

// asciiFold strips diacritics: decompose, drop combining marks, recompose.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldASCII(s string) string {
	out, _, err := transform.String(asciiFold, s)
	if err != nil {
		return s
	}
	return out
}

// foldASCIIKeepEnie folds diacritics but preserves ñ and Ñ.
func foldASCIIKeepEnie(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 'ñ' || r == 'Ñ' {
			b.WriteRune(r)
			continue
		}
		b.WriteString(foldASCII(string(r)))
	}
	return b.String()
}

// ClaveMaxLen is the column width of every clave in the catalog.
const ClaveMaxLen = 16

// Clave normalizes a short identifying code: fold accents, collapse
// non-alphanumeric runs to "-", uppercase, truncate. It never fails;
// unusable input degrades to "".
func Clave(input string) string {
	return ClaveN(input, ClaveMaxLen)
}

// ClaveN is Clave with an explicit maximum length.
func ClaveN(input string, maxLen int) string {
	stripped := strings.TrimSpace(input)
	if stripped == "" {
		return ""
	}
	clean := nonAlphanumeric.ReplaceAllString(foldASCII(stripped), "-")
	clean = whitespace.ReplaceAllString(clean, "")
	clean = strings.ToUpper(clean)
	if len(clean) > maxLen {
		return clean[:maxLen]
	}
	return clean
}

func foldIdentifier(input string) string {
	clean := nonAlphanumeric.ReplaceAllString(foldASCII(strings.TrimSpace(input)), " ")
	clean = whitespace.ReplaceAllString(clean, "")
	return strings.ToUpper(clean)
}

// CURP normalizes a CURP and validates its 18-character structure.
func CURP(input string) (string, error) {
	final := foldIdentifier(input)
	if !curpPattern.MatchString(final) {
		return "", ErrInvalidCURP
	}
	return final, nil
}

// CURPFragment normalizes a partial CURP for searches; it never fails.
func CURPFragment(input string) string {
	return foldIdentifier(input)
}

// RFC normalizes an RFC and validates its 12-13 character structure.
// The empty string is accepted as "not provided".
func RFC(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", nil
	}
	final := foldIdentifier(input)
	if !rfcPattern.MatchString(final) {
		return "", ErrInvalidRFC
	}
	return final, nil
}

// RFCFragment normalizes a partial RFC for searches; it never fails.
func RFCFragment(input string) string {
	return foldIdentifier(input)
}

// Email lowercases and validates an email address. The empty string is
// accepted as "not provided".
func Email(input string) (string, error) {
	final := strings.ToLower(strings.TrimSpace(input))
	if final == "" {
		return "", nil
	}
	if !emailPattern.MatchString(final) {
		return "", ErrInvalidEmail
	}
	return final, nil
}

// EmailFragment normalizes a partial address for searches. A fragment
// that cannot belong to any address degrades to "".
func EmailFragment(input string) string {
	final := strings.ToLower(strings.TrimSpace(input))
	if final == "" {
		return ""
	}
	if !emailLoose.MatchString(final) {
		return ""
	}
	return final
}

// Integer coerces a scalar to int, clamping to [min, max]. Values that
// cannot be coerced become 0 (then clamped).
func Integer(input any, min, max int) int {
	var value int
	switch v := input.(type) {
	case int:
		value = v
	case int64:
		value = int(v)
	case float64:
		value = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			parsed = 0
		}
		value = parsed
	default:
		value = 0
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// TextOption adjusts Text's normalization.
type TextOption func(*textConfig)

type textConfig struct {
	maxLen        int
	transliterate bool
	keepEnie      bool
	uppercase     bool
}

// TextMaxLen overrides the default 250 character limit. Zero disables
// truncation.
func TextMaxLen(n int) TextOption {
	return func(c *textConfig) { c.maxLen = n }
}

// TextKeepEnie preserves ñ and Ñ through transliteration.
func TextKeepEnie() TextOption {
	return func(c *textConfig) { c.keepEnie = true }
}

// TextKeepAccents skips transliteration, allowing accented vowels through.
func TextKeepAccents() TextOption {
	return func(c *textConfig) { c.transliterate = false }
}

// TextKeepCase skips the final uppercasing.
func TextKeepCase() TextOption {
	return func(c *textConfig) { c.uppercase = false }
}

// Text normalizes free text: strip disallowed characters, collapse
// whitespace, trim, uppercase, truncate with a "..." marker. It never
// fails; unusable input degrades to "".
func Text(input string, opts ...TextOption) string {
	cfg := textConfig{maxLen: 250, transliterate: true, uppercase: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	var clean string
	switch {
	case cfg.transliterate && cfg.keepEnie:
		clean = plainDisallowedEnie.ReplaceAllString(foldASCIIKeepEnie(input), " ")
	case cfg.transliterate:
		clean = plainDisallowed.ReplaceAllString(foldASCII(input), " ")
	case cfg.keepEnie:
		clean = accentDisallowedEnie.ReplaceAllString(input, " ")
	default:
		clean = accentDisallowed.ReplaceAllString(input, " ")
	}

	final := strings.TrimSpace(whitespace.ReplaceAllString(clean, " "))
	if cfg.uppercase {
		final = strings.ToUpper(final)
	}
	if cfg.maxLen > 0 {
		// Truncate by runes; keep-accents mode leaves multibyte characters in.
		if r := []rune(final); len(r) > cfg.maxLen {
			return string(r[:cfg.maxLen]) + "..."
		}
	}
	return final
}

// Phone keeps only digits and demands exactly ten of them; anything else
// degrades to "".
func Phone(input string) string {
	stripped := strings.TrimSpace(input)
	if stripped == "" {
		return ""
	}
	digits := nonDigits.ReplaceAllString(stripped, "")
	if len(digits) != 10 {
		return ""
	}
	return digits
}

// UUID parses an identifier supplied in a path parameter.
func UUID(input string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.UUID{}, ErrInvalidUUID
	}
	return id, nil
}
