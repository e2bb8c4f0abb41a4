package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
)

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks value against c and returns the coerced value. In strict
// mode the value's native type must already match; otherwise strings are
// coerced to the declared type. Failures are *domain.ValidationError.
func Validate(value any, c *Contract, strict bool) (any, error) {
	return validate("", value, c, strict)
}

// ValidateMap validates data against an assoc contract and returns a new
// map holding coerced values for declared keys. Keys without a contract are
// copied through unchanged. data is never modified.
func ValidateMap(data map[string]any, c *Contract, strict bool) (map[string]any, error) {
	if c.Type != TypeAssoc {
		return nil, fmt.Errorf("ValidateMap requires an assoc contract, got %s", c.Type)
	}
	out, err := validateAssoc("", data, c, strict)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func validate(path string, value any, c *Contract, strict bool) (any, error) {
	switch c.Type {
	case TypeAssoc:
		return validateAssoc(path, value, c, strict)
	case TypeArray:
		return validateArray(path, value, c, strict)
	case TypeInt:
		return validateInt(path, value, c, strict)
	case TypeFloat:
		return validateFloat(path, value, c, strict)
	case TypeString:
		return validateString(path, value, c, strict)
	case TypeBool:
		return validateBool(path, value, strict)
	case TypeEmail:
		return validateEmail(path, value, c, strict)
	case TypeEnum:
		return validateEnum(path, value, c, strict)
	case TypeColor:
		return validateColor(path, value, strict)
	case TypeBinary:
		return validateBinary(path, value, c)
	default:
		return nil, fmt.Errorf("unknown contract type %q", c.Type)
	}
}

func validateAssoc(path string, value any, c *Contract, strict bool) (any, error) {
	m, ok := asMap(value)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected assoc")
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	// Sorted so the first reported failure is stable.
	for _, name := range sortedKeys(c.Keys) {
		sub := c.Keys[name]
		field := joinField(path, name)

		raw, present := m[name]
		if !present || raw == nil {
			if sub.Optional {
				continue
			}
			def, ok := sub.Constraints[KeyDefault]
			if !ok {
				return nil, &domain.ValidationError{Field: field, Reason: domain.ReasonMissing}
			}
			coerced, err := validate(field, def, sub, false)
			if err != nil {
				return nil, err
			}
			out[name] = coerced
			continue
		}

		coerced, err := validate(field, raw, sub, strict)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

func validateArray(path string, value any, c *Contract, strict bool) (any, error) {
	items, ok := asList(value)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected array")
	}
	if err := checkRange(path, float64(len(items)), c, value); err != nil {
		return nil, err
	}
	if err := checkLength(path, len(items), c, value); err != nil {
		return nil, err
	}

	out := make([]any, len(items))
	var elem *Contract
	if c.Keys != nil {
		elem = &Contract{Type: TypeAssoc, Keys: c.Keys}
	}
	for i, item := range items {
		if elem == nil {
			out[i] = item
			continue
		}
		coerced, err := validate(fmt.Sprintf("%s[%d]", path, i), item, elem, strict)
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}

func validateInt(path string, value any, c *Contract, strict bool) (any, error) {
	n, ok := toInt(value, strict)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected int")
	}
	if err := checkRange(path, float64(n), c, value); err != nil {
		return nil, err
	}
	return n, nil
}

func validateFloat(path string, value any, c *Contract, strict bool) (any, error) {
	f, ok := toFloat(value, strict)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected float")
	}
	if err := checkRange(path, f, c, value); err != nil {
		return nil, err
	}
	return f, nil
}

func validateString(path string, value any, c *Contract, strict bool) (any, error) {
	s, ok := toString(value, strict)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected string")
	}
	if err := checkLength(path, utf8.RuneCountInString(s), c, value); err != nil {
		return nil, err
	}
	return s, nil
}

func validateBool(path string, value any, strict bool) (any, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	if strict {
		return nil, invalid(path, domain.ReasonType, value, "expected bool")
	}
	switch t := value.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no", "":
			return false, nil
		}
	case int:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	case float64:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	}
	return nil, invalid(path, domain.ReasonType, value, "expected bool")
}

func validateEmail(path string, value any, c *Contract, strict bool) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected email string")
	}
	if !strict {
		s = strings.TrimSpace(s)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s, "@") {
		return nil, invalid(path, domain.ReasonFormat, value, "not an email address")
	}
	if err := checkLength(path, utf8.RuneCountInString(s), c, value); err != nil {
		return nil, err
	}
	return s, nil
}

func validateEnum(path string, value any, c *Contract, strict bool) (any, error) {
	s, ok := toString(value, strict)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected enum string")
	}
	allowed := splitList(c.Constraints[KeyValues])
	for _, v := range allowed {
		if v == s {
			return s, nil
		}
	}
	return nil, invalid(path, domain.ReasonValues, value, "one of "+strings.Join(allowed, ", "))
}

func validateColor(path string, value any, strict bool) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, invalid(path, domain.ReasonType, value, "expected color string")
	}
	if !strict {
		s = strings.TrimSpace(s)
		if s != "" && !strings.HasPrefix(s, "#") {
			s = "#" + s
		}
	}
	if !colorPattern.MatchString(s) {
		return nil, invalid(path, domain.ReasonFormat, value, "expected #rgb or #rrggbb")
	}
	return s, nil
}

func validateBinary(path string, value any, c *Contract) (any, error) {
	var f ports.UploadedFile
	switch t := value.(type) {
	case ports.UploadedFile:
		f = t
	case *ports.UploadedFile:
		if t == nil {
			return nil, invalid(path, domain.ReasonType, value, "expected uploaded file")
		}
		f = *t
	default:
		return nil, invalid(path, domain.ReasonType, value, "expected uploaded file")
	}
	if pattern, ok := c.Constraints[KeyMime]; ok && !mimeMatches(pattern, f.MIME) {
		return nil, invalid(path, domain.ReasonMime, f.MIME, "want "+pattern)
	}
	if err := checkRange(path, float64(f.Size), c, f.Size); err != nil {
		return nil, err
	}
	return f, nil
}

// mimeMatches treats patterns ending in "/" or "/*" as type prefixes and
// anything else as an exact, case-insensitive match.
func mimeMatches(pattern, mime string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	mime = strings.ToLower(strings.TrimSpace(mime))
	if base, _, ok := strings.Cut(mime, ";"); ok {
		mime = strings.TrimSpace(base)
	}
	for _, p := range splitList(pattern) {
		switch {
		case strings.HasSuffix(p, "/*"):
			if strings.HasPrefix(mime, strings.TrimSuffix(p, "*")) {
				return true
			}
		case strings.HasSuffix(p, "/"):
			if strings.HasPrefix(mime, p) {
				return true
			}
		case p == mime:
			return true
		}
	}
	return false
}

func checkRange(path string, n float64, c *Contract, value any) error {
	if lit, ok := c.Constraints[KeyMin]; ok {
		lo, _ := strconv.ParseFloat(lit, 64)
		if n < lo {
			return invalid(path, domain.ReasonMin, value, "minimum "+lit)
		}
	}
	if lit, ok := c.Constraints[KeyMax]; ok {
		hi, _ := strconv.ParseFloat(lit, 64)
		if n > hi {
			return invalid(path, domain.ReasonMax, value, "maximum "+lit)
		}
	}
	return nil
}

func checkLength(path string, n int, c *Contract, value any) error {
	if lit, ok := c.Constraints[KeyMinLen]; ok {
		lo, _ := strconv.Atoi(lit)
		if n < lo {
			return invalid(path, domain.ReasonMinLen, value, "minimum length "+lit)
		}
	}
	if lit, ok := c.Constraints[KeyMaxLen]; ok {
		hi, _ := strconv.Atoi(lit)
		if n > hi {
			return invalid(path, domain.ReasonMaxLen, value, "maximum length "+lit)
		}
	}
	return nil
}

func toInt(value any, strict bool) (int, bool) {
	switch t := value.(type) {
	case int:
		return t, true
	case int8:
		return int(t), true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint:
		if t <= math.MaxInt {
			return int(t), true
		}
	case uint8:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		if t <= math.MaxInt {
			return int(t), true
		}
	case float64:
		// Decoded JSON carries every number as float64. float64(MaxInt) rounds
		// up to 2^63, which is already out of range.
		if t == math.Trunc(t) && t >= math.MinInt && t < math.MaxInt {
			return int(t), true
		}
	case json.Number:
		if n, err := strconv.ParseInt(t.String(), 10, strconv.IntSize); err == nil {
			return int(n), true
		}
	case string:
		if strict {
			return 0, false
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, strconv.IntSize); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

// toFloat accepts finite numbers only.
func toFloat(value any, strict bool) (float64, bool) {
	var f float64
	switch t := value.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		if strict {
			return 0, false
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		n, ok := toInt(value, true)
		if !ok {
			return 0, false
		}
		f = float64(n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toString(value any, strict bool) (string, bool) {
	if s, ok := value.(string); ok {
		return s, true
	}
	if strict {
		return "", false
	}
	switch t := value.(type) {
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	}
	if n, ok := toInt(value, true); ok {
		return strconv.Itoa(n), true
	}
	return "", false
}

func asMap(value any) (map[string]any, bool) {
	switch t := value.(type) {
	case map[string]any:
		return t, true
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = v
		}
		return m, true
	}
	return nil, false
}

func asList(value any) ([]any, bool) {
	switch t := value.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = v
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = v
		}
		return out, true
	case []ports.UploadedFile:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = v
		}
		return out, true
	}
	return nil, false
}

func joinField(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func invalid(field, reason string, value any, detail string) *domain.ValidationError {
	return &domain.ValidationError{Field: field, Reason: reason, Value: value, Detail: detail}
}
