package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/msc-platform/ivr/pkg/common/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func formatPhone(value interface{}, option string) (interface{}, error) {
	mode := strings.ToUpper(option)
	if mode != "US" && mode != "E164" {
		return nil, fmt.Errorf("%w: phone option %q", ErrInvalidSpec, option)
	}

	digits := Digits(models.Stringify(value))
	var national string
	switch {
	case len(digits) == 10:
		national = digits
	case len(digits) == 11 && digits[0] == '1':
		national = digits[1:]
	default:
		return nil, errUnformattable
	}

	if mode == "E164" {
		return "+1" + national, nil
	}
	us := fmt.Sprintf("(%s) %s-%s", national[:3], national[3:6], national[6:])
	if len(digits) == 11 {
		return "+1 " + us, nil
	}
	return us, nil
}

// Digits strips everything but 0-9.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func formatBoolean(value interface{}, option string) (interface{}, error) {
	var yes, no interface{}
	switch strings.ToLower(option) {
	case "yes_no":
		yes, no = "Yes", "No"
	case "1_0":
		yes, no = 1, 0
	case "true_false", "checkbox":
		yes, no = "true", "false"
	default:
		return nil, fmt.Errorf("%w: boolean option %q", ErrInvalidSpec, option)
	}

	truthy, ok := ParseBool(value)
	if !ok {
		return nil, errUnformattable
	}
	if truthy {
		return yes, nil
	}
	return no, nil
}

// ParseBool recognizes the truthy and falsy spellings found in form data.
func ParseBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, v == 0 || v == 1
	case int64:
		return v != 0, v == 0 || v == 1
	case float64:
		return v != 0, v == 0 || v == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on", "checked":
			return true, true
		case "0", "false", "no", "n", "off", "unchecked":
			return false, true
		}
	}
	return false, false
}

func formatAddress(value interface{}, option string) (interface{}, error) {
	mode := strings.ToLower(option)
	if mode != "full" && mode != "line" {
		return nil, fmt.Errorf("%w: address option %q", ErrInvalidSpec, option)
	}

	parts, ok := addressParts(value)
	if !ok {
		return nil, errUnformattable
	}

	if mode == "line" {
		return joinNonEmpty(" ", parts["line1"], parts["line2"]), nil
	}
	return joinNonEmpty(", ", parts["line1"], parts["line2"], parts["city"], parts["state"], parts["postal_code"]), nil
}

func addressParts(value interface{}) (map[string]string, bool) {
	var raw map[string]interface{}
	switch v := value.(type) {
	case map[string]interface{}:
		raw = v
	case models.FactMap:
		raw = v
	case map[string]string:
		raw = make(map[string]interface{}, len(v))
		for k, s := range v {
			raw[k] = s
		}
	default:
		return nil, false
	}

	pick := func(keys ...string) string {
		for _, k := range keys {
			if s := models.Stringify(raw[k]); s != "" {
				return s
			}
		}
		return ""
	}
	return map[string]string{
		"line1":       pick("line1", "address_line1", "street"),
		"line2":       pick("line2", "address_line2"),
		"city":        pick("city"),
		"state":       pick("state"),
		"postal_code": pick("postal_code", "zip", "zip_code"),
	}, true
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func formatNumber(value interface{}, option string) (interface{}, error) {
	places, err := strconv.Atoi(option)
	if err != nil || places < 0 {
		return nil, fmt.Errorf("%w: number option %q", ErrInvalidSpec, option)
	}

	f, ok := models.ToFloat(value)
	if !ok {
		return nil, errUnformattable
	}
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p, nil
}

func formatText(value interface{}, option string) (interface{}, error) {
	var fn func(string) string
	switch strings.ToLower(option) {
	case "upper":
		fn = strings.ToUpper
	case "lower":
		fn = strings.ToLower
	case "title":
		// Casers are stateful; build one per call
		fn = func(s string) string { return cases.Title(language.English).String(s) }
	default:
		return nil, fmt.Errorf("%w: text option %q", ErrInvalidSpec, option)
	}

	s, ok := value.(string)
	if !ok {
		if value == nil {
			return nil, errUnformattable
		}
		s = models.Stringify(value)
	}
	return fn(s), nil
}
