package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

var inputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	"20060102",
}

func formatDate(value interface{}, option string) (interface{}, error) {
	if option == "" {
		return nil, fmt.Errorf("%w: date needs a format", ErrInvalidSpec)
	}
	t, err := ParseDate(value)
	if err != nil {
		return nil, err
	}
	return FormatPHP(t, option), nil
}

// ParseDate accepts time.Time or a string in any common US or ISO layout.
func ParseDate(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, errUnformattable
		}
		return v, nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, errUnformattable
		}
		return *v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, errUnformattable
		}
		for _, layout := range inputLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		// now.Parse also accepts bare times and years, which are not dates
		if len(s) >= 6 && strings.ContainsAny(s, "-/. ") {
			if t, err := now.Parse(s); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, errUnformattable
}

// FormatPHP renders t using PHP date() format characters. A backslash
// escapes the next character.
func FormatPHP(t time.Time, format string) string {
	var b strings.Builder
	escaped := false
	for _, r := range format {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'j':
			b.WriteString(strconv.Itoa(t.Day()))
		case 'D':
			b.WriteString(t.Format("Mon"))
		case 'l':
			b.WriteString(t.Weekday().String())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'n':
			b.WriteString(strconv.Itoa(int(t.Month())))
		case 'M':
			b.WriteString(t.Format("Jan"))
		case 'F':
			b.WriteString(t.Month().String())
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'y':
			fmt.Fprintf(&b, "%02d", t.Year()%100)
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'G':
			b.WriteString(strconv.Itoa(t.Hour()))
		case 'h':
			fmt.Fprintf(&b, "%02d", hour12(t))
		case 'g':
			b.WriteString(strconv.Itoa(hour12(t)))
		case 'i':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 's':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'A':
			b.WriteString(t.Format("PM"))
		case 'a':
			b.WriteString(t.Format("pm"))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}
