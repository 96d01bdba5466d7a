package manufacturer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/transform"
)

const (
	ImportanceCritical = "critical"

	DurationOver4Weeks = "greater_than_4_weeks"
)

type Validation struct {
	Valid                 bool     `json:"valid"`
	Errors                []string `json:"errors"`
	Warnings              []string `json:"warnings"`
	CriticalErrors        []string `json:"critical_errors"`
	MissingOptionalFields []string `json:"missing_optional_fields"`
}

type FieldStatus struct {
	Filled   bool        `json:"filled"`
	Required bool        `json:"required"`
	Value    interface{} `json:"value,omitempty"`
}

type Completeness struct {
	Percentage         float64                `json:"percentage"`
	RequiredPercentage float64                `json:"required_percentage"`
	Filled             int                    `json:"filled"`
	Total              int                    `json:"total"`
	RequiredFilled     int                    `json:"required_filled"`
	RequiredTotal      int                    `json:"required_total"`
	FieldStatus        map[string]FieldStatus `json:"field_status"`
}

var (
	tenDigits    = regexp.MustCompile(`^\d{10}$`)
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// businessWarnings applies the manufacturer-level rules that do not belong to
// a single field.
func businessWarnings(m *Manufacturer, data, facts models.FactMap) []string {
	var warnings []string
	if m.DurationRequirement == DurationOver4Weeks {
		weeks, ok := facts.Float("wound_duration_weeks")
		if !ok {
			weeks, ok = data.Float("wound_duration_weeks")
		}
		if ok && weeks <= 4 {
			warnings = append(warnings, "Wound duration does not meet manufacturer requirement of > 4 weeks")
		}
	}
	return warnings
}

func validate(m *Manufacturer, data models.FactMap, business []string) Validation {
	var critical, errs, warnings, missingOptional []string

	for _, rule := range m.Fields {
		value, present := data[rule.Name]
		if !present || !filled(value) {
			switch {
			case rule.Required && rule.Importance == ImportanceCritical:
				critical = append(critical, fmt.Sprintf("Critical field '%s' is missing or empty", rule.Name))
			case rule.Required:
				warnings = append(warnings, fmt.Sprintf("Required field '%s' is missing or empty (some IVR forms may not need this)", rule.Name))
			default:
				missingOptional = append(missingOptional, rule.Name)
			}
			continue
		}
		if rule.Type != "" && !validType(value, rule.Type) {
			warnings = append(warnings, fmt.Sprintf("Field '%s' format may be invalid for type '%s'", rule.Name, rule.Type))
		}
	}

	warnings = append(warnings, business...)
	if len(missingOptional) > 0 {
		shown := missingOptional[:min(5, len(missingOptional))]
		warnings = append(warnings, "Consider adding optional fields for better form completion: "+strings.Join(shown, ", "))
	}
	errs = append(errs, critical...)

	return Validation{
		Valid:                 len(critical) == 0,
		Errors:                nonNil(errs),
		Warnings:              nonNil(warnings),
		CriticalErrors:        nonNil(critical),
		MissingOptionalFields: nonNil(missingOptional),
	}
}

func validType(value interface{}, kind string) bool {
	s := models.Stringify(value)
	switch kind {
	case "phone", "npi":
		return tenDigits.MatchString(transform.Digits(s))
	case "zip":
		return zipPattern.MatchString(s)
	case "email":
		return emailPattern.MatchString(s)
	case "date":
		_, err := transform.ParseDate(value)
		return err == nil
	case "number":
		_, ok := models.ToFloat(value)
		return ok
	case "boolean":
		if _, ok := value.(bool); ok {
			return true
		}
		switch strings.ToLower(s) {
		case "yes", "no", "true", "false", "1", "0":
			return true
		}
		return false
	default:
		return true
	}
}

func completeness(m *Manufacturer, data models.FactMap) Completeness {
	c := Completeness{FieldStatus: make(map[string]FieldStatus, len(m.Fields))}
	for _, rule := range m.Fields {
		value := data[rule.Name]
		ok := filled(value)
		c.Total++
		if ok {
			c.Filled++
		}
		if rule.Required {
			c.RequiredTotal++
			if ok {
				c.RequiredFilled++
			}
		}
		status := FieldStatus{Filled: ok, Required: rule.Required}
		if ok {
			status.Value = value
		}
		c.FieldStatus[rule.Name] = status
	}
	c.Percentage = percent(c.Filled, c.Total)
	c.RequiredPercentage = percent(c.RequiredFilled, c.RequiredTotal)
	return c
}

// filled treats zero values such as "0" and false as present.
func filled(value interface{}) bool {
	return !models.IsEmpty(value)
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
