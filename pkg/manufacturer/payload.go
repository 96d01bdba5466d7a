package manufacturer

import (
	"sort"
	"strings"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/esign"
)

// ToSubmissionFields turns an assembled payload into prefilled e-sign fields,
// sorted by name. Keys starting with "_" are internal and skipped.
func ToSubmissionFields(payload map[string]interface{}) []esign.Field {
	names := make([]string, 0, len(payload))
	for name := range payload {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]esign.Field, 0, len(names))
	for _, name := range names {
		value := submissionValue(payload[name])
		if value == "" {
			continue
		}
		fields = append(fields, esign.Field{Name: name, DefaultValue: value})
	}
	return fields
}

func submissionValue(value interface{}) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := models.Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	default:
		return models.Stringify(v)
	}
}
