package manufacturer

import (
	"testing"

	"github.com/msc-platform/ivr/pkg/esign"
	"github.com/stretchr/testify/assert"
)

func TestToSubmissionFields(t *testing.T) {
	fields := ToSubmissionFields(map[string]interface{}{
		"Patient Name":     "Jane Doe",
		"Check: POS-11":    true,
		"Check: POS-12":    false,
		"ICD-10 Codes":     []interface{}{"E11.621", "", "L97.419"},
		"Products":         []string{"Q4151", "Q4128"},
		"Total Wound Size": 16.12,
		"Hospice":          "No",
		"_episode_id":      "42",
		"Empty":            "",
		"Nothing":          nil,
	})

	assert.Equal(t, []esign.Field{
		{Name: "Check: POS-11", DefaultValue: "true"},
		{Name: "Check: POS-12", DefaultValue: "false"},
		{Name: "Hospice", DefaultValue: "No"},
		{Name: "ICD-10 Codes", DefaultValue: "E11.621, L97.419"},
		{Name: "Patient Name", DefaultValue: "Jane Doe"},
		{Name: "Products", DefaultValue: "Q4151, Q4128"},
		{Name: "Total Wound Size", DefaultValue: "16.12"},
	}, fields)
}

func TestToSubmissionFieldsEmpty(t *testing.T) {
	assert.Empty(t, ToSubmissionFields(nil))
}
