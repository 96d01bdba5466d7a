package manufacturer

import (
	"errors"
	"testing"
	"time"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprFacts() models.FactMap {
	return models.FactMap{
		"patient_first_name":     "Jane",
		"patient_last_name":      "Doe",
		"wound_size_length":      5.2,
		"wound_size_width":       3.1,
		"place_of_service":       "11",
		"pos_codes":              []interface{}{"11", "22"},
		"hospice_status":         false,
		"primary_diagnosis_code": "E11.621",
		"diagnosis_code":         "L97.419",
		"current_user_name":      "Dr Who",
		"zero":                   0.0,
		"empty":                  "",
		"selected_products": []interface{}{
			map[string]interface{}{"quantity": 2.0, "product": map[string]interface{}{"q_code": "Q4316"}},
		},
	}
}

func evalString(t *testing.T, src string, facts models.FactMap) (interface{}, *env) {
	t.Helper()
	expr, err := Compile(src)
	require.NoError(t, err, src)
	scope := &env{
		facts:    facts,
		now:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		duration: func(models.FactMap) string { return "4 weeks, 2 days" },
		used:     make(map[string]bool),
	}
	return expr.eval(scope), scope
}

func TestExpressionValues(t *testing.T) {
	tests := []struct {
		src  string
		want interface{}
	}{
		{`patient_first_name + patient_last_name`, "Jane Doe"},
		{`patient_first_name + " " + missing`, "Jane"},
		{`wound_size_length + " x " + wound_size_width + " cm"`, "5.2 x 3.1 cm"},
		{`wound_size_length / zero`, 0.0},
		{`missing || empty || primary_diagnosis_code`, "E11.621"},
		{`missing || "fallback"`, "fallback"},
		{`hospice_status || "No"`, "No"},
		{`hospice_status === true ? "Yes" : "No"`, "No"},
		{`place_of_service == "11" || pos_codes.includes("12") ? true : false`, true},
		{`place_of_service == "12" || pos_codes.includes("12") ? true : false`, false},
		{`pos_codes.includes("22")`, true},
		{`missing.includes("22")`, false},
		{`place_of_service >= 10`, true},
		{`place_of_service != "11"`, false},
		{`current_user.name`, "Dr Who"},
		{`selected_products[0].product.q_code`, "Q4316"},
		{`selected_products[3].product.q_code`, nil},
		{`!hospice_status`, true},
		{`primary_diagnosis_code && secondary_diagnosis_code ? primary_diagnosis_code + ", " + secondary_diagnosis_code : (primary_diagnosis_code || diagnosis_code)`, "E11.621"},
		{`'single quoted'`, "single quoted"},
		{`null`, nil},
		{`today`, "2024-06-01"},
		{`format_duration`, "4 weeks, 2 days"},
	}
	for _, tt := range tests {
		got, _ := evalString(t, tt.src, exprFacts())
		assert.Equal(t, tt.want, got, tt.src)
	}
}

func TestExpressionArithmetic(t *testing.T) {
	got, _ := evalString(t, `wound_size_length * wound_size_width`, exprFacts())
	assert.InDelta(t, 16.12, got, 1e-9)

	got, _ = evalString(t, `(wound_size_length + 1) * 2`, exprFacts())
	assert.InDelta(t, 12.4, got, 1e-9)

	got, _ = evalString(t, `wound_size_length - missing`, exprFacts())
	assert.InDelta(t, 5.2, got, 1e-9)

	got, _ = evalString(t, `selected_products[0].quantity * 10`, exprFacts())
	assert.InDelta(t, 20.0, got, 1e-9)
}

func TestExpressionTracksUsedKeys(t *testing.T) {
	_, scope := evalString(t, `missing || primary_diagnosis_code || diagnosis_code`, exprFacts())
	assert.Equal(t, map[string]bool{"primary_diagnosis_code": true}, scope.used)

	_, scope = evalString(t, `current_user.name`, exprFacts())
	assert.True(t, scope.used["current_user_name"])
}

func TestFactsShadowKeywords(t *testing.T) {
	facts := exprFacts()
	facts["today"] = "yesterday"
	got, _ := evalString(t, `today`, facts)
	assert.Equal(t, "yesterday", got)
}

func TestCompileErrors(t *testing.T) {
	for _, src := range []string{
		``,
		`a ||`,
		`a = b`,
		`"unterminated`,
		`items.reduce((s, i) => s + i, 0)`,
		`name.toUpperCase()`,
		`a ? b`,
		`(a || b`,
		`list[x]`,
		`a b`,
	} {
		_, err := Compile(src)
		require.Error(t, err, src)
		assert.True(t, errors.Is(err, ErrInvalidExpression), src)
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []interface{}{true, "yes", 1.0, 2, []interface{}{"a"}} {
		assert.True(t, truthy(v), "%v", v)
	}
	for _, v := range []interface{}{false, "", "0", "false", 0.0, nil, []interface{}{}} {
		assert.False(t, truthy(v), "%v", v)
	}
}
