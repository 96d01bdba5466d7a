package transform

import (
	"errors"
	"testing"
	"time"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformDate(t *testing.T) {
	tr := New()

	out, err := tr.Transform("2023-12-25", "date:m/d/Y")
	require.NoError(t, err)
	assert.Equal(t, "12/25/2023", out)

	out, err = tr.Transform("12/25/2023", "date:Y-m-d")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-25", out)

	out, err = tr.Transform(time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC), `date:F j, Y \a\t g:i A`)
	require.NoError(t, err)
	assert.Equal(t, "March 5, 2024 at 2:07 PM", out)
}

func TestTransformInvalidDateReturnsOriginal(t *testing.T) {
	tr := New()

	out, err := tr.Transform("invalid-date", "date:m/d/Y")
	require.NoError(t, err)
	assert.Equal(t, "invalid-date", out)

	out, err = tr.Transform("2024", "date:m/d/Y")
	require.NoError(t, err)
	assert.Equal(t, "2024", out)
}

func TestTransformPhone(t *testing.T) {
	tr := New()

	out, err := tr.Transform("5551234567", "phone:US")
	require.NoError(t, err)
	assert.Equal(t, "(555) 123-4567", out)

	out, err = tr.Transform("555-123-4567", "phone:E164")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", out)

	out, err = tr.Transform("1 555 123 4567", "phone:US")
	require.NoError(t, err)
	assert.Equal(t, "+1 (555) 123-4567", out)

	out, err = tr.Transform("12345", "phone:US")
	require.NoError(t, err)
	assert.Equal(t, "12345", out)
}

func TestTransformBoolean(t *testing.T) {
	tr := New()

	cases := []struct {
		value interface{}
		spec  string
		want  interface{}
	}{
		{true, "boolean:yes_no", "Yes"},
		{false, "boolean:yes_no", "No"},
		{"checked", "boolean:checkbox", "true"},
		{"off", "boolean:true_false", "false"},
		{"Y", "boolean:1_0", 1},
		{0, "boolean:1_0", 0},
		{"maybe", "boolean:yes_no", "maybe"},
	}
	for _, c := range cases {
		out, err := tr.Transform(c.value, c.spec)
		require.NoError(t, err)
		assert.Equal(t, c.want, out, "%v with %s", c.value, c.spec)
	}
}

func TestTransformAddress(t *testing.T) {
	tr := New()
	addr := map[string]interface{}{
		"line1":    "100 Main St",
		"line2":    "Suite 4",
		"city":     "Austin",
		"state":    "TX",
		"zip_code": "78701",
	}

	out, err := tr.Transform(addr, "address:full")
	require.NoError(t, err)
	assert.Equal(t, "100 Main St, Suite 4, Austin, TX, 78701", out)

	out, err = tr.Transform(addr, "address:line")
	require.NoError(t, err)
	assert.Equal(t, "100 Main St Suite 4", out)

	out, err = tr.Transform("100 Main St", "address:full")
	require.NoError(t, err)
	assert.Equal(t, "100 Main St", out)
}

func TestTransformNumberAndText(t *testing.T) {
	tr := New()

	out, err := tr.Transform("16.1249", "number:2")
	require.NoError(t, err)
	assert.Equal(t, 16.12, out)

	out, err = tr.Transform("jane doe", "text:title")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", out)

	out, err = tr.Transform("Jane", "text:upper")
	require.NoError(t, err)
	assert.Equal(t, "JANE", out)
}

func TestTransformSpecErrors(t *testing.T) {
	tr := New()

	for _, spec := range []string{"bogus", "nope:x", "phone:UK", "boolean:maybe", "number:two", "text:snake", "date:"} {
		_, err := tr.Transform("value", spec)
		require.Error(t, err, spec)
		assert.True(t, errors.Is(err, ErrInvalidSpec), spec)
		assert.Error(t, tr.Validate(spec), spec)
	}

	out, err := tr.Transform("as-is", "")
	require.NoError(t, err)
	assert.Equal(t, "as-is", out)
	assert.NoError(t, tr.Validate("date:m/d/Y"))
}

func TestFormatDurationFromComponents(t *testing.T) {
	tr := New()

	got := tr.FormatDuration(models.FactMap{
		"wound_duration_years":  1,
		"wound_duration_months": 6,
		"wound_duration_weeks":  2,
		"wound_duration_days":   3,
	})
	assert.Equal(t, "1 year, 6 months, 2 weeks, 3 days", got)

	assert.Equal(t, "1 week", tr.FormatDuration(models.FactMap{"wound_duration_weeks": 1}))
	assert.Equal(t, "", tr.FormatDuration(models.FactMap{}))
}

func TestFormatDurationFromStartDate(t *testing.T) {
	tr := New()
	tr.now = func() time.Time { return time.Date(2024, 9, 20, 10, 0, 0, 0, time.UTC) }

	got := tr.FormatDuration(models.FactMap{"wound_start_date": "2023-03-03"})
	assert.Equal(t, "1 year, 6 months, 2 weeks, 3 days", got)
}

func TestCalendarDiffBorrowsFromPreviousMonth(t *testing.T) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	y, m, d := CalendarDiff(start, end)
	assert.Equal(t, 0, y)
	assert.Equal(t, 1, m)
	assert.Equal(t, 1, d)

	assert.Equal(t, 30, TotalDays(start, end))

	y, m, d = CalendarDiff(end, start)
	assert.Equal(t, [3]int{0, 0, 0}, [3]int{y, m, d})
}
