package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBestMatchExact(t *testing.T) {
	m := NewMatcher()

	match := m.FindBestMatch("patient_first_name", []string{"patient_last_name", "patient_first_name"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, "patient_first_name", match.Field)
	assert.Equal(t, MatchExact, match.MatchType)
	assert.Greater(t, match.Score, 0.9)
	assert.LessOrEqual(t, match.Score, 1.0)
}

func TestFindBestMatchNormalizesSeparatorsAndCase(t *testing.T) {
	m := NewMatcher()

	for _, candidate := range []string{"PATIENT_FIRST_NAME", "patient-first-name", "Patient First Name", "patient.first.name"} {
		match := m.FindBestMatch("patient_first_name", []string{candidate}, nil)
		require.NotNil(t, match, candidate)
		assert.Equal(t, MatchExact, match.MatchType, candidate)
		assert.Equal(t, candidate, match.Field)
	}
}

func TestFindBestMatchSemantic(t *testing.T) {
	m := NewMatcher()

	match := m.FindBestMatch("patient_first_name", []string{"first_name"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, MatchSemantic, match.MatchType)
	assert.Equal(t, 1.0, match.Score)

	match = m.FindBestMatch("patient_dob", []string{"birthDate"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, MatchSemantic, match.MatchType)
}

func TestFindBestMatchFuzzy(t *testing.T) {
	m := NewMatcher()

	match := m.FindBestMatch("patient_first_name", []string{"patient_fname", "provider_npi"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, "patient_fname", match.Field)
	assert.Equal(t, MatchFuzzy, match.MatchType)
	assert.InDelta(t, 0.7167, match.Score, 0.001)
}

func TestFindBestMatchPattern(t *testing.T) {
	m := NewMatcher()

	match := m.FindBestMatch("provider_npi", []string{"provider_individual_npi"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, "provider_individual_npi", match.Field)
	assert.Equal(t, MatchPattern, match.MatchType)
	assert.InDelta(t, 0.935, match.Score, 0.0001)

	match = m.FindBestMatch("patient_id", []string{"mrn_id"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, MatchPattern, match.MatchType)
}

func TestFindBestMatchRanksAcrossCandidates(t *testing.T) {
	m := NewMatcher()

	tests := []struct {
		name       string
		canonical  string
		candidates []string
		field      string
		kind       MatchType
		score      float64
	}{
		{"fuzzy beats id pattern", "primary_member_id", []string{"facility_id", "primary_membr_id"}, "primary_membr_id", MatchFuzzy, 0.8718},
		{"fuzzy beats id pattern listed last", "primary_member_id", []string{"primary_membr_id", "facility_id"}, "primary_membr_id", MatchFuzzy, 0.8718},
		{"fuzzy alone keeps its label", "primary_member_id", []string{"primary_membr_id"}, "primary_membr_id", MatchFuzzy, 0.8718},
		{"fuzzy beats name pattern", "wound_type", []string{"wound_category_type", "wound_tpe"}, "wound_tpe", MatchFuzzy, 0.8187},
		{"pattern when nothing closer", "wound_type", []string{"wound_category_type", "wound_location"}, "wound_category_type", MatchPattern, 0.935},
		{"semantic beats fuzzy", "patient_first_name", []string{"patient_fname", "first_name"}, "first_name", MatchSemantic, 1.0},
		{"semantic beats pattern", "primary_member_id", []string{"facility_id", "member_id"}, "member_id", MatchSemantic, 1.0},
		{"exact beats all", "patient_first_name", []string{"patient_fname", "first_name", "Patient First Name"}, "Patient First Name", MatchExact, 1.0},
		{"abbreviation clears the fuzzy floor", "patient_first_name", []string{"patient_fname"}, "patient_fname", MatchFuzzy, 0.7167},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := m.FindBestMatch(tt.canonical, tt.candidates, nil)
			require.NotNil(t, match)
			assert.Equal(t, tt.field, match.Field)
			assert.Equal(t, tt.kind, match.MatchType)
			assert.InDelta(t, tt.score, match.Score, 0.001)
		})
	}
}

func TestFuzzyFloorMargin(t *testing.T) {
	sim := similarity("patient_first_name", "patient_fname")
	assert.GreaterOrEqual(t, sim, fuzzyFloor)
	assert.Less(t, sim-fuzzyFloor, 0.02)
	assert.Less(t, similarity("patient_id", "patient_fname"), fuzzyFloor)
}

func TestFindBestMatchNothing(t *testing.T) {
	m := NewMatcher()

	assert.Nil(t, m.FindBestMatch("patient_first_name", nil, nil))
	assert.Nil(t, m.FindBestMatch("patient_first_name", []string{}, nil))
	assert.Nil(t, m.FindBestMatch("patient_first_name", []string{"wound_size_total"}, nil))
	assert.Nil(t, m.FindBestMatch("", []string{"x"}, nil))
}

func TestFindBestMatchPrefersExactOverSemantic(t *testing.T) {
	m := NewMatcher()

	match := m.FindBestMatch("patient_phone", []string{"phone", "patient_phone"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, "patient_phone", match.Field)
	assert.Equal(t, MatchExact, match.MatchType)
}

func TestFindBestMatchUsesContext(t *testing.T) {
	m := NewMatcher()
	context := map[string]interface{}{
		"phone":     "not a phone",
		"telephone": "555-123-4567",
	}

	match := m.FindBestMatch("patient_phone", []string{"phone", "telephone"}, context)
	require.NotNil(t, match)
	assert.Equal(t, "telephone", match.Field)

	match = m.FindBestMatch("patient_phone", []string{"phone"}, context)
	assert.Nil(t, match)
}

func TestWithThresholdAndAliases(t *testing.T) {
	strict := NewMatcher(WithThreshold(1.2))
	assert.Nil(t, strict.FindBestMatch("patient_first_name", []string{"patient_fname"}, nil))
	assert.NotNil(t, strict.FindBestMatch("patient_first_name", []string{"patient_first_name"}, nil))

	custom := NewMatcher(WithAliases(map[string][]string{"wound_type": {"ulcer_category"}}))
	match := custom.FindBestMatch("wound_type", []string{"ulcer_category"}, nil)
	require.NotNil(t, match)
	assert.Equal(t, MatchSemantic, match.MatchType)

	assert.Nil(t, NewMatcher().FindBestMatch("wound_type", []string{"ulcer_category"}, nil))
}

func TestMatchAllAssignsCandidatesOnce(t *testing.T) {
	m := NewMatcher()

	got := m.MatchAll(
		[]string{"patient_first_name", "patient_last_name"},
		[]string{"First Name", "Last Name"},
		nil,
	)
	require.Len(t, got, 2)
	assert.Equal(t, "First Name", got["patient_first_name"].Field)
	assert.Equal(t, "Last Name", got["patient_last_name"].Field)

	got = m.MatchAll([]string{"primary_member_id"}, []string{"facility_id", "primary_membr_id"}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "primary_membr_id", got["primary_member_id"].Field)
	assert.Equal(t, MatchFuzzy, got["primary_member_id"].MatchType)

	got = m.MatchAll([]string{"patient_phone", "facility_phone"}, []string{"patient_phone"}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "patient_phone", got["patient_phone"].Field)
}

func TestSimilarityComponents(t *testing.T) {
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 1.0, similarity("abc", "abc"))
	assert.InDelta(t, 0.961, jaroWinkler("martha", "marhta"), 0.001)
	assert.InDelta(t, 0.5, tokenOverlap("patient_first_name", "patient_name_x"), 1e-9)
}
