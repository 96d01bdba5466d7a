// Package matching pairs canonical field names with the differently spelled
// names used by manufacturer templates and ad-hoc data sources.
package matching

import (
	"regexp"
	"sort"
	"strings"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/transform"
)

type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchSemantic MatchType = "semantic"
	MatchFuzzy    MatchType = "fuzzy"
	MatchPattern  MatchType = "pattern"
)

const (
	exactScore    = 1.0
	semanticScore = 0.95
	patternScore  = 0.85

	exactBoost    = 1.5
	semanticBoost = 1.2
	fuzzyBoost    = 1.0
	patternBoost  = 1.1

	// raw fuzzy similarity needed before the strategy counts at all
	fuzzyFloor = 0.7

	implausiblePenalty = 0.5
	plausibleBonus     = 1.05
)

type Match struct {
	Field     string    `json:"field"`
	MatchType MatchType `json:"match_type"`
	Score     float64   `json:"score"`
}

type Matcher struct {
	threshold float64
	groups    aliasGroups
}

type Option func(*Matcher)

func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithAliases adds alias groups on top of the built-in dictionary.
func WithAliases(aliases map[string][]string) Option {
	return func(m *Matcher) {
		if len(aliases) > 0 {
			m.groups = buildGroups(defaultAliases, aliases)
		}
	}
}

func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{threshold: 0.7, groups: defaultAliasGroups()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func normalize(name string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// FindBestMatch returns the candidate that best names the canonical field, or
// nil when none clears the threshold. context carries candidate values and is
// used to penalize matches whose value cannot belong to the canonical field.
func (m *Matcher) FindBestMatch(canonical string, candidates []string, context map[string]interface{}) *Match {
	target := normalize(canonical)
	if target == "" {
		return nil
	}

	var best *Match
	var bestRank scored
	for _, candidate := range candidates {
		rank, ok := m.score(target, candidate, context)
		if !ok || !rank.outranks(bestRank) {
			continue
		}
		bestRank = rank
		best = &Match{Field: candidate, MatchType: rank.kind, Score: min(rank.value, 1.0)}
	}
	return best
}

// scored is the boosted score of one candidate under its strongest strategy.
type scored struct {
	value float64
	kind  MatchType
}

// outranks orders pattern hits after every other strategy regardless of
// value; they only win when nothing closer exists.
func (s scored) outranks(other scored) bool {
	if other.kind == "" {
		return s.kind != ""
	}
	if (s.kind == MatchPattern) != (other.kind == MatchPattern) {
		return other.kind == MatchPattern
	}
	return s.value > other.value
}

type pairing struct {
	canonical string
	match     Match
	rank      scored
}

// MatchAll pairs every canonical field with at most one candidate, and every
// candidate with at most one canonical field, taking the strongest pairs first.
func (m *Matcher) MatchAll(canonicals, candidates []string, context map[string]interface{}) map[string]Match {
	var pairs []pairing
	for _, canonical := range canonicals {
		target := normalize(canonical)
		if target == "" {
			continue
		}
		for _, candidate := range candidates {
			rank, ok := m.score(target, candidate, context)
			if !ok {
				continue
			}
			pairs = append(pairs, pairing{
				canonical: canonical,
				match:     Match{Field: candidate, MatchType: rank.kind, Score: min(rank.value, 1.0)},
				rank:      rank,
			})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].rank.outranks(pairs[j].rank) })

	result := make(map[string]Match)
	taken := make(map[string]bool)
	for _, p := range pairs {
		if _, done := result[p.canonical]; done || taken[p.match.Field] {
			continue
		}
		result[p.canonical] = p.match
		taken[p.match.Field] = true
	}
	return result
}

// score returns the boosted score of the strongest strategy for candidate.
// The structural patterns are only tried when no name-based strategy applies.
func (m *Matcher) score(target, candidate string, context map[string]interface{}) (scored, bool) {
	name := normalize(candidate)
	if name == "" {
		return scored{}, false
	}

	var rank float64
	var kind MatchType
	consider := func(s float64, k MatchType) {
		if s > rank {
			rank, kind = s, k
		}
	}

	if name == target {
		consider(exactScore*exactBoost, MatchExact)
	}
	if m.groups.related(target, name) {
		consider(semanticScore*semanticBoost, MatchSemantic)
	}
	if sim := similarity(target, name); sim >= fuzzyFloor {
		consider(sim*fuzzyBoost, MatchFuzzy)
	}
	if kind == "" && sharesPattern(target, name) {
		consider(patternScore*patternBoost, MatchPattern)
	}
	if kind == "" {
		return scored{}, false
	}

	if value, ok := context[candidate]; ok {
		switch plausible(target, value) {
		case verdictImplausible:
			rank *= implausiblePenalty
		case verdictPlausible:
			rank *= plausibleBonus
		}
	}

	if rank < m.threshold {
		return scored{}, false
	}
	return scored{value: rank, kind: kind}, true
}

type verdict int

const (
	verdictUnknown verdict = iota
	verdictPlausible
	verdictImplausible
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	npiPattern   = regexp.MustCompile(`^\d{10}$`)
)

// plausible checks value against the shape implied by a typed field name.
func plausible(field string, value interface{}) verdict {
	switch value.(type) {
	case string, float64, int, int64:
	default:
		return verdictUnknown
	}
	s := models.Stringify(value)
	if s == "" {
		return verdictUnknown
	}

	check := func(good bool) verdict {
		if good {
			return verdictPlausible
		}
		return verdictImplausible
	}

	switch {
	case strings.Contains(field, "email"):
		return check(emailPattern.MatchString(s))
	case strings.Contains(field, "npi"):
		return check(npiPattern.MatchString(s))
	case strings.Contains(field, "phone") || strings.Contains(field, "fax"):
		d := transform.Digits(s)
		return check(len(d) == 10 || (len(d) == 11 && d[0] == '1'))
	case strings.Contains(field, "zip") || strings.Contains(field, "postal"):
		return check(zipPattern.MatchString(s))
	case strings.Contains(field, "dob") || strings.Contains(field, "date") || strings.Contains(field, "birth"):
		_, err := transform.ParseDate(s)
		return check(err == nil)
	}
	return verdictUnknown
}
