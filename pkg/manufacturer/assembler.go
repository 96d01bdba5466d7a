package manufacturer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/matching"
	"github.com/msc-platform/ivr/pkg/observability/metrics"
	"github.com/msc-platform/ivr/pkg/transform"
	"github.com/sirupsen/logrus"
)

// Assembly is the result of mapping one fact map onto one template.
type Assembly struct {
	Manufacturer string                    `json:"manufacturer,omitempty"`
	TemplateID   string                    `json:"template_id"`
	DocumentType string                    `json:"document_type"`
	Data         models.FactMap            `json:"data,omitempty"`
	Payload      map[string]interface{}    `json:"payload"`
	Validation   *Validation               `json:"validation,omitempty"`
	Completeness Completeness              `json:"completeness"`
	Matches      map[string]matching.Match `json:"matches,omitempty"`
}

type Assembler struct {
	catalog     Catalog
	matcher     *matching.Matcher
	transformer *transform.Transformer
	now         func() time.Time
}

func NewAssembler(cat Catalog, m *matching.Matcher, t *transform.Transformer) *Assembler {
	if m == nil {
		m = matching.NewMatcher()
	}
	if t == nil {
		t = transform.New()
	}
	return &Assembler{catalog: cat, matcher: m, transformer: t, now: time.Now}
}

func (a *Assembler) Catalog() Catalog { return a.catalog }

// CheckCatalog reports the first transform spec in the catalog the
// transformer would reject.
func (a *Assembler) CheckCatalog() error {
	for _, m := range a.catalog.Manufacturers {
		for _, rule := range m.Fields {
			if err := a.transformer.Validate(rule.Transform); err != nil {
				return fmt.Errorf("%s.%s: %w", m.Name, rule.Name, err)
			}
		}
	}
	return nil
}

// Assemble builds the form payload for templateID. Templates outside the
// catalog get generic matching against templateFields only.
func (a *Assembler) Assemble(templateID string, facts models.FactMap, templateFields []string) (*Assembly, error) {
	m, ok := a.catalog.ByTemplateID(templateID)
	if !ok {
		return a.generic(templateID, facts, templateFields), nil
	}
	return a.AssembleFor(m, facts, templateFields)
}

func (a *Assembler) AssembleFor(m *Manufacturer, facts models.FactMap, templateFields []string) (*Assembly, error) {
	data, used, err := a.mapFields(m, facts)
	if err != nil {
		return nil, err
	}

	validation := validate(m, data, businessWarnings(m, data, facts))
	out := &Assembly{
		Manufacturer: m.Name,
		TemplateID:   m.TemplateID,
		DocumentType: m.DocumentType,
		Data:         data,
		Payload:      make(map[string]interface{}),
		Validation:   &validation,
		Completeness: completeness(m, data),
	}

	filledTargets := make(map[string]bool)
	leftover := models.FactMap{}
	for _, rule := range m.Fields {
		value, ok := data[rule.Name]
		if !ok {
			continue
		}
		if _, grouped := m.OptionGroups[rule.Name]; grouped {
			continue
		}
		target := m.FormFields[rule.Name]
		if target == "" && len(m.FormFields) == 0 {
			target = rule.Name
		}
		if target == "" {
			leftover[rule.Name] = value
			continue
		}
		out.Payload[target] = value
		filledTargets[target] = true
	}
	a.expandOptions(m, data, facts, used, out.Payload, filledTargets)

	pool := models.FactMap{}
	for key, value := range facts {
		if !used[key] {
			pool[key] = value
		}
	}
	for key, value := range leftover {
		pool[key] = value
	}

	targets := unfilled(filledTargets, m.TemplateFields, templateFields)
	out.Matches = a.fallback(targets, pool, out.Payload)

	logger.Log.WithFields(logrus.Fields{
		"manufacturer": m.Name,
		"template_id":  m.TemplateID,
		"mapped":       len(data),
		"payload":      len(out.Payload),
		"fallback":     len(out.Matches),
	}).Debug("Assembled manufacturer payload")
	return out, nil
}

// mapFields resolves every configured field. The returned set holds the fact
// keys that fed a field.
func (a *Assembler) mapFields(m *Manufacturer, facts models.FactMap) (models.FactMap, map[string]bool, error) {
	scope := &env{
		facts:    facts,
		now:      a.now(),
		duration: a.transformer.FormatDuration,
		used:     make(map[string]bool),
	}
	data := models.FactMap{}

	for _, rule := range m.Fields {
		var value interface{}
		if rule.Source == SourceFuzzy {
			if match := a.matcher.FindBestMatch(rule.Name, sortedKeys(facts), facts); match != nil {
				value = facts[match.Field]
				scope.used[match.Field] = true
			}
		} else {
			expr, err := rule.Expression()
			if err != nil {
				return nil, nil, fmt.Errorf("%s.%s: %w", m.Name, rule.Name, err)
			}
			value = expr.eval(scope)
		}
		if models.IsEmpty(value) {
			continue
		}

		value, err := a.transformer.Transform(value, rule.Transform)
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", m.Name, rule.Name, err)
		}
		data[rule.Name] = value
	}
	return data, scope.used, nil
}

// expandOptions writes one checkbox per option: "true" for the option equal to
// the canonical value and "false" for its siblings.
func (a *Assembler) expandOptions(m *Manufacturer, data, facts models.FactMap, used map[string]bool, payload map[string]interface{}, filledTargets map[string]bool) {
	for canonical, options := range m.OptionGroups {
		value, ok := data[canonical]
		if !ok {
			if value, ok = facts[canonical]; ok {
				used[canonical] = true
			}
		}
		if !ok || models.IsEmpty(value) {
			continue
		}
		for option, target := range options {
			payload[target] = strconv.FormatBool(optionSelected(value, option))
			filledTargets[target] = true
		}
	}
}

func optionSelected(value interface{}, option string) bool {
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if optionSelected(item, option) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if strings.EqualFold(strings.TrimSpace(item), option) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(models.Stringify(value), option)
}

// fallback fills unfilled template fields from the facts no dictionary entry
// consumed.
func (a *Assembler) fallback(targets []string, pool models.FactMap, payload map[string]interface{}) map[string]matching.Match {
	if len(targets) == 0 || len(pool) == 0 {
		return nil
	}
	candidates := make([]string, 0, len(pool))
	for _, key := range sortedKeys(pool) {
		if scalar(pool[key]) && !models.IsEmpty(pool[key]) {
			candidates = append(candidates, key)
		}
	}

	matches := a.matcher.MatchAll(targets, candidates, pool)
	for target, match := range matches {
		payload[target] = pool[match.Field]
		metrics.FallbackMatch(string(match.MatchType))
	}
	return matches
}

func (a *Assembler) generic(templateID string, facts models.FactMap, templateFields []string) *Assembly {
	out := &Assembly{
		TemplateID:   templateID,
		DocumentType: "IVR",
		Payload:      make(map[string]interface{}),
	}
	if len(templateFields) == 0 {
		for key, value := range facts {
			if scalar(value) && !models.IsEmpty(value) {
				out.Payload[key] = value
			}
		}
		out.Completeness = Completeness{Filled: len(out.Payload), Total: len(out.Payload)}
		out.Completeness.Percentage = percent(out.Completeness.Filled, out.Completeness.Total)
		return out
	}

	out.Matches = a.fallback(unfilled(nil, templateFields), facts, out.Payload)
	out.Completeness = Completeness{
		Filled:      len(out.Payload),
		Total:       len(templateFields),
		FieldStatus: make(map[string]FieldStatus, len(templateFields)),
	}
	for _, name := range templateFields {
		value, ok := out.Payload[name]
		status := FieldStatus{Filled: ok}
		if ok {
			status.Value = value
		}
		out.Completeness.FieldStatus[name] = status
	}
	out.Completeness.Percentage = percent(out.Completeness.Filled, out.Completeness.Total)

	logger.Log.WithFields(logrus.Fields{
		"template_id": templateID,
		"fields":      len(templateFields),
		"matched":     len(out.Matches),
	}).Info("No manufacturer mapping for template, used generic matching")
	return out
}

// unfilled merges field lists, dropping duplicates, blanks and names already
// present in filled.
func unfilled(filled map[string]bool, lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, name := range list {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] || filled[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func scalar(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, models.FactMap:
		return false
	}
	return true
}

func sortedKeys(m models.FactMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
