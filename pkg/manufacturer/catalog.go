// Package manufacturer maps episode facts onto manufacturer IVR templates.
package manufacturer

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownManufacturer = errors.New("unknown manufacturer")

const (
	SourceComputed = "computed"
	SourceFuzzy    = "fuzzy"
)

//go:embed manufacturers.yaml
var defaultCatalogYAML []byte

// FieldRule says how one canonical form field gets its value.
type FieldRule struct {
	Name        string `yaml:"-" json:"name"`
	Source      string `yaml:"source" json:"source"`
	Computation string `yaml:"computation,omitempty" json:"computation,omitempty"`
	Transform   string `yaml:"transform,omitempty" json:"transform,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Importance  string `yaml:"importance,omitempty" json:"importance,omitempty"`

	expr *Expr
}

// Expression is the compiled computation for computed fields and the compiled
// source otherwise. Fuzzy fields have none.
func (r FieldRule) Expression() (*Expr, error) {
	if r.expr != nil {
		return r.expr, nil
	}
	switch r.Source {
	case SourceFuzzy:
		return nil, nil
	case SourceComputed:
		return Compile(r.Computation)
	default:
		return Compile(r.Source)
	}
}

// FieldRules keeps the order fields were declared in.
type FieldRules []FieldRule

func (f *FieldRules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	rules := make(FieldRules, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var rule FieldRule
		if err := node.Content[i+1].Decode(&rule); err != nil {
			return fmt.Errorf("field %s: %w", node.Content[i].Value, err)
		}
		rule.Name = node.Content[i].Value
		rules = append(rules, rule)
	}
	*f = rules
	return nil
}

type Manufacturer struct {
	Name                string                       `yaml:"name" json:"name"`
	DisplayName         string                       `yaml:"display_name" json:"display_name"`
	TemplateID          string                       `yaml:"template_id" json:"template_id,omitempty"`
	DocumentType        string                       `yaml:"document_type" json:"document_type"`
	SignatureRequired   bool                         `yaml:"signature_required" json:"signature_required"`
	HasOrderForm        bool                         `yaml:"has_order_form" json:"has_order_form"`
	DurationRequirement string                       `yaml:"duration_requirement" json:"duration_requirement,omitempty"`
	ProductCodes        []string                     `yaml:"product_codes" json:"product_codes,omitempty"`
	Fields              FieldRules                   `yaml:"fields" json:"-"`
	FormFields          map[string]string            `yaml:"form_fields" json:"-"`
	OptionGroups        map[string]map[string]string `yaml:"option_groups" json:"-"`
	TemplateFields      []string                     `yaml:"template_fields" json:"-"`
}

// Catalog is read-only once loaded.
type Catalog struct {
	ProductMappings map[string]string `yaml:"product_mappings"`
	Manufacturers   []Manufacturer    `yaml:"manufacturers"`

	byTemplate map[string]int
	byName     map[string]int
}

// Load reads the catalog at path. The built-in catalog is returned for an
// empty path, and alongside the error when the file cannot be read or parsed.
func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	cat, err := parse(content)
	if err != nil {
		return DefaultCatalog(), fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// DefaultCatalog is the catalog shipped with the service.
func DefaultCatalog() Catalog {
	cat, err := parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded manufacturer catalog: %v", err))
	}
	return cat
}

func parse(content []byte) (Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Manufacturers) == 0 {
		return Catalog{}, fmt.Errorf("manufacturer catalog empty")
	}
	if err := cat.index(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func (c *Catalog) index() error {
	c.byTemplate = make(map[string]int)
	c.byName = make(map[string]int)
	for i, m := range c.Manufacturers {
		if m.Name == "" {
			return fmt.Errorf("manufacturer %d has no name", i)
		}
		if m.DocumentType == "" {
			c.Manufacturers[i].DocumentType = "IVR"
		}
		for j := range m.Fields {
			rule := &m.Fields[j]
			expr, err := rule.Expression()
			if err != nil {
				return fmt.Errorf("%s.%s: %w", m.Name, rule.Name, err)
			}
			rule.expr = expr
		}
		key := strings.ToLower(m.Name)
		if _, dup := c.byName[key]; dup {
			return fmt.Errorf("manufacturer %s declared twice", m.Name)
		}
		c.byName[key] = i
		if m.DisplayName != "" {
			c.byName[strings.ToLower(m.DisplayName)] = i
		}
		if m.TemplateID == "" {
			continue
		}
		if other, dup := c.byTemplate[m.TemplateID]; dup {
			return fmt.Errorf("template %s used by %s and %s", m.TemplateID, c.Manufacturers[other].Name, m.Name)
		}
		c.byTemplate[m.TemplateID] = i
	}
	return nil
}

func (c Catalog) ByTemplateID(templateID string) (*Manufacturer, bool) {
	i, ok := c.byTemplate[strings.TrimSpace(templateID)]
	if !ok {
		return nil, false
	}
	return &c.Manufacturers[i], true
}

// ByName matches the short name or the display name, ignoring case.
func (c Catalog) ByName(name string) (*Manufacturer, bool) {
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return &c.Manufacturers[i], true
}

func (c Catalog) ByProductCode(code string) (*Manufacturer, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if name, ok := c.ProductMappings[code]; ok {
		return c.ByName(name)
	}
	for i, m := range c.Manufacturers {
		for _, pc := range m.ProductCodes {
			if strings.EqualFold(pc, code) {
				return &c.Manufacturers[i], true
			}
		}
	}
	return nil, false
}

func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Manufacturers))
	for _, m := range c.Manufacturers {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
