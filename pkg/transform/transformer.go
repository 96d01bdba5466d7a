// Package transform formats raw fact values for display in manufacturer forms.
//
// A transformation is described by a "kind:option" spec string such as
// "date:m/d/Y" or "phone:US". Spec mistakes are configuration errors and are
// returned as ErrInvalidSpec; values that cannot be formatted are returned
// unchanged so one bad field never blocks the rest of a form.
package transform

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidSpec = errors.New("invalid transformer spec")

	// errUnformattable marks a data-shape problem; Transform swallows it.
	errUnformattable = errors.New("value cannot be formatted")
)

type Kind string

const (
	KindDate    Kind = "date"
	KindPhone   Kind = "phone"
	KindBoolean Kind = "boolean"
	KindAddress Kind = "address"
	KindNumber  Kind = "number"
	KindText    Kind = "text"
)

// formatFunc formats value for one kind. Option errors must wrap ErrInvalidSpec,
// value errors must wrap errUnformattable.
type formatFunc func(value interface{}, option string) (interface{}, error)

type Transformer struct {
	formatters map[Kind]formatFunc
	now        func() time.Time
}

func New() *Transformer {
	t := &Transformer{now: time.Now}
	t.formatters = map[Kind]formatFunc{
		KindDate:    formatDate,
		KindPhone:   formatPhone,
		KindBoolean: formatBoolean,
		KindAddress: formatAddress,
		KindNumber:  formatNumber,
		KindText:    formatText,
	}
	return t
}

// ParseSpec splits a spec into its kind and option and checks the kind is known.
func (t *Transformer) ParseSpec(spec string) (Kind, string, error) {
	idx := strings.Index(spec, ":")
	if idx <= 0 {
		return "", "", fmt.Errorf("%w: %q has no kind:option form", ErrInvalidSpec, spec)
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(spec[:idx])))
	if _, ok := t.formatters[kind]; !ok {
		return "", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, kind)
	}
	return kind, strings.TrimSpace(spec[idx+1:]), nil
}

// Transform applies spec to value. An empty spec returns value untouched.
func (t *Transformer) Transform(value interface{}, spec string) (interface{}, error) {
	if strings.TrimSpace(spec) == "" {
		return value, nil
	}

	kind, option, err := t.ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	out, err := t.formatters[kind](value, option)
	if err != nil {
		if errors.Is(err, ErrInvalidSpec) {
			return nil, fmt.Errorf("%s: %w", spec, err)
		}
		return value, nil
	}
	return out, nil
}

// Validate reports whether spec would be accepted, without a value.
func (t *Transformer) Validate(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	kind, option, err := t.ParseSpec(spec)
	if err != nil {
		return err
	}
	if _, err := t.formatters[kind](nil, option); errors.Is(err, ErrInvalidSpec) {
		return fmt.Errorf("%s: %w", spec, err)
	}
	return nil
}
