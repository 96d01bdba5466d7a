package manufacturer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/transform"
)

var ErrInvalidExpression = errors.New("invalid field expression")

// Expr is a compiled source or computation expression from the catalog, e.g.
//
//	primary_diagnosis_code || diagnosis_code
//	wound_size_length + " x " + wound_size_width + " cm"
//	place_of_service == "11" || pos_codes.includes("11") ? true : false
type Expr struct {
	src  string
	root node
}

func Compile(src string) (*Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, src, err)
	}
	p := &parser{toks: toks}
	root, err := p.ternary()
	if err == nil && p.pos < len(p.toks) {
		err = fmt.Errorf("unexpected %q", p.toks[p.pos].text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, src, err)
	}
	return &Expr{src: src, root: root}, nil
}

func (e *Expr) String() string { return e.src }

// env is the evaluation scope of one field. used collects the fact keys the
// expression read.
type env struct {
	facts    models.FactMap
	now      time.Time
	duration func(models.FactMap) string
	used     map[string]bool
}

func (e *Expr) eval(scope *env) interface{} {
	return e.root.eval(scope)
}

// tokens

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

var operators = []string{"===", "!==", "==", "!=", ">=", "<=", "&&", "||", ">", "<", "!", "?", ":", "+", "-", "*", "/", "(", ")", ".", "[", "]", ","}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '"' || c == '\'':
			var b strings.Builder
			j := i + 1
			for ; j < len(src) && src[j] != c; j++ {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				b.WriteByte(src[j])
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at %d", i)
			}
			toks = append(toks, token{kind: tokString, text: b.String()})
			i = j + 1
		case isDigit(c):
			j := i
			for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && (isIdentStart(src[j]) || isDigit(src[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j]})
			i = j
		default:
			if strings.HasPrefix(src[i:], "=>") {
				return nil, fmt.Errorf("arrow functions are not supported")
			}
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(src[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at %d", c, i)
			}
			toks = append(toks, token{kind: tokOp, text: op})
			i += len(op)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// parser, lowest precedence first: ternary, ||, &&, comparison, + -, * /, unary, postfix

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peekOp(ops ...string) (string, bool) {
	if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if p.toks[p.pos].text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) expect(op string) error {
	if _, ok := p.peekOp(op); !ok {
		if p.pos >= len(p.toks) {
			return fmt.Errorf("expected %q at end", op)
		}
		return fmt.Errorf("expected %q, got %q", op, p.toks[p.pos].text)
	}
	p.pos++
	return nil
}

func (p *parser) ternary() (node, error) {
	cond, err := p.or()
	if err != nil {
		return nil, err
	}
	if _, ok := p.peekOp("?"); !ok {
		return cond, nil
	}
	p.pos++
	then, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	otherwise, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return &ternaryNode{cond: cond, then: then, otherwise: otherwise}, nil
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	terms := []node{left}
	for {
		if _, ok := p.peekOp("||"); !ok {
			break
		}
		p.pos++
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return &orNode{terms: terms}, nil
}

func (p *parser) and() (node, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
}

func (p *parser) comparison() (node, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOp("===", "!==", "==", "!=", ">=", "<=", ">", "<")
	if !ok {
		return left, nil
	}
	p.pos++
	right, err := p.additive()
	if err != nil {
		return nil, err
	}
	return &compareNode{op: op, left: left, right: right}, nil
}

func (p *parser) additive() (node, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+", "-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		if op == "-" {
			left = &arithNode{op: op, left: left, right: right}
			continue
		}
		if c, ok := left.(*concatNode); ok {
			c.parts = append(c.parts, right)
		} else {
			left = &concatNode{parts: []node{left, right}}
		}
	}
}

func (p *parser) multiplicative() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("*", "/")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &arithNode{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	if _, ok := p.peekOp("!"); ok {
		p.pos++
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &notNode{x: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (node, error) {
	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	tok := p.toks[p.pos]
	p.pos++

	switch tok.kind {
	case tokString:
		return &literalNode{value: tok.text, quoted: true}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", tok.text)
		}
		return &literalNode{value: f}, nil
	case tokOp:
		if tok.text != "(" {
			return nil, fmt.Errorf("unexpected %q", tok.text)
		}
		inner, err := p.ternary()
		if err != nil {
			return nil, err
		}
		return inner, p.expect(")")
	}

	switch tok.text {
	case "true":
		return &literalNode{value: true}, nil
	case "false":
		return &literalNode{value: false}, nil
	case "null", "undefined":
		return &literalNode{}, nil
	}

	path := &pathNode{segments: []segment{{name: tok.text}}}
	var current node = path
	for {
		op, ok := p.peekOp(".", "[")
		if !ok {
			return current, nil
		}
		p.pos++
		if op == "[" {
			if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokNumber {
				return nil, fmt.Errorf("index must be a number")
			}
			idx, err := strconv.Atoi(p.toks[p.pos].text)
			if err != nil {
				return nil, fmt.Errorf("bad index %q", p.toks[p.pos].text)
			}
			p.pos++
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			path.segments = append(path.segments, segment{index: idx, isIndex: true})
			continue
		}

		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokIdent {
			return nil, fmt.Errorf("expected name after '.'")
		}
		name := p.toks[p.pos].text
		p.pos++
		if _, call := p.peekOp("("); call {
			if name != "includes" {
				return nil, fmt.Errorf("unsupported method %s", name)
			}
			p.pos++
			arg, err := p.ternary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			current = &includesNode{target: current, arg: arg}
			return current, nil
		}
		path.segments = append(path.segments, segment{name: name})
	}
}

// nodes

type node interface {
	eval(scope *env) interface{}
}

type literalNode struct {
	value  interface{}
	quoted bool
}

func (n *literalNode) eval(*env) interface{} { return n.value }

type segment struct {
	name    string
	index   int
	isIndex bool
}

type pathNode struct {
	segments []segment
}

func (n *pathNode) eval(scope *env) interface{} {
	first := n.segments[0].name
	if len(n.segments) == 1 && !scope.facts.Has(first) {
		switch first {
		case "today", "current_date":
			return scope.now.Format("2006-01-02")
		case "format_duration":
			if scope.duration != nil {
				return scope.duration(scope.facts)
			}
		}
	}

	value, key, ok := resolve(map[string]interface{}(scope.facts), n.segments)
	if ok && scope.used != nil {
		scope.used[key] = true
	}
	return value
}

// resolve walks segments through nested values. Consecutive names that do not
// exist as nested keys are joined with "_" to reach the flattened key, so
// current_user.name also finds current_user_name.
func resolve(root map[string]interface{}, segments []segment) (interface{}, string, bool) {
	for end := len(segments); end > 0; end-- {
		names := make([]string, 0, end)
		for _, s := range segments[:end] {
			if s.isIndex {
				break
			}
			names = append(names, s.name)
		}
		if len(names) != end {
			continue
		}
		key := strings.Join(names, "_")
		value, ok := root[key]
		if !ok {
			continue
		}
		rest, ok := descend(value, segments[end:])
		if !ok {
			return nil, key, false
		}
		return rest, key, true
	}
	return nil, "", false
}

func descend(value interface{}, segments []segment) (interface{}, bool) {
	for i, s := range segments {
		switch v := value.(type) {
		case []interface{}:
			if !s.isIndex || s.index < 0 || s.index >= len(v) {
				return nil, false
			}
			value = v[s.index]
		case []string:
			if !s.isIndex || s.index < 0 || s.index >= len(v) {
				return nil, false
			}
			value = v[s.index]
		case map[string]interface{}:
			if s.isIndex {
				return nil, false
			}
			nested, _, ok := resolve(v, segments[i:])
			return nested, ok
		case models.FactMap:
			if s.isIndex {
				return nil, false
			}
			nested, _, ok := resolve(v, segments[i:])
			return nested, ok
		default:
			return nil, false
		}
	}
	return value, true
}

type ternaryNode struct {
	cond, then, otherwise node
}

func (n *ternaryNode) eval(scope *env) interface{} {
	if truthy(n.cond.eval(scope)) {
		return n.then.eval(scope)
	}
	return n.otherwise.eval(scope)
}

// orNode yields the first term with a usable value, so it serves both as a
// fallback chain and as a boolean OR.
type orNode struct {
	terms []node
}

func (n *orNode) eval(scope *env) interface{} {
	var last interface{}
	for _, t := range n.terms {
		last = t.eval(scope)
		if b, ok := last.(bool); ok && !b {
			continue
		}
		if !models.IsEmpty(last) {
			return last
		}
	}
	return last
}

type andNode struct {
	left, right node
}

func (n *andNode) eval(scope *env) interface{} {
	left := n.left.eval(scope)
	if !truthy(left) {
		return left
	}
	return n.right.eval(scope)
}

type notNode struct {
	x node
}

func (n *notNode) eval(scope *env) interface{} {
	return !truthy(n.x.eval(scope))
}

type compareNode struct {
	op          string
	left, right node
}

func (n *compareNode) eval(scope *env) interface{} {
	l, r := n.left.eval(scope), n.right.eval(scope)
	switch n.op {
	case "==", "===":
		return looseEqual(l, r)
	case "!=", "!==":
		return !looseEqual(l, r)
	}

	lf, lok := models.ToFloat(l)
	rf, rok := models.ToFloat(r)
	if lok && rok {
		switch n.op {
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		default:
			return lf <= rf
		}
	}
	ls, rs := models.Stringify(l), models.Stringify(r)
	switch n.op {
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	default:
		return ls <= rs
	}
}

func looseEqual(l, r interface{}) bool {
	if l == nil || r == nil {
		return models.IsEmpty(l) && models.IsEmpty(r)
	}
	if lb, ok := l.(bool); ok {
		rb, known := transform.ParseBool(r)
		return known && lb == rb
	}
	if rb, ok := r.(bool); ok {
		lb, known := transform.ParseBool(l)
		return known && lb == rb
	}
	lf, lok := models.ToFloat(l)
	rf, rok := models.ToFloat(r)
	if lok && rok {
		return lf == rf
	}
	return models.Stringify(l) == models.Stringify(r)
}

// concatNode joins its parts. With a quoted literal among them the parts are
// concatenated as written; otherwise the non-empty values are joined by a
// single space. All-numeric parts are summed.
type concatNode struct {
	parts []node
}

func (n *concatNode) eval(scope *env) interface{} {
	values := make([]interface{}, len(n.parts))
	numeric, literal := true, false
	for i, part := range n.parts {
		values[i] = part.eval(scope)
		if lit, ok := part.(*literalNode); ok && lit.quoted {
			literal = true
		}
		if !isNumber(values[i]) {
			numeric = false
		}
	}

	if numeric {
		sum := 0.0
		for _, v := range values {
			f, _ := models.ToFloat(v)
			sum += f
		}
		return sum
	}

	if literal {
		var b strings.Builder
		for i, v := range values {
			if lit, ok := n.parts[i].(*literalNode); ok && lit.quoted {
				b.WriteString(lit.value.(string))
				continue
			}
			b.WriteString(models.Stringify(v))
		}
		return strings.Trim(b.String(), " ,")
	}

	words := make([]string, 0, len(values))
	for _, v := range values {
		if s := models.Stringify(v); s != "" {
			words = append(words, s)
		}
	}
	return strings.Join(words, " ")
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32:
		return true
	}
	return false
}

type arithNode struct {
	op          string
	left, right node
}

// arithmetic treats missing or non-numeric operands as zero
func (n *arithNode) eval(scope *env) interface{} {
	l, _ := models.ToFloat(n.left.eval(scope))
	r, _ := models.ToFloat(n.right.eval(scope))
	switch n.op {
	case "*":
		return l * r
	case "/":
		if r == 0 {
			return 0.0
		}
		return l / r
	default:
		return l - r
	}
}

type includesNode struct {
	target, arg node
}

func (n *includesNode) eval(scope *env) interface{} {
	needle := models.Stringify(n.arg.eval(scope))
	switch v := n.target.eval(scope).(type) {
	case []interface{}:
		for _, item := range v {
			if models.Stringify(item) == needle {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if item == needle {
				return true
			}
		}
		return false
	case nil:
		return false
	default:
		return strings.Contains(models.Stringify(v), needle)
	}
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.TrimSpace(val)
		return s != "" && s != "0" && !strings.EqualFold(s, "false")
	}
	if f, ok := models.ToFloat(v); ok {
		return f != 0
	}
	return !models.IsEmpty(v)
}
