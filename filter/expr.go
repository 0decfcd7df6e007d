package filter

import (
	"regexp"
	"slices"
	"strings"
)

// Row is the column accessor an expression is evaluated against.
// model.Record implements it.
type Row interface {
	Field(name string) (any, bool)
}

// truth is a three-valued logic result.
type truth uint8

const (
	unknown truth = iota
	isFalse
	isTrue
)

func truthOf(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// Expr is a parsed filter expression.
type Expr interface {
	// Match reports whether row satisfies the expression. Unknown results
	// do not match.
	Match(row Row) bool

	// Columns returns the sorted, distinct column names referenced.
	Columns() []string

	String() string

	eval(row Row) truth
	columns(dst []string) []string
}

type andExpr struct{ left, right Expr }

type orExpr struct{ left, right Expr }

type notExpr struct{ inner Expr }

// operand is either a column reference or a literal.
type operand struct {
	column string
	value  Value
}

type compareExpr struct {
	op          string
	left, right operand
}

type inExpr struct {
	target operand
	list   []operand
	negate bool
}

type isNullExpr struct {
	target operand
	negate bool
}

type likeExpr struct {
	target  operand
	pattern string
	re      *regexp.Regexp
	negate  bool
}

type betweenExpr struct {
	target, low, high operand
	negate            bool
}

// columnExpr is a bare boolean column or literal used as a predicate.
type columnExpr struct{ target operand }

func (o operand) resolve(row Row) Value {
	if o.column == "" {
		return o.value
	}
	raw, ok := row.Field(o.column)
	if !ok {
		return Null()
	}
	v, err := FromAny(raw)
	if err != nil {
		return Value{}
	}
	return v
}

func (o operand) String() string {
	if o.column != "" {
		return o.column
	}
	return o.value.String()
}

func (o operand) columns(dst []string) []string {
	if o.column != "" {
		dst = append(dst, o.column)
	}
	return dst
}

func match(e Expr, row Row) bool { return e.eval(row) == isTrue }

func sortedColumns(e Expr) []string {
	cols := e.columns(nil)
	slices.Sort(cols)
	return slices.Compact(cols)
}

func (e *andExpr) Match(row Row) bool { return match(e, row) }
func (e *andExpr) Columns() []string  { return sortedColumns(e) }
func (e *andExpr) String() string     { return "(" + e.left.String() + " AND " + e.right.String() + ")" }
func (e *andExpr) columns(dst []string) []string {
	return e.right.columns(e.left.columns(dst))
}

func (e *andExpr) eval(row Row) truth {
	l := e.left.eval(row)
	if l == isFalse {
		return isFalse
	}
	r := e.right.eval(row)
	switch {
	case r == isFalse:
		return isFalse
	case l == isTrue && r == isTrue:
		return isTrue
	default:
		return unknown
	}
}

func (e *orExpr) Match(row Row) bool { return match(e, row) }
func (e *orExpr) Columns() []string  { return sortedColumns(e) }
func (e *orExpr) String() string     { return "(" + e.left.String() + " OR " + e.right.String() + ")" }
func (e *orExpr) columns(dst []string) []string {
	return e.right.columns(e.left.columns(dst))
}

func (e *orExpr) eval(row Row) truth {
	l := e.left.eval(row)
	if l == isTrue {
		return isTrue
	}
	r := e.right.eval(row)
	switch {
	case r == isTrue:
		return isTrue
	case l == isFalse && r == isFalse:
		return isFalse
	default:
		return unknown
	}
}

func (e *notExpr) Match(row Row) bool            { return match(e, row) }
func (e *notExpr) Columns() []string             { return sortedColumns(e) }
func (e *notExpr) String() string                { return "NOT " + e.inner.String() }
func (e *notExpr) columns(dst []string) []string { return e.inner.columns(dst) }

func (e *notExpr) eval(row Row) truth { return not(e.inner.eval(row)) }

func not(t truth) truth {
	switch t {
	case isTrue:
		return isFalse
	case isFalse:
		return isTrue
	default:
		return unknown
	}
}

func (e *compareExpr) Match(row Row) bool { return match(e, row) }
func (e *compareExpr) Columns() []string  { return sortedColumns(e) }
func (e *compareExpr) String() string {
	return e.left.String() + " " + e.op + " " + e.right.String()
}
func (e *compareExpr) columns(dst []string) []string {
	return e.right.columns(e.left.columns(dst))
}

func (e *compareExpr) eval(row Row) truth {
	a, b := e.left.resolve(row), e.right.resolve(row)
	if a.isNull() || b.isNull() {
		return unknown
	}
	switch e.op {
	case "=":
		return truthOf(compareEqual(a, b))
	case "!=":
		return truthOf(!compareEqual(a, b))
	}
	c, ok := compareOrder(a, b)
	if !ok {
		return unknown
	}
	switch e.op {
	case "<":
		return truthOf(c < 0)
	case "<=":
		return truthOf(c <= 0)
	case ">":
		return truthOf(c > 0)
	case ">=":
		return truthOf(c >= 0)
	default:
		return unknown
	}
}

func (e *inExpr) Match(row Row) bool { return match(e, row) }
func (e *inExpr) Columns() []string  { return sortedColumns(e) }
func (e *inExpr) String() string {
	parts := make([]string, len(e.list))
	for i, o := range e.list {
		parts[i] = o.String()
	}
	kw := " IN ("
	if e.negate {
		kw = " NOT IN ("
	}
	return e.target.String() + kw + strings.Join(parts, ", ") + ")"
}
func (e *inExpr) columns(dst []string) []string {
	dst = e.target.columns(dst)
	for _, o := range e.list {
		dst = o.columns(dst)
	}
	return dst
}

func (e *inExpr) eval(row Row) truth {
	v := e.target.resolve(row)
	if v.isNull() {
		return unknown
	}
	result := isFalse
	for _, o := range e.list {
		item := o.resolve(row)
		if item.isNull() {
			result = unknown
			continue
		}
		if compareEqual(v, item) {
			result = isTrue
			break
		}
	}
	if e.negate {
		return not(result)
	}
	return result
}

func (e *isNullExpr) Match(row Row) bool { return match(e, row) }
func (e *isNullExpr) Columns() []string  { return sortedColumns(e) }
func (e *isNullExpr) String() string {
	if e.negate {
		return e.target.String() + " IS NOT NULL"
	}
	return e.target.String() + " IS NULL"
}
func (e *isNullExpr) columns(dst []string) []string { return e.target.columns(dst) }

func (e *isNullExpr) eval(row Row) truth {
	return truthOf(e.target.resolve(row).isNull() != e.negate)
}

func (e *likeExpr) Match(row Row) bool { return match(e, row) }
func (e *likeExpr) Columns() []string  { return sortedColumns(e) }
func (e *likeExpr) String() string {
	kw := " LIKE "
	if e.negate {
		kw = " NOT LIKE "
	}
	return e.target.String() + kw + String(e.pattern).String()
}
func (e *likeExpr) columns(dst []string) []string { return e.target.columns(dst) }

func (e *likeExpr) eval(row Row) truth {
	v := e.target.resolve(row)
	if v.Kind != KindString {
		return unknown
	}
	return truthOf(e.re.MatchString(v.S) != e.negate)
}

// compileLike translates a LIKE pattern (% and _ wildcards) to a regexp.
func compileLike(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func (e *betweenExpr) Match(row Row) bool { return match(e, row) }
func (e *betweenExpr) Columns() []string  { return sortedColumns(e) }
func (e *betweenExpr) String() string {
	kw := " BETWEEN "
	if e.negate {
		kw = " NOT BETWEEN "
	}
	return e.target.String() + kw + e.low.String() + " AND " + e.high.String()
}
func (e *betweenExpr) columns(dst []string) []string {
	return e.high.columns(e.low.columns(e.target.columns(dst)))
}

func (e *betweenExpr) eval(row Row) truth {
	v, lo, hi := e.target.resolve(row), e.low.resolve(row), e.high.resolve(row)
	if v.isNull() || lo.isNull() || hi.isNull() {
		return unknown
	}
	c1, ok1 := compareOrder(v, lo)
	c2, ok2 := compareOrder(v, hi)
	if !ok1 || !ok2 {
		return unknown
	}
	return truthOf((c1 >= 0 && c2 <= 0) != e.negate)
}

func (e *columnExpr) Match(row Row) bool            { return match(e, row) }
func (e *columnExpr) Columns() []string             { return sortedColumns(e) }
func (e *columnExpr) String() string                { return e.target.String() }
func (e *columnExpr) columns(dst []string) []string { return e.target.columns(dst) }

func (e *columnExpr) eval(row Row) truth {
	v := e.target.resolve(row)
	if v.Kind != KindBool {
		return unknown
	}
	return truthOf(v.B)
}
