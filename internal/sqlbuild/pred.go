package sqlbuild

import (
	"strings"
)

// Pred is a boolean SQL expression. The set of predicates is closed; build
// them with the constructors in this file.
type Pred interface {
	render(b *builder)
}

// Op is a comparison operator.
type Op string

const (
	OpEQ Op = "="
	OpNE Op = "<>"
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
)

type cmpPred struct {
	expr string
	op   Op
	val  any
}

func (p cmpPred) render(b *builder) {
	b.write(p.expr, " ", string(p.op), " ")
	b.bind(p.val)
}

// Eq renders expr = ?.
func Eq(expr string, val any) Pred { return cmpPred{expr: expr, op: OpEQ, val: val} }

// Cmp renders expr <op> ?.
func Cmp(expr string, op Op, val any) Pred { return cmpPred{expr: expr, op: op, val: val} }

type colEqPred struct{ left, right string }

func (p colEqPred) render(b *builder) { b.write(p.left, " = ", p.right) }

// ColEq compares two column expressions.
func ColEq(left, right string) Pred { return colEqPred{left: left, right: right} }

type inPred struct {
	expr   string
	vals   []any
	negate bool
}

func (p inPred) render(b *builder) {
	if len(p.vals) == 0 {
		if p.negate {
			b.write(trueSQL)
		} else {
			b.write(falseSQL)
		}
		return
	}
	b.write(p.expr)
	if p.negate {
		b.write(" NOT")
	}
	b.write(" IN (")
	for i, v := range p.vals {
		if i > 0 {
			b.write(", ")
		}
		b.bind(v)
	}
	b.write(")")
}

// In renders expr IN (?, ...). An empty set matches nothing.
func In(expr string, vals ...any) Pred { return inPred{expr: expr, vals: vals} }

// NotIn renders expr NOT IN (?, ...). An empty set matches everything.
func NotIn(expr string, vals ...any) Pred { return inPred{expr: expr, vals: vals, negate: true} }

type nullPred struct {
	expr   string
	negate bool
}

func (p nullPred) render(b *builder) {
	if p.negate {
		b.write(p.expr, " IS NOT NULL")
		return
	}
	b.write(p.expr, " IS NULL")
}

func IsNull(expr string) Pred  { return nullPred{expr: expr} }
func NotNull(expr string) Pred { return nullPred{expr: expr, negate: true} }

type likePred struct {
	exprs   []string
	pattern string
}

func (p likePred) render(b *builder) {
	if len(p.exprs) == 0 {
		b.write(falseSQL)
		return
	}
	b.write("(")
	for i, e := range p.exprs {
		if i > 0 {
			b.write(" OR ")
		}
		b.write("LOWER(", e, `) LIKE `)
		b.bind(p.pattern)
		b.write(` ESCAPE '\'`)
	}
	b.write(")")
}

// Like matches term as a case-insensitive substring of any of exprs.
// Wildcards in term are escaped.
func Like(term string, exprs ...string) Pred {
	return likePred{exprs: exprs, pattern: "%" + EscapeLike(strings.ToLower(term)) + "%"}
}

// EscapeLike escapes the LIKE wildcards and the escape character itself.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type boolPred struct {
	op    string
	preds []Pred
}

func (p boolPred) render(b *builder) {
	if len(p.preds) == 0 {
		if p.op == "AND" {
			b.write(trueSQL)
		} else {
			b.write(falseSQL)
		}
		return
	}
	if len(p.preds) == 1 {
		p.preds[0].render(b)
		return
	}
	b.write("(")
	for i, c := range p.preds {
		if i > 0 {
			b.write(" ", p.op, " ")
		}
		c.render(b)
	}
	b.write(")")
}

// And joins preds with AND. An empty And is true.
func And(preds ...Pred) Pred { return boolPred{op: "AND", preds: preds} }

// Or joins preds with OR. An empty Or is false.
func Or(preds ...Pred) Pred { return boolPred{op: "OR", preds: preds} }

type notPred struct{ p Pred }

func (p notPred) render(b *builder) {
	b.write("NOT (")
	p.p.render(b)
	b.write(")")
}

func Not(p Pred) Pred { return notPred{p: p} }

type existsPred struct {
	sub    Select
	negate bool
}

func (p existsPred) render(b *builder) {
	if p.negate {
		b.write("NOT ")
	}
	b.write("EXISTS (")
	p.sub.renderPlain(b)
	b.write(")")
}

// Exists renders EXISTS (sub). The subquery may reference outer aliases.
func Exists(sub Select) Pred { return existsPred{sub: sub} }

// NotExists renders NOT EXISTS (sub).
func NotExists(sub Select) Pred { return existsPred{sub: sub, negate: true} }

type constPred bool

func (p constPred) render(b *builder) {
	if p {
		b.write(trueSQL)
	} else {
		b.write(falseSQL)
	}
}

func True() Pred  { return constPred(true) }
func False() Pred { return constPred(false) }

const (
	trueSQL  = "1=1"
	falseSQL = "1=0"
)

// Render returns the SQL text and arguments of a single predicate.
func Render(p Pred) (string, []any) {
	var b builder
	p.render(&b)
	return b.sb.String(), b.args
}
