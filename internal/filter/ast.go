package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Expr is a node of the SQL expression tree. Every user supplied value ends
// up in a Param and is rendered as a positional placeholder, never inlined.
type Expr interface {
	writeSQL(w *sqlWriter)
}

type sqlWriter struct {
	sb   strings.Builder
	args []any
}

func (w *sqlWriter) write(s string) { w.sb.WriteString(s) }

func (w *sqlWriter) param(v any) {
	w.args = append(w.args, v)
	w.sb.WriteString("$")
	w.sb.WriteString(strconv.Itoa(len(w.args)))
}

func (w *sqlWriter) expr(e Expr) {
	if e == nil {
		w.write("NULL")
		return
	}
	e.writeSQL(w)
}

// Render returns SQL text and arguments for a standalone expression.
func Render(e Expr) (string, []any) {
	w := &sqlWriter{}
	w.expr(e)
	return w.sb.String(), w.args
}

// Column references table.name.
type Column struct {
	Table string
	Name  string
}

func (c Column) writeSQL(w *sqlWriter) {
	if c.Table != "" {
		w.write(pq.QuoteIdentifier(c.Table))
		w.write(".")
	}
	if c.Name == "*" {
		w.write("*")
		return
	}
	w.write(pq.QuoteIdentifier(c.Name))
}

// Param is a bound value.
type Param struct {
	Value any
}

func (p Param) writeSQL(w *sqlWriter) { w.param(p.Value) }

// Raw is trusted, static SQL. It must never be built from request data.
type Raw string

func (r Raw) writeSQL(w *sqlWriter) { w.write(string(r)) }

// BinaryOp enumerates the infix operators the compiler may emit.
type BinaryOp string

const (
	OpSQLEq       BinaryOp = "="
	OpSQLNotEq    BinaryOp = "<>"
	OpSQLLt       BinaryOp = "<"
	OpSQLLtEq     BinaryOp = "<="
	OpSQLGt       BinaryOp = ">"
	OpSQLGtEq     BinaryOp = ">="
	OpSQLILike    BinaryOp = "ILIKE"
	OpSQLRegex    BinaryOp = "~*"
	OpSQLContains BinaryOp = "@>"
	OpSQLPlus     BinaryOp = "+"
	OpSQLMinus    BinaryOp = "-"
	OpSQLTimes    BinaryOp = "*"
)

// Binary is left op right.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (b Binary) writeSQL(w *sqlWriter) {
	w.expr(b.Left)
	w.write(" ")
	w.write(string(b.Op))
	w.write(" ")
	w.expr(b.Right)
}

// Group wraps an expression in parentheses.
type Group struct {
	Inner Expr
}

func (g Group) writeSQL(w *sqlWriter) {
	w.write("(")
	w.expr(g.Inner)
	w.write(")")
}

// And joins two predicates.
type And struct {
	Left  Expr
	Right Expr
}

func (a And) writeSQL(w *sqlWriter) {
	w.write("(")
	w.expr(a.Left)
	w.write(" AND ")
	w.expr(a.Right)
	w.write(")")
}

// Or joins two predicates.
type Or struct {
	Left  Expr
	Right Expr
}

func (o Or) writeSQL(w *sqlWriter) {
	w.write("(")
	w.expr(o.Left)
	w.write(" OR ")
	w.expr(o.Right)
	w.write(")")
}

// Not negates a predicate.
type Not struct {
	Inner Expr
}

func (n Not) writeSQL(w *sqlWriter) {
	w.write("NOT (")
	w.expr(n.Inner)
	w.write(")")
}

// In tests membership in a list of values.
type In struct {
	Left   Expr
	Values []Expr
	Negate bool
}

func (in In) writeSQL(w *sqlWriter) {
	w.expr(in.Left)
	if in.Negate {
		w.write(" NOT IN (")
	} else {
		w.write(" IN (")
	}
	for i, v := range in.Values {
		if i > 0 {
			w.write(", ")
		}
		w.expr(v)
	}
	w.write(")")
}

// IsNull tests for NULL.
type IsNull struct {
	Inner  Expr
	Negate bool
}

func (n IsNull) writeSQL(w *sqlWriter) {
	w.expr(n.Inner)
	if n.Negate {
		w.write(" IS NOT NULL")
		return
	}
	w.write(" IS NULL")
}

// Func is a SQL function call with a fixed name.
type Func struct {
	Name string
	Args []Expr
}

func (f Func) writeSQL(w *sqlWriter) {
	w.write(f.Name)
	w.write("(")
	for i, a := range f.Args {
		if i > 0 {
			w.write(", ")
		}
		w.expr(a)
	}
	w.write(")")
}

// Cast is CAST(inner AS type).
type Cast struct {
	Inner Expr
	Type  string
}

func (c Cast) writeSQL(w *sqlWriter) {
	w.write("CAST(")
	w.expr(c.Inner)
	w.write(" AS ")
	w.write(c.Type)
	w.write(")")
}

// AtTimeZone is (inner AT TIME ZONE zone).
type AtTimeZone struct {
	Inner Expr
	Zone  Expr
}

func (a AtTimeZone) writeSQL(w *sqlWriter) {
	w.write("(")
	w.expr(a.Inner)
	w.write(" AT TIME ZONE ")
	w.expr(a.Zone)
	w.write(")")
}

// ArrayOf renders ARRAY[...] for containment checks.
type ArrayOf struct {
	Items []Expr
}

func (a ArrayOf) writeSQL(w *sqlWriter) {
	w.write("ARRAY[")
	for i, item := range a.Items {
		if i > 0 {
			w.write(", ")
		}
		w.expr(item)
	}
	w.write("]")
}

// InSubquery is left IN (select).
type InSubquery struct {
	Left  Expr
	Query *Select
}

func (s InSubquery) writeSQL(w *sqlWriter) {
	w.expr(s.Left)
	w.write(" IN (")
	s.Query.writeSQL(w)
	w.write(")")
}

// JoinKind distinguishes inner from outer joins.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT OUTER JOIN"
)

// Join attaches a table to a Select.
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	On    Expr
}

func (j Join) name() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// SelectItem is one projected expression.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Expr Expr
	Desc bool
}

// Select is a complete SELECT statement.
type Select struct {
	Items   []SelectItem
	From    string
	Joins   []Join
	Where   []Expr
	OrderBy []OrderTerm
	Limit   int
	Offset  int
}

// HasJoin reports whether a join with the same table (or alias) is present.
func (s *Select) HasJoin(name string) bool {
	for _, j := range s.Joins {
		if j.name() == name {
			return true
		}
	}
	return false
}

// AddJoin appends j unless a join with the same name already exists.
func (s *Select) AddJoin(j Join) {
	if j.name() == s.From || s.HasJoin(j.name()) {
		return
	}
	s.Joins = append(s.Joins, j)
}

// SQL renders the statement.
func (s *Select) SQL() (string, []any) {
	w := &sqlWriter{}
	s.writeSQL(w)
	return w.sb.String(), w.args
}

func (s *Select) writeSQL(w *sqlWriter) {
	w.write("SELECT ")
	if len(s.Items) == 0 {
		w.write("*")
	}
	for i, item := range s.Items {
		if i > 0 {
			w.write(", ")
		}
		w.expr(item.Expr)
		if item.Alias != "" {
			w.write(" AS ")
			w.write(pq.QuoteIdentifier(item.Alias))
		}
	}
	w.write(" FROM ")
	w.write(pq.QuoteIdentifier(s.From))
	for _, j := range s.Joins {
		w.write(" ")
		w.write(string(j.Kind))
		w.write(" ")
		w.write(pq.QuoteIdentifier(j.Table))
		if j.Alias != "" {
			w.write(" ")
			w.write(pq.QuoteIdentifier(j.Alias))
		}
		w.write(" ON ")
		w.expr(j.On)
	}
	for i, cond := range s.Where {
		if i == 0 {
			w.write(" WHERE ")
		} else {
			w.write(" AND ")
		}
		w.expr(cond)
	}
	for i, o := range s.OrderBy {
		if i == 0 {
			w.write(" ORDER BY ")
		} else {
			w.write(", ")
		}
		w.expr(o.Expr)
		if o.Desc {
			w.write(" DESC")
		} else {
			w.write(" ASC")
		}
	}
	if s.Limit > 0 {
		w.write(fmt.Sprintf(" LIMIT %d", s.Limit))
	}
	if s.Offset > 0 {
		w.write(fmt.Sprintf(" OFFSET %d", s.Offset))
	}
}
