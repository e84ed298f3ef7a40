package store

type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpILike   Op = "ilike"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

type Order struct {
	Column string
	Desc   bool
}

// Query narrows a Fetch. Zero Limit means no limit.
type Query struct {
	Columns []string
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

func Eq(column string, value any) Filter  { return Filter{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }
func Gt(column string, value any) Filter  { return Filter{Column: column, Op: OpGt, Value: value} }
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }
func Lt(column string, value any) Filter  { return Filter{Column: column, Op: OpLt, Value: value} }
func Lte(column string, value any) Filter { return Filter{Column: column, Op: OpLte, Value: value} }

// ILike matches a case-insensitive pattern using % and _ wildcards.
func ILike(column, pattern string) Filter {
	return Filter{Column: column, Op: OpILike, Value: pattern}
}

func In(column string, values ...string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

func IsNull(column string) Filter  { return Filter{Column: column, Op: OpIsNull} }
func NotNull(column string) Filter { return Filter{Column: column, Op: OpNotNull} }

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Where appends filters and returns the query for chaining.
func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}
