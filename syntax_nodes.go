// scriptnav/syntax_nodes.go
// Syntax tree model consumed by the navigator: positions, node kinds and the
// per-kind field schema that drives structural cloning.
package scriptnav

import (
	"fmt"
	"strings"
)

// =============================================================================
// Positions
// =============================================================================

// Pos is a zero-based line and zero-based byte column.
type Pos struct {
	Line   int
	Column int
}

// Compare returns -1, 0 or 1 ordering p before, equal to or after q.
func (p Pos) Compare(q Pos) int {
	switch {
	case p.Line < q.Line:
		return -1
	case p.Line > q.Line:
		return 1
	case p.Column < q.Column:
		return -1
	case p.Column > q.Column:
		return 1
	}
	return 0
}

// Less reports whether p is strictly before q.
func (p Pos) Less(q Pos) bool { return p.Compare(q) < 0 }

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// =============================================================================
// Node Kinds & Interfaces
// =============================================================================

type NodeKind int

const (
	KindModule NodeKind = iota
	KindStatement
	KindImport
	KindCall
	KindArray
	KindName
	KindLiteral
	KindOperator
)

var nodeKindNames = [...]string{
	KindModule:    "Module",
	KindStatement: "Statement",
	KindImport:    "Import",
	KindCall:      "Call",
	KindArray:     "Array",
	KindName:      "Name",
	KindLiteral:   "Literal",
	KindOperator:  "Operator",
}

func (k NodeKind) String() string {
	if int(k) >= 0 && int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Node is any parsed construct. Field and SetField expose the fields listed in
// nodeSchema so that cloning never needs reflection.
type Node interface {
	Kind() NodeKind
	StartPos() Pos
	EndPos() Pos
	Parent() Node
	SetParent(p Node)
	Field(name string) any
	SetField(name string, value any)
	shallowCopy() Node
}

// Element is a link of an attribute/subscript/call chain (a statement element).
// Calls and arrays are both elements.
type Element interface {
	Node
	chain() (next Node, execution *Array)
	setExecution(a *Array)
}

// nodeBase carries the range and the stored parent slot shared by every kind
// except Module.
type nodeBase struct {
	Start  Pos
	End    Pos
	parent Node
}

func (b *nodeBase) StartPos() Pos    { return b.Start }
func (b *nodeBase) EndPos() Pos      { return b.End }
func (b *nodeBase) Parent() Node     { return b.parent }
func (b *nodeBase) SetParent(p Node) { b.parent = p }

// =============================================================================
// Module
// =============================================================================

// Module is one parsed source unit. Its parent is computed (always nil), so the
// clone schema carries no parent slot for it.
type Module struct {
	Path       string
	Statements []Node
	Start, End Pos
}

func (m *Module) Kind() NodeKind { return KindModule }
func (m *Module) StartPos() Pos  { return m.Start }
func (m *Module) EndPos() Pos    { return m.End }
func (m *Module) Parent() Node   { return nil }
func (m *Module) SetParent(Node) {}
func (m *Module) shallowCopy() Node {
	cp := *m
	return &cp
}

func (m *Module) Field(name string) any {
	switch name {
	case "path":
		return m.Path
	case "statements":
		return m.Statements
	}
	panic(unknownField(m, name))
}

func (m *Module) SetField(name string, value any) {
	switch name {
	case "statements":
		m.Statements, _ = value.([]Node)
	default:
		panic(unknownField(m, name))
	}
}

// =============================================================================
// Statement
// =============================================================================

// Statement is one source statement holding its ordered expression elements.
type Statement struct {
	nodeBase
	Expressions []Node
	Scope       Node // owning module; navigational back-reference

	setVars     []Node
	setVarsDone bool
}

func (s *Statement) Kind() NodeKind { return KindStatement }
func (s *Statement) shallowCopy() Node {
	cp := *s
	return &cp
}

// ExpressionList returns the top-level operator/operand sequence.
func (s *Statement) ExpressionList() []Node { return s.Expressions }

// IsEmpty reports whether the statement holds no expression elements.
func (s *Statement) IsEmpty() bool { return len(s.Expressions) == 0 }

// SetVars returns the names bound by the statement (targets left of an
// assignment operator). The result is memoized on the node.
func (s *Statement) SetVars() []Node {
	if s.setVarsDone {
		return s.setVars
	}
	var names []Node
	for i, expr := range s.Expressions {
		op, ok := expr.(*Operator)
		if !ok || !isAssignOperator(op.Value) {
			continue
		}
		for _, target := range s.Expressions[:i] {
			names = appendTargetNames(names, target)
		}
	}
	s.setVars = names
	s.setVarsDone = true
	return names
}

func isAssignOperator(op string) bool {
	switch op {
	case "=", "+=", "-=", "*=", "/=", "//=", "%=", "**=", "&=", "|=", "^=", ">>=", "<<=", ":=":
		return true
	}
	return false
}

// appendTargetNames collects bare names from an assignment target, descending
// into tuple/list unpacking targets.
func appendTargetNames(names []Node, target Node) []Node {
	switch t := target.(type) {
	case *Call:
		if t.Next == nil && t.Execution == nil && t.Name != nil {
			names = append(names, t.Name)
		}
	case *Array:
		if t.Type == ArrayDict || t.Type == ArraySet {
			return names
		}
		for _, v := range t.Values {
			if st, ok := v.(*Statement); ok {
				for _, e := range st.Expressions {
					names = appendTargetNames(names, e)
				}
			}
		}
	}
	return names
}

func (s *Statement) Field(name string) any {
	switch name {
	case "expressions":
		return s.Expressions
	case "setVars":
		return s.setVars
	case "scope":
		return s.Scope
	}
	panic(unknownField(s, name))
}

func (s *Statement) SetField(name string, value any) {
	switch name {
	case "expressions":
		s.Expressions, _ = value.([]Node)
	case "setVars":
		s.setVars, _ = value.([]Node)
	case "scope":
		s.Scope, _ = value.(Node)
	default:
		panic(unknownField(s, name))
	}
}

// =============================================================================
// Import
// =============================================================================

// Import is `import a.b, c` or `from a.b import c, d`.
type Import struct {
	nodeBase
	From       []Node   // dotted path after `from`, as Names
	Namespaces [][]Node // each imported dotted path, as Names
	Level      int      // leading dots of a relative import
	Scope      Node
}

func (im *Import) Kind() NodeKind { return KindImport }
func (im *Import) shallowCopy() Node {
	cp := *im
	return &cp
}

// TopLevelModules returns the first component of each module the import
// resolves against. Purely relative imports return nothing.
func (im *Import) TopLevelModules() []*Name {
	if im.Level > 0 {
		return nil
	}
	if len(im.From) > 0 {
		if n, ok := im.From[0].(*Name); ok {
			return []*Name{n}
		}
		return nil
	}
	var out []*Name
	for _, ns := range im.Namespaces {
		if len(ns) == 0 {
			continue
		}
		if n, ok := ns[0].(*Name); ok {
			out = append(out, n)
		}
	}
	return out
}

func (im *Import) Field(name string) any {
	switch name {
	case "from":
		return im.From
	case "namespaces":
		return im.Namespaces
	case "level":
		return im.Level
	case "scope":
		return im.Scope
	}
	panic(unknownField(im, name))
}

func (im *Import) SetField(name string, value any) {
	switch name {
	case "from":
		im.From, _ = value.([]Node)
	case "namespaces":
		im.Namespaces, _ = value.([][]Node)
	case "scope":
		im.Scope, _ = value.(Node)
	default:
		panic(unknownField(im, name))
	}
}

// =============================================================================
// Call
// =============================================================================

// Call is a name in a chain, optionally followed by a continuation (Next) and
// an argument list (Execution).
type Call struct {
	nodeBase
	Name      *Name
	Next      Node
	Execution *Array
	Results   []any // memoized evaluation results; never duplicated
}

func (c *Call) Kind() NodeKind { return KindCall }
func (c *Call) shallowCopy() Node {
	cp := *c
	return &cp
}
func (c *Call) chain() (Node, *Array) { return c.Next, c.Execution }
func (c *Call) setExecution(a *Array) { c.Execution = a }

func (c *Call) Field(name string) any {
	switch name {
	case "name":
		if c.Name == nil {
			return nil
		}
		return c.Name
	case "next":
		return c.Next
	case "execution":
		if c.Execution == nil {
			return nil
		}
		return c.Execution
	case "results":
		return c.Results
	}
	panic(unknownField(c, name))
}

func (c *Call) SetField(name string, value any) {
	switch name {
	case "name":
		c.Name, _ = value.(*Name)
	case "next":
		c.Next, _ = value.(Node)
	case "execution":
		c.Execution, _ = value.(*Array)
	case "results":
		c.Results, _ = value.([]any)
	default:
		panic(unknownField(c, name))
	}
}

// =============================================================================
// Array
// =============================================================================

type ArrayType int

const (
	ArrayNoArray ArrayType = iota // parentheses without a comma, including `()`
	ArrayTuple
	ArrayList
	ArrayDict
	ArraySet
)

func (t ArrayType) String() string {
	switch t {
	case ArrayNoArray:
		return "NOARRAY"
	case ArrayTuple:
		return "TUPLE"
	case ArrayList:
		return "LIST"
	case ArrayDict:
		return "DICT"
	case ArraySet:
		return "SET"
	}
	return fmt.Sprintf("ArrayType(%d)", int(t))
}

// Array is a bracketed literal or an argument list. For DICT, Keys and Values
// are parallel; otherwise Values holds the element statements in order.
type Array struct {
	nodeBase
	Type      ArrayType
	Values    []Node
	Keys      []Node
	Next      Node
	Execution *Array
	Closed    bool // false when closed by the virtual bracket at end of input
}

func (a *Array) Kind() NodeKind { return KindArray }
func (a *Array) shallowCopy() Node {
	cp := *a
	return &cp
}
func (a *Array) chain() (Node, *Array) { return a.Next, a.Execution }
func (a *Array) setExecution(x *Array) { a.Execution = x }

// Len is the number of element slots (values for DICT).
func (a *Array) Len() int { return len(a.Values) }

func (a *Array) Field(name string) any {
	switch name {
	case "type":
		return a.Type
	case "values":
		return a.Values
	case "keys":
		return a.Keys
	case "next":
		return a.Next
	case "execution":
		if a.Execution == nil {
			return nil
		}
		return a.Execution
	case "closed":
		return a.Closed
	}
	panic(unknownField(a, name))
}

func (a *Array) SetField(name string, value any) {
	switch name {
	case "values":
		a.Values, _ = value.([]Node)
	case "keys":
		a.Keys, _ = value.([]Node)
	case "next":
		a.Next, _ = value.(Node)
	case "execution":
		a.Execution, _ = value.(*Array)
	default:
		panic(unknownField(a, name))
	}
}

// =============================================================================
// Leaves
// =============================================================================

// Name is an identifier occurrence.
type Name struct {
	nodeBase
	Value  string
	Module *Module // module the name was parsed in
}

func (n *Name) Kind() NodeKind { return KindName }
func (n *Name) shallowCopy() Node {
	cp := *n
	return &cp
}

func (n *Name) Field(name string) any {
	switch name {
	case "value":
		return n.Value
	case "module":
		if n.Module == nil {
			return nil
		}
		return n.Module
	}
	panic(unknownField(n, name))
}

func (n *Name) SetField(name string, value any) {
	switch name {
	case "module":
		n.Module, _ = value.(*Module)
	default:
		panic(unknownField(n, name))
	}
}

type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
)

// Literal is a number or string constant.
type Literal struct {
	nodeBase
	Value       string
	LiteralKind LiteralKind
}

func (l *Literal) Kind() NodeKind { return KindLiteral }
func (l *Literal) shallowCopy() Node {
	cp := *l
	return &cp
}

func (l *Literal) Field(name string) any {
	switch name {
	case "value":
		return l.Value
	case "literalKind":
		return l.LiteralKind
	}
	panic(unknownField(l, name))
}

func (l *Literal) SetField(name string, _ any) { panic(unknownField(l, name)) }

// Operator is an operator, punctuation or keyword token kept in a statement.
type Operator struct {
	nodeBase
	Value string
}

func (o *Operator) Kind() NodeKind { return KindOperator }
func (o *Operator) shallowCopy() Node {
	cp := *o
	return &cp
}

func (o *Operator) Field(name string) any {
	if name == "value" {
		return o.Value
	}
	panic(unknownField(o, name))
}

func (o *Operator) SetField(name string, _ any) { panic(unknownField(o, name)) }

func unknownField(n Node, name string) error {
	return fmt.Errorf("%w: %s has no field %q", ErrMalformedTree, n.Kind(), name)
}

// =============================================================================
// Tree helpers
// =============================================================================

// ModuleOf walks parent links until it reaches the owning module. A detached
// statement falls back to its scope back-reference.
func ModuleOf(n Node) *Module {
	for n != nil {
		if m, ok := n.(*Module); ok {
			return m
		}
		if p := n.Parent(); p != nil {
			n = p
			continue
		}
		switch t := n.(type) {
		case *Statement:
			m, _ := t.Scope.(*Module)
			return m
		case *Import:
			m, _ := t.Scope.(*Module)
			return m
		}
		return nil
	}
	return nil
}

// ChainNames returns the dotted names along a chain starting at head,
// following Next links. Subscript and call continuations are rendered as
// "[]" and "()".
func ChainNames(head Node) []string {
	var names []string
	for n := head; n != nil; {
		switch t := n.(type) {
		case *Call:
			if t.Name != nil {
				names = append(names, t.Name.Value)
			}
			n = t.Next
		case *Array:
			if t.Type == ArrayList {
				names = append(names, "[]")
			} else {
				names = append(names, "()")
			}
			n = t.Next
		default:
			n = nil
		}
	}
	return names
}

// CalleeName renders ChainNames as a dotted expression.
func CalleeName(head Node) string {
	var b strings.Builder
	for i, part := range ChainNames(head) {
		if i > 0 && part != "[]" && part != "()" {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
