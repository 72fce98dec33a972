// scriptnav/syntax_parser.go
// Statement builder over the tree-sitter parse. Tree-sitter decides where
// statements start and end and how imports are spelled; each statement's
// tokens are then folded into chains, arrays, literals and operators. An
// unclosed bracket is closed by a virtual bracket one column past the end of
// its statement, or past the end of input for the last statement.
package scriptnav

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// parsedItem is one statement in source order: an import node of the tree, or
// a token run for the fold.
type parsedItem struct {
	imp  *sitter.Node
	toks []token
}

type parser struct {
	leafReader
	items   []parsedItem
	toks    []token
	i       int
	module  *Module
	eof     Pos
	lastEnd Pos
}

// Parse builds a module from src. It never fails; malformed input yields a
// best-effort tree.
func Parse(path string, src []byte) *Module {
	eof := endOfInput(src)
	p := &parser{leafReader: leafReader{src: src}, module: &Module{Path: path}}
	p.module.End = eof

	tree, err := parseTree(src)
	if err != nil {
		return p.module
	}
	defer tree.Close()
	p.block(tree.RootNode())

	for idx, it := range p.items {
		if it.imp != nil {
			p.module.Statements = append(p.module.Statements, p.importNode(it.imp))
			continue
		}
		if im := p.reparseImport(it.toks); im != nil {
			p.module.Statements = append(p.module.Statements, im)
			continue
		}
		p.eof = it.toks[len(it.toks)-1].end
		if idx == len(p.items)-1 {
			p.eof = eof
		}
		p.toks = append(it.toks, token{kind: tokEOF, start: p.eof, end: p.eof})
		p.i = 0
		p.module.Statements = append(p.module.Statements, p.parseStatement(p.module, neverStop))
	}
	return p.module
}

// endOfInput is the position just past the last byte of src.
func endOfInput(src []byte) Pos {
	var pos Pos
	for _, c := range src {
		if c == '\n' {
			pos.Line++
			pos.Column = 0
		} else {
			pos.Column++
		}
	}
	return pos
}

// =============================================================================
// Statement Structure
// =============================================================================

// block queues the statements directly under n (a module or a block).
func (p *parser) block(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		p.statement(n.Child(i))
	}
}

func (p *parser) statement(n *sitter.Node) {
	switch {
	case importTypes[n.Type()]:
		p.items = append(p.items, parsedItem{imp: n})
	case compoundTypes[n.Type()]:
		p.compound(n)
	default:
		p.queueTokens(p.leaves(n, nil), n.HasError())
	}
}

// compound queues the header of a block statement as its own statement,
// followed by the statements of each block and clause.
func (p *parser) compound(n *sitter.Node) {
	broken := n.HasError()
	var header []token
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case c.Type() == "block":
			p.queueTokens(header, broken)
			header = nil
			p.block(c)
		case compoundTypes[c.Type()]:
			p.queueTokens(header, broken)
			header = nil
			p.statement(c)
		default:
			header = p.leaves(c, header)
		}
	}
	p.queueTokens(header, broken)
}

func (p *parser) queueTokens(toks []token, byLine bool) {
	for _, seg := range p.splitStatements(toks, byLine) {
		p.items = append(p.items, parsedItem{toks: seg})
	}
}

// =============================================================================
// Token Cursor
// =============================================================================

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
		p.lastEnd = t.end
	}
	return t
}

// neverStop lets a statement run to the end of its token run.
func neverStop(token) bool { return false }

func atElementEnd(t token) bool {
	return isOp(t, ",") || isCloser(t)
}

func atKeyEnd(t token) bool {
	return atElementEnd(t) || isOp(t, ":")
}

// =============================================================================
// Statements
// =============================================================================

// parseStatement consumes tokens until stop (or end of input) and returns the
// statement. An immediately stopping statement is empty and zero-width.
func (p *parser) parseStatement(parent Node, stop func(token) bool) *Statement {
	st := &Statement{Scope: p.module}
	st.parent = parent
	st.Start = p.peek().start
	st.End = st.Start

	for {
		t := p.peek()
		if t.kind == tokEOF || stop(t) {
			break
		}
		var n Node
		switch {
		case t.kind == tokName && !isKeyword(t.val):
			n = p.parseNameChain()
		case t.kind == tokNumber:
			p.advance()
			n = p.literal(t, LiteralNumber)
		case t.kind == tokString:
			p.advance()
			n = p.literal(t, LiteralString)
		case isOpener(t):
			arr := p.parseArray()
			p.parseTrailers(arr)
			n = arr
		default:
			p.advance()
			op := &Operator{Value: t.val}
			op.Start, op.End = t.start, t.end
			n = op
		}
		n.SetParent(st)
		st.Expressions = append(st.Expressions, n)
		st.End = p.lastEnd
	}
	return st
}

func (p *parser) literal(t token, kind LiteralKind) *Literal {
	l := &Literal{Value: t.val, LiteralKind: kind}
	l.Start, l.End = t.start, t.end
	return l
}

func (p *parser) name(t token, parent Node) *Name {
	n := &Name{Value: t.val, Module: p.module}
	n.Start, n.End = t.start, t.end
	n.parent = parent
	return n
}

func (p *parser) newCall(t token) *Call {
	c := &Call{}
	c.Name = p.name(t, c)
	c.Start, c.End = t.start, t.end
	return c
}

// =============================================================================
// Chains
// =============================================================================

func (p *parser) parseNameChain() *Call {
	head := p.newCall(p.advance())
	p.parseTrailers(head)
	return head
}

// parseTrailers attaches `.name`, `(...)` and `[...]` continuations to head.
// The first call parenthesis after a name becomes that name's execution; any
// other bracket becomes the next link of the chain.
func (p *parser) parseTrailers(head Element) {
	tail := head
	for {
		t := p.peek()
		switch {
		case isOp(t, ".") && p.peekAt(1).kind == tokName && !isKeyword(p.peekAt(1).val):
			p.advance()
			c := p.newCall(p.advance())
			link(tail, c)
			tail = c
		case isOp(t, "("):
			arr := p.parseArray()
			if c, ok := tail.(*Call); ok && c.Next == nil && c.Execution == nil {
				c.Execution = arr
				arr.parent = c
				if c.End.Less(arr.End) {
					c.End = arr.End
				}
				continue
			}
			link(tail, arr)
			tail = arr
		case isOp(t, "["):
			arr := p.parseArray()
			link(tail, arr)
			tail = arr
		default:
			return
		}
	}
}

func link(tail Element, next Element) {
	switch t := tail.(type) {
	case *Call:
		t.Next = next
	case *Array:
		t.Next = next
	}
	next.SetParent(tail)
}

// =============================================================================
// Arrays
// =============================================================================

// parseArray parses a bracketed construct starting at an opener. Any closer
// ends it; end of input closes it virtually.
func (p *parser) parseArray() *Array {
	open := p.advance()
	arr := &Array{}
	arr.Start = open.start

	brace := open.val == "{"
	keyStop := atElementEnd
	if brace {
		keyStop = atKeyEnd
	}
	hadComma := false
	isDict := false

	for {
		t := p.peek()
		if t.kind == tokEOF {
			arr.End = Pos{Line: p.eof.Line, Column: p.eof.Column + 1}
			p.lastEnd = arr.End
			break
		}
		if isCloser(t) {
			p.advance()
			arr.End = t.end
			arr.Closed = true
			break
		}

		elem := p.parseStatement(arr, keyStop)
		switch {
		case brace && isOp(p.peek(), ":"):
			isDict = true
			p.advance()
			value := p.parseStatement(arr, atElementEnd)
			arr.Keys = append(arr.Keys, elem)
			arr.Values = append(arr.Values, value)
		case !elem.IsEmpty() || isOp(p.peek(), ","):
			arr.Values = append(arr.Values, elem)
		}

		if isOp(p.peek(), ",") {
			comma := p.advance()
			hadComma = true
			next := p.peek()
			if !isDict && (next.kind == tokEOF || isCloser(next)) {
				end := next.start
				if next.kind == tokEOF {
					end = p.eof
				}
				empty := &Statement{Scope: p.module}
				empty.parent = arr
				empty.Start, empty.End = comma.end, end
				arr.Values = append(arr.Values, empty)
			}
		}
	}

	switch open.val {
	case "(":
		if hadComma {
			arr.Type = ArrayTuple
		} else {
			arr.Type = ArrayNoArray
		}
	case "[":
		arr.Type = ArrayList
	case "{":
		if isDict || len(arr.Values) == 0 {
			arr.Type = ArrayDict
		} else {
			arr.Type = ArraySet
		}
	}
	return arr
}

// =============================================================================
// Imports
// =============================================================================

// importNode converts an import statement of the tree. Aliases are dropped;
// only the imported dotted paths are kept.
func (p *parser) importNode(n *sitter.Node) *Import {
	im := &Import{Scope: p.module}
	im.parent = p.module
	im.Start, im.End = p.pos(n.StartPoint()), p.pos(n.EndPoint())

	afterImport := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "import":
			afterImport = true
		case "__future__":
			im.From = []Node{p.nameNode(c, im)}
		case "relative_import":
			for j := 0; j < int(c.ChildCount()); j++ {
				gc := c.Child(j)
				switch gc.Type() {
				case "import_prefix":
					im.Level = strings.Count(gc.Content(p.src), ".")
				case "dotted_name":
					im.From = p.dottedNames(gc, im)
				}
			}
		case "dotted_name":
			if afterImport {
				im.Namespaces = append(im.Namespaces, p.dottedNames(c, im))
			} else {
				im.From = p.dottedNames(c, im)
			}
		case "aliased_import":
			for j := 0; j < int(c.ChildCount()); j++ {
				if gc := c.Child(j); gc.Type() == "dotted_name" {
					im.Namespaces = append(im.Namespaces, p.dottedNames(gc, im))
					break
				}
			}
		case "wildcard_import":
			im.Namespaces = append(im.Namespaces, []Node{p.nameNode(c, im)})
		}
	}
	return im
}

func (p *parser) dottedNames(n *sitter.Node, parent Node) []Node {
	var names []Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == "identifier" {
			names = append(names, p.nameNode(c, parent))
		}
	}
	return names
}

func (p *parser) nameNode(n *sitter.Node, parent Node) *Name {
	name := &Name{Value: n.Content(p.src), Module: p.module}
	name.Start, name.End = p.pos(n.StartPoint()), p.pos(n.EndPoint())
	name.parent = parent
	return name
}

// reparseImport handles an import that sits inside an ERROR region: the
// statement's own text is parsed again and converted when it is a complete
// import on its own.
func (p *parser) reparseImport(toks []token) *Import {
	if first := toks[0]; first.kind != tokName || (first.val != "import" && first.val != "from") {
		return nil
	}
	start, end := toks[0].off, toks[len(toks)-1].endOff
	tree, err := parseTree(p.src[start:end])
	if err != nil {
		return nil
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.ChildCount() == 0 || !importTypes[root.Child(0).Type()] || root.HasError() {
		return nil
	}

	outer := p.leafReader
	p.leafReader = leafReader{src: p.src[start:end], base: toks[0].start, off: start}
	defer func() { p.leafReader = outer }()
	return p.importNode(root.Child(0))
}
