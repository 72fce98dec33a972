// scriptnav/syntax_tokens.go
// Tree-sitter front end. Sources are parsed with the Python grammar; the
// statement fold in syntax_parser.go works on the leaves of that tree. ERROR
// regions contribute their leaves unchanged and MISSING nodes are dropped, so
// an unclosed bracket stays open until the fold closes it virtually.
package scriptnav

import (
	"bytes"
	"context"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

type tokenKind int

const (
	tokName tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokEOF
)

type token struct {
	kind   tokenKind
	val    string
	start  Pos
	end    Pos
	off    int // byte offsets into the parsed source
	endOff int
}

var keywords = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"break": true, "class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true,
	"pass": true, "raise": true, "return": true, "try": true, "while": true,
	"with": true, "yield": true,
}

func isKeyword(s string) bool { return keywords[s] }

// Statements owning a block are split into their header and the statements of
// the block.
var compoundTypes = map[string]bool{
	"function_definition":  true,
	"class_definition":     true,
	"decorated_definition": true,
	"if_statement":         true,
	"elif_clause":          true,
	"else_clause":          true,
	"for_statement":        true,
	"while_statement":      true,
	"try_statement":        true,
	"except_clause":        true,
	"except_group_clause":  true,
	"finally_clause":       true,
	"with_statement":       true,
	"match_statement":      true,
	"case_clause":          true,
}

var importTypes = map[string]bool{
	"import_statement":        true,
	"import_from_statement":   true,
	"future_import_statement": true,
}

// parseTree runs the Python grammar over src. A fresh tree-sitter parser is
// used per call; parsers are not safe for concurrent use.
func parseTree(src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return parser.ParseCtx(context.Background(), nil, src)
}

// leafReader turns tree-sitter nodes into tokens. base shifts positions when
// the tree was parsed from a slice of a larger source.
type leafReader struct {
	src  []byte
	base Pos
	off  int
}

func (lr *leafReader) pos(pt sitter.Point) Pos {
	if pt.Row == 0 {
		return Pos{Line: lr.base.Line, Column: lr.base.Column + int(pt.Column)}
	}
	return Pos{Line: lr.base.Line + int(pt.Row), Column: int(pt.Column)}
}

func (lr *leafReader) leafToken(n *sitter.Node, kind tokenKind) token {
	return token{
		kind:   kind,
		val:    n.Content(lr.src),
		start:  lr.pos(n.StartPoint()),
		end:    lr.pos(n.EndPoint()),
		off:    lr.off + int(n.StartByte()),
		endOff: lr.off + int(n.EndByte()),
	}
}

// leaves appends the tokens under n in source order. Strings and numbers are
// single tokens; comments and MISSING nodes produce nothing.
func (lr *leafReader) leaves(n *sitter.Node, out []token) []token {
	if n == nil || n.IsMissing() {
		return out
	}
	switch n.Type() {
	case "comment", "line_continuation":
		return out
	case "string", "string_start", "string_content", "string_end", "escape_sequence":
		return append(out, lr.leafToken(n, tokString))
	case "integer", "float":
		return append(out, lr.leafToken(n, tokNumber))
	}
	if n.ChildCount() == 0 {
		if n.StartByte() == n.EndByte() {
			return out
		}
		t := lr.leafToken(n, tokOp)
		t.kind = classifyLeaf(t.val)
		return append(out, t)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		out = lr.leaves(n.Child(i), out)
	}
	return out
}

// classifyLeaf sorts a leaf the grammar gave no literal type: keywords and
// identifiers are names, anything else is an operator.
func classifyLeaf(val string) tokenKind {
	if len(val) == 0 {
		return tokOp
	}
	c := val[0]
	switch {
	case c == '_' || c >= 0x80 || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		return tokName
	case c >= '0' && c <= '9':
		return tokNumber
	}
	return tokOp
}

// splitStatements cuts a token run at `;` outside brackets. With byLine it
// also cuts at line breaks outside brackets unless a backslash joins the
// lines; that is only needed for runs tree-sitter could not parse, which can
// span several statements.
func (lr *leafReader) splitStatements(toks []token, byLine bool) [][]token {
	var segs [][]token
	var cur []token
	flush := func() {
		if len(cur) > 0 {
			segs = append(segs, cur)
			cur = nil
		}
	}
	depth := 0
	for _, t := range toks {
		if depth == 0 && isOp(t, ";") {
			flush()
			continue
		}
		if byLine && depth == 0 && len(cur) > 0 {
			prev := cur[len(cur)-1]
			if t.start.Line > prev.end.Line && !lr.joined(prev, t) {
				flush()
			}
		}
		cur = append(cur, t)
		switch {
		case isOpener(t):
			depth++
		case isCloser(t) && depth > 0:
			depth--
		}
	}
	flush()
	return segs
}

// joined reports whether a backslash continuation sits between two tokens.
func (lr *leafReader) joined(prev, next token) bool {
	from, to := prev.endOff-lr.off, next.off-lr.off
	if from < 0 || to > len(lr.src) || from > to {
		return false
	}
	return bytes.IndexByte(lr.src[from:to], '\\') >= 0
}

func isOpener(t token) bool {
	return t.kind == tokOp && (t.val == "(" || t.val == "[" || t.val == "{")
}

func isCloser(t token) bool {
	return t.kind == tokOp && (t.val == ")" || t.val == "]" || t.val == "}")
}

func isOp(t token, val string) bool { return t.kind == tokOp && t.val == val }

// Identifiers returns the sorted set of non-keyword identifiers in src.
func Identifiers(src []byte) []string {
	tree, err := parseTree(src)
	if err != nil {
		return nil
	}
	defer tree.Close()

	lr := &leafReader{src: src}
	seen := make(map[string]struct{})
	for _, t := range lr.leaves(tree.RootNode(), nil) {
		if t.kind == tokName && !isKeyword(t.val) {
			seen[t.val] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
