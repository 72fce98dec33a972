// scriptnav/syntax_dump.go
// Tree traversal and acyclic dumps of syntax trees.
package scriptnav

import "fmt"

// WalkNodes visits n and every node reachable through clone fields in
// pre-order. Returning false from fn skips the node's children.
func WalkNodes(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, spec := range nodeSchema[n.Kind()] {
		if spec.Policy != PolicyClone {
			continue
		}
		switch v := n.Field(spec.Name).(type) {
		case Node:
			WalkNodes(v, fn)
		case []Node:
			for _, el := range v {
				WalkNodes(el, fn)
			}
		case [][]Node:
			for _, inner := range v {
				for _, el := range inner {
					WalkNodes(el, fn)
				}
			}
		}
	}
}

// NodeDump is an acyclic snapshot of a subtree: parents and shared
// back-references are left out, so dumps of a tree and of its clone compare
// equal.
type NodeDump struct {
	Kind   string
	Start  Pos
	End    Pos
	Value  string      `json:",omitempty"`
	Fields []FieldDump `json:",omitempty"`
}

// FieldDump holds the dumped nodes of one clone field. Nested sequences are
// split into one FieldDump per inner sequence, named "field[i]".
type FieldDump struct {
	Name  string
	Nodes []NodeDump
}

// Dump snapshots the subtree rooted at n.
func Dump(n Node) NodeDump {
	d := NodeDump{Kind: n.Kind().String(), Start: n.StartPos(), End: n.EndPos(), Value: dumpValue(n)}
	for _, spec := range nodeSchema[n.Kind()] {
		if spec.Policy != PolicyClone {
			continue
		}
		switch v := n.Field(spec.Name).(type) {
		case Node:
			d.Fields = append(d.Fields, FieldDump{Name: spec.Name, Nodes: []NodeDump{Dump(v)}})
		case []Node:
			if len(v) > 0 {
				d.Fields = append(d.Fields, FieldDump{Name: spec.Name, Nodes: dumpList(v)})
			}
		case [][]Node:
			for i, inner := range v {
				d.Fields = append(d.Fields, FieldDump{Name: fmt.Sprintf("%s[%d]", spec.Name, i), Nodes: dumpList(inner)})
			}
		}
	}
	return d
}

func dumpList(nodes []Node) []NodeDump {
	out := make([]NodeDump, 0, len(nodes))
	for _, el := range nodes {
		if el != nil {
			out = append(out, Dump(el))
		}
	}
	return out
}

func dumpValue(n Node) string {
	switch t := n.(type) {
	case *Module:
		return t.Path
	case *Name:
		return t.Value
	case *Literal:
		return t.Value
	case *Operator:
		return t.Value
	case *Array:
		if !t.Closed {
			return t.Type.String() + " unclosed"
		}
		return t.Type.String()
	case *Import:
		if t.Level > 0 {
			return fmt.Sprintf("level=%d", t.Level)
		}
	}
	return ""
}
