// scriptnav/helpers_clone.go
// Structural partial clone of syntax subtrees. Analyses that need to rewrite a
// tree work on a private copy so the cached tree stays untouched.
package scriptnav

// cloner holds the original -> copy map of one clone operation.
type cloner struct {
	copies map[Node]Node
}

// CloneNode duplicates the subtree reachable from root through clone fields.
// Parent slots inside the subtree are rewired to the copies; parents outside
// it, shared fields and plain values keep pointing at the originals.
func CloneNode(root Node) Node {
	if root == nil {
		return nil
	}
	c := &cloner{copies: make(map[Node]Node)}
	return c.clone(root)
}

// CloneStatement is CloneNode for a statement root.
func CloneStatement(stmt *Statement) *Statement {
	if stmt == nil {
		return nil
	}
	return CloneNode(stmt).(*Statement)
}

func (c *cloner) clone(orig Node) Node {
	if cp, ok := c.copies[orig]; ok {
		return cp
	}
	if stmt, ok := orig.(*Statement); ok {
		// The memo must be populated before the copy, or the copy carries an
		// empty cache that is never recomputed.
		stmt.SetVars()
	}

	cp := orig.shallowCopy()
	c.copies[orig] = cp

	specs := nodeSchema[orig.Kind()]
	for _, spec := range specs {
		switch spec.Policy {
		case PolicyParent:
			if p := cp.Parent(); p != nil {
				if np, ok := c.copies[p]; ok {
					cp.SetParent(np)
				}
			}
		case PolicyClone:
			cp.SetField(spec.Name, c.value(cp.Field(spec.Name)))
		case PolicyDerived:
			cp.SetField(spec.Name, nil)
		}
	}
	for _, spec := range specs {
		if spec.Policy == PolicyMemo {
			cp.SetField(spec.Name, c.value(cp.Field(spec.Name)))
		}
	}
	return cp
}

// value duplicates a field value: nodes recurse, sequences and nested
// sequences are rebuilt element-wise, anything else is returned as is.
func (c *cloner) value(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Node:
		return c.clone(t)
	case []Node:
		return c.list(t)
	case [][]Node:
		if t == nil {
			return t
		}
		out := make([][]Node, len(t))
		for i, inner := range t {
			out[i] = c.list(inner)
		}
		return out
	}
	return v
}

func (c *cloner) list(in []Node) []Node {
	if in == nil {
		return nil
	}
	out := make([]Node, len(in))
	for i, el := range in {
		if el == nil {
			continue
		}
		out[i] = c.clone(el)
	}
	return out
}
