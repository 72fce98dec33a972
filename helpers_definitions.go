// scriptnav/helpers_definitions.go
// Syntactic lookups: the statement and name under a cursor, and `def`
// statements by name.
package scriptnav

import "strings"

// StatementAt returns the last statement of mod whose range holds pos (end
// inclusive), or nil. Import statements are not returned.
func StatementAt(mod *Module, pos Pos) *Statement {
	if mod == nil {
		return nil
	}
	var found *Statement
	for _, n := range mod.Statements {
		st, ok := n.(*Statement)
		if !ok {
			continue
		}
		if !pos.Less(st.Start) && !st.End.Less(pos) {
			found = st
		}
	}
	return found
}

// NameAt returns the innermost name whose range holds pos (end inclusive).
func NameAt(mod *Module, pos Pos) *Name {
	var found *Name
	WalkNodes(mod, func(n Node) bool {
		if name, ok := n.(*Name); ok && !pos.Less(name.Start) && !name.End.Less(pos) {
			found = name
		}
		return true
	})
	return found
}

// FindDefinitions returns every `def name(...)` statement in mods, in module
// and statement order.
func FindDefinitions(mods []*Module, name string) []Definition {
	var defs []Definition
	for _, mod := range mods {
		for _, n := range mod.Statements {
			st, ok := n.(*Statement)
			if !ok {
				continue
			}
			if d, ok := definitionOf(st); ok && d.Name == name {
				d.Path = mod.Path
				defs = append(defs, d)
			}
		}
	}
	return defs
}

// definitionOf recognises `def name(params)` at the start of a statement.
func definitionOf(st *Statement) (Definition, bool) {
	exprs := st.ExpressionList()
	if len(exprs) < 2 {
		return Definition{}, false
	}
	if op, ok := exprs[0].(*Operator); !ok || op.Value != "def" {
		return Definition{}, false
	}
	call, ok := exprs[1].(*Call)
	if !ok || call.Name == nil || call.Execution == nil {
		return Definition{}, false
	}
	d := Definition{Name: call.Name.Value, Start: call.Name.Start, End: call.Name.End}
	for _, v := range call.Execution.Values {
		if p, ok := v.(*Statement); ok {
			if label := paramLabel(p); label != "" {
				d.Params = append(d.Params, label)
			}
		}
	}
	return d, true
}

// paramLabel renders one parameter: star prefixes, the name, and "=…" when a
// default is present. Annotations are dropped.
func paramLabel(p *Statement) string {
	var b strings.Builder
	named := false
	for _, e := range p.ExpressionList() {
		switch t := e.(type) {
		case *Operator:
			switch {
			case !named && (t.Value == "*" || t.Value == "**" || t.Value == "/"):
				b.WriteString(t.Value)
			case named && t.Value == "=":
				b.WriteString("=…")
				return b.String()
			}
		case *Call:
			if !named && t.Name != nil {
				b.WriteString(t.Name.Value)
				named = true
			}
		}
	}
	return b.String()
}

// moduleCandidates lists the names a module binds: assignment targets, def
// names and imported names.
func moduleCandidates(mod *Module) []Completion {
	seen := make(map[string]bool)
	var out []Completion
	add := func(label string, kind CompletionKind) {
		if label == "" || seen[label] {
			return
		}
		seen[label] = true
		out = append(out, Completion{Label: label, Kind: kind})
	}
	for _, n := range mod.Statements {
		switch st := n.(type) {
		case *Statement:
			if d, ok := definitionOf(st); ok {
				add(d.Name, CompletionFunction)
				continue
			}
			for _, v := range st.SetVars() {
				if name, ok := v.(*Name); ok {
					add(name.Value, CompletionVariable)
				}
			}
		case *Import:
			for _, ns := range st.Namespaces {
				if len(ns) == 0 {
					continue
				}
				idx := 0
				if len(st.From) > 0 {
					idx = len(ns) - 1
				}
				if name, ok := ns[idx].(*Name); ok && name.Value != "*" {
					add(name.Value, CompletionModule)
				}
			}
		}
	}
	return out
}
