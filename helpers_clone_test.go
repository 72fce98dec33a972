// scriptnav/helpers_clone_test.go
package scriptnav

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCloneStatement(t *testing.T) {
	mod := Parse("clone.py", []byte("a, b = f(x)[0].g\n"))
	st := mod.Statements[0].(*Statement)
	cp := CloneStatement(st)

	if cp == st {
		t.Fatal("clone is the original")
	}
	if diff := cmp.Diff(Dump(st), Dump(cp)); diff != "" {
		t.Errorf("clone dump differs (-orig +clone):\n%s", diff)
	}
	if cp.Parent() != Node(mod) {
		t.Error("parent outside the cloned subtree should stay the original module")
	}
	if cp.Scope != Node(mod) {
		t.Error("scope is shared with the original")
	}

	origSeen := make(map[Node]bool)
	WalkNodes(st, func(n Node) bool {
		origSeen[n] = true
		return true
	})
	WalkNodes(cp, func(n Node) bool {
		if origSeen[n] {
			t.Errorf("%s at %s is shared with the original", n.Kind(), n.StartPos())
		}
		if n == Node(cp) {
			return true
		}
		p := n.Parent()
		if p == nil {
			t.Errorf("%s at %s lost its parent", n.Kind(), n.StartPos())
		} else if origSeen[p] {
			t.Errorf("%s at %s still points at an original parent", n.Kind(), n.StartPos())
		}
		if name, ok := n.(*Name); ok && name.Module != mod {
			t.Errorf("name %q does not share the original module", name.Value)
		}
		return true
	})
}

func TestCloneRemapsSetVars(t *testing.T) {
	st := firstStatement(t, "a, b = f(x)")
	cp := CloneStatement(st)

	origVars := st.SetVars()
	vars := cp.SetVars()
	if len(vars) != 2 || len(origVars) != 2 {
		t.Fatalf("SetVars lengths = %d (clone), %d (orig); want 2", len(vars), len(origVars))
	}
	wantA := cp.Expressions[0].(*Call).Name
	wantB := cp.Expressions[2].(*Call).Name
	if vars[0] != Node(wantA) || vars[1] != Node(wantB) {
		t.Error("clone's bound names should be the clone's own name nodes")
	}
	if vars[0] == origVars[0] {
		t.Error("clone's bound names point into the original")
	}
}

// firstNode returns the first node of type T under n in walk order.
func firstNode[T Node](t *testing.T, n Node) T {
	t.Helper()
	var found T
	ok := false
	WalkNodes(n, func(x Node) bool {
		if ok {
			return false
		}
		found, ok = x.(T)
		return !ok
	})
	if !ok {
		t.Fatalf("no %T under %s", found, n.Kind())
	}
	return found
}

func TestCloneIsolation(t *testing.T) {
	const src = "a, b = f(x, [1, 2])[0].g\n"
	tests := []struct {
		name   string
		mutate func(t *testing.T, cp *Statement)
	}{
		{"expressions", func(t *testing.T, cp *Statement) {
			cp.Expressions[0] = &Operator{Value: "+"}
			cp.Expressions = append(cp.Expressions[:1], cp.Expressions[3:]...)
		}},
		{"array values", func(t *testing.T, cp *Statement) {
			arr := cp.Expressions[4].(*Call).Execution
			arr.Values[0] = &Statement{}
			arr.Values = append(arr.Values, &Statement{})
		}},
		{"nested array values", func(t *testing.T, cp *Statement) {
			outer := cp.Expressions[4].(*Call).Execution
			inner := firstNode[*Array](t, outer.Values[1])
			inner.Values = inner.Values[:0]
			inner.Closed = false
		}},
		{"next links", func(t *testing.T, cp *Statement) {
			call := cp.Expressions[4].(*Call)
			call.Next.(*Array).Next = nil
			call.Next = nil
		}},
		{"execution", func(t *testing.T, cp *Statement) {
			call := cp.Expressions[4].(*Call)
			call.Execution.Values = nil
			call.Execution = nil
		}},
		{"set vars slice", func(t *testing.T, cp *Statement) {
			vars := cp.SetVars()
			vars[0] = &Name{Value: "zz"}
			cp.SetField("setVars", vars[:1])
		}},
		{"set vars names", func(t *testing.T, cp *Statement) {
			for _, v := range cp.SetVars() {
				v.(*Name).Value = "zz"
			}
		}},
		{"names", func(t *testing.T, cp *Statement) {
			WalkNodes(cp, func(n Node) bool {
				if name, ok := n.(*Name); ok {
					name.Value += "_renamed"
				}
				return true
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := firstStatement(t, src)
			origVars := append([]Node(nil), st.SetVars()...)
			before := Dump(st)

			cp := CloneStatement(st)
			tt.mutate(t, cp)

			if diff := cmp.Diff(before, Dump(st)); diff != "" {
				t.Errorf("original changed by mutating the clone (-before +after):\n%s", diff)
			}
			after := st.SetVars()
			if len(after) != len(origVars) {
				t.Fatalf("original SetVars = %d names, want %d", len(after), len(origVars))
			}
			for i, v := range after {
				if v != origVars[i] {
					t.Errorf("original SetVars[%d] replaced", i)
				}
			}
			if got := []string{after[0].(*Name).Value, after[1].(*Name).Value}; !cmp.Equal(got, []string{"a", "b"}) {
				t.Errorf("original SetVars names = %v, want [a b]", got)
			}
		})
	}
}

func TestCloneResetsDerivedFields(t *testing.T) {
	st := firstStatement(t, "f(x)")
	call := st.Expressions[0].(*Call)
	call.Results = []any{"evaluated"}

	cp := CloneStatement(st)
	cpCall := cp.Expressions[0].(*Call)
	if cpCall.Results != nil {
		t.Errorf("clone carries derived results %v", cpCall.Results)
	}
	if len(call.Results) != 1 {
		t.Error("original results were touched")
	}
}

func TestCloneModule(t *testing.T) {
	mod := Parse("m.py", []byte("import os.path\nx = [1, 2]\n"))
	cm, ok := CloneNode(mod).(*Module)
	if !ok {
		t.Fatal("clone of a module is not a module")
	}
	if diff := cmp.Diff(Dump(mod), Dump(cm)); diff != "" {
		t.Errorf("module dump differs (-orig +clone):\n%s", diff)
	}
	for i, n := range cm.Statements {
		if n == mod.Statements[i] {
			t.Errorf("statement %d shared with original", i)
		}
		if n.Parent() != Node(cm) {
			t.Errorf("statement %d parent not rewired to the module copy", i)
		}
	}
	im := cm.Statements[0].(*Import)
	if im.Scope != Node(mod) {
		t.Error("import scope should stay the original module")
	}
	origIm := mod.Statements[0].(*Import)
	if im.Namespaces[0][0] == origIm.Namespaces[0][0] {
		t.Error("nested namespace names should be duplicated")
	}
	if im.Namespaces[0][0].Parent() != Node(im) {
		t.Error("namespace name parent not rewired to the import copy")
	}
}

func TestCloneIdempotent(t *testing.T) {
	st := firstStatement(t, "d = {'k': g(a, *rest)}.get('k')")
	once := CloneStatement(st)
	twice := CloneStatement(once)
	if diff := cmp.Diff(Dump(once), Dump(twice)); diff != "" {
		t.Errorf("cloning a clone changed the dump:\n%s", diff)
	}
	if CloneNode(nil) != nil || CloneStatement(nil) != nil {
		t.Error("cloning nil should return nil")
	}
}

func TestNodeSchema(t *testing.T) {
	tests := []struct {
		kind   NodeKind
		policy FieldPolicy
		want   []string
	}{
		{KindCall, PolicyDerived, []string{"results"}},
		{KindStatement, PolicyMemo, []string{"setVars"}},
		{KindStatement, PolicyShare, []string{"scope"}},
		{KindName, PolicyShare, []string{"module"}},
		{KindArray, PolicyClone, []string{"values", "keys", "next", "execution"}},
		{KindModule, PolicyParent, nil},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.policy.String(), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FieldsWithPolicy(tt.kind, tt.policy)); diff != "" {
				t.Errorf("FieldsWithPolicy mismatch (-want +got):\n%s", diff)
			}
		})
	}

	// Every kind with a stored parent lists it before any clone field.
	for kind := KindModule; kind <= KindOperator; kind++ {
		specs := SchemaFor(kind)
		if len(specs) == 0 {
			t.Errorf("%s has no schema", kind)
			continue
		}
		sawClone := false
		for _, spec := range specs {
			switch spec.Policy {
			case PolicyClone:
				sawClone = true
			case PolicyParent:
				if sawClone {
					t.Errorf("%s lists its parent after a clone field", kind)
				}
			}
		}
	}

	specs := SchemaFor(KindCall)
	specs[0].Policy = PolicyDerived
	if SchemaFor(KindCall)[0].Policy == PolicyDerived {
		t.Error("SchemaFor returned the shared manifest")
	}
}
