// scriptnav/helpers_locator_test.go
package scriptnav

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArrayForPos(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		pos       Pos
		kinds     []ArrayType
		wantType  ArrayType
		wantIndex int
		wantNil   bool
		wantStart Pos // start of the expected array
	}{
		{name: "first argument", src: "f(a, b, c)", pos: Pos{0, 2}, wantType: ArrayTuple, wantIndex: 0, wantStart: Pos{0, 1}},
		{name: "end of first argument", src: "f(a, b, c)", pos: Pos{0, 3}, wantType: ArrayTuple, wantIndex: 0, wantStart: Pos{0, 1}},
		{name: "after comma", src: "f(a, b, c)", pos: Pos{0, 4}, wantType: ArrayTuple, wantIndex: 1, wantStart: Pos{0, 1}},
		{name: "second argument", src: "f(a, b, c)", pos: Pos{0, 5}, wantType: ArrayTuple, wantIndex: 1, wantStart: Pos{0, 1}},
		{name: "last argument", src: "f(a, b, c)", pos: Pos{0, 9}, wantType: ArrayTuple, wantIndex: 2, wantStart: Pos{0, 1}},
		{name: "on open paren", src: "f(a, b, c)", pos: Pos{0, 1}, wantNil: true},
		{name: "after close paren", src: "f(a, b, c)", pos: Pos{0, 10}, wantNil: true},
		{name: "statement start", src: "f(a, b, c)", pos: Pos{0, 0}, wantNil: true},
		{name: "empty call", src: "f()", pos: Pos{0, 2}, wantType: ArrayNoArray, wantIndex: 0, wantStart: Pos{0, 1}},
		{name: "trailing comma at eof", src: "f(g(1), ", pos: Pos{0, 8}, wantType: ArrayTuple, wantIndex: 1, wantStart: Pos{0, 1}},
		{name: "zero-width slot at eof", src: "f(g(1),", pos: Pos{0, 7}, wantType: ArrayTuple, wantIndex: 1, wantStart: Pos{0, 1}},
		{name: "innermost wins", src: "obj.method(x, y(", pos: Pos{0, 16}, wantType: ArrayNoArray, wantIndex: 0, wantStart: Pos{0, 15}},
		{name: "multi-line arguments", src: "foo(a,\n    b)", pos: Pos{1, 4}, wantType: ArrayTuple, wantIndex: 1, wantStart: Pos{0, 3}},
		{name: "keyword argument slot", src: "f(a, b=1)", pos: Pos{0, 8}, wantType: ArrayTuple, wantIndex: 1, wantStart: Pos{0, 1}},
		{name: "list element", src: "[a, (b, c)]", pos: Pos{0, 2}, wantType: ArrayList, wantIndex: 0, wantStart: Pos{0, 0}},
		{name: "nested tuple", src: "[a, (b, c)]", pos: Pos{0, 5}, wantType: ArrayTuple, wantIndex: 0, wantStart: Pos{0, 4}},
		{name: "kind filter skips list", src: "[a, (b, c)]", pos: Pos{0, 2}, kinds: []ArrayType{ArrayTuple}, wantNil: true},
		{name: "dict value call", src: "{'k': f(x, y)}", pos: Pos{0, 11}, wantType: ArrayTuple, wantIndex: 1, wantStart: Pos{0, 7}},
		{name: "dict key", src: "{'k': f(x, y)}", pos: Pos{0, 2}, wantNil: true},
		{name: "empty dict", src: "{}", pos: Pos{0, 1}, wantType: ArrayDict, wantIndex: 0, wantStart: Pos{0, 0}},
		{name: "empty dict filtered", src: "{}", pos: Pos{0, 1}, kinds: signatureArrayTypes, wantNil: true},
		{name: "execution of chained call", src: "a(x)[y]", pos: Pos{0, 2}, wantType: ArrayNoArray, wantIndex: 0, wantStart: Pos{0, 1}},
		{name: "continuation before execution", src: "a(x)[y]", pos: Pos{0, 5}, wantType: ArrayList, wantIndex: 0, wantStart: Pos{0, 4}},
		{name: "unclosed empty call", src: "print(", pos: Pos{0, 6}, wantType: ArrayNoArray, wantIndex: 0, wantStart: Pos{0, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := firstStatement(t, tt.src)
			arr, index := ArrayForPos(st, tt.pos, tt.kinds...)
			if again, againIndex := ArrayForPos(st, tt.pos, tt.kinds...); again != arr || againIndex != index {
				t.Fatalf("second lookup = %v index %d, first = %v index %d", again, againIndex, arr, index)
			}
			if tt.wantNil {
				if arr != nil {
					t.Fatalf("ArrayForPos(%q, %s) = %s@%s index %d, want nil", tt.src, tt.pos, arr.Type, arr.Start, index)
				}
				return
			}
			if arr == nil {
				t.Fatalf("ArrayForPos(%q, %s) = nil, want %s", tt.src, tt.pos, tt.wantType)
			}
			if arr.Type != tt.wantType || arr.Start != tt.wantStart {
				t.Errorf("array = %s@%s, want %s@%s", arr.Type, arr.Start, tt.wantType, tt.wantStart)
			}
			if index != tt.wantIndex {
				t.Errorf("index = %d, want %d", index, tt.wantIndex)
			}
		})
	}
}

func TestArrayForPosDegenerateStatements(t *testing.T) {
	if arr, _ := ArrayForPos(nil, Pos{0, 0}); arr != nil {
		t.Errorf("nil statement matched %s", arr.Type)
	}

	// A zero-width statement never matches, whatever it holds.
	arr := &Array{Type: ArrayNoArray, Closed: true}
	arr.Start, arr.End = Pos{0, 0}, Pos{0, 9}
	st := &Statement{Expressions: []Node{arr}}
	st.Start, st.End = Pos{0, 4}, Pos{0, 4}
	arr.SetParent(st)
	if got, _ := ArrayForPos(st, Pos{0, 4}); got != nil {
		t.Errorf("zero-width statement matched %s", got.Type)
	}

	// With a proper range the same array matches.
	st.Start, st.End = Pos{0, 0}, Pos{0, 9}
	if got, index := ArrayForPos(st, Pos{0, 4}); got != arr || index != 0 {
		t.Errorf("ArrayForPos = %v, %d; want the empty array, 0", got, index)
	}
}

// Every cursor position of a statement resolves to the same array and slot on
// repeated lookups, on a clone, and on a fresh parse of the same source.
func TestArrayForPosDeterministic(t *testing.T) {
	sources := []string{
		"f(a, b, c)",
		"obj.method(x, y(",
		"foo(a,\n    b)",
		"d = {'k': g(a, *rest)}.get('k')",
		"a(x)[y](z, ",
		"[a, (b, c)]",
	}
	type hit struct {
		Array *NodeDump
		Index int
	}
	lookup := func(st *Statement, pos Pos) hit {
		arr, index := ArrayForPos(st, pos)
		if arr == nil {
			return hit{Index: index}
		}
		d := Dump(arr)
		return hit{Array: &d, Index: index}
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			st := firstStatement(t, src)
			cp := CloneStatement(st)
			fresh := firstStatement(t, src)
			for line, text := range strings.Split(src, "\n") {
				for col := 0; col <= len(text)+1; col++ {
					pos := Pos{line, col}
					first := lookup(st, pos)
					for name, other := range map[string]*Statement{"repeat": st, "clone": cp, "reparse": fresh} {
						if diff := cmp.Diff(first, lookup(other, pos)); diff != "" {
							t.Errorf("%s at %s differs (-first +%s):\n%s", name, pos, name, diff)
						}
					}
				}
			}
		})
	}
}
