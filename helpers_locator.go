// scriptnav/helpers_locator.go
// Position locator: finds the innermost bracketed construct around a cursor
// and the element slot the cursor is in.
package scriptnav

// ArrayForPos searches stmt for the innermost array whose range holds pos and
// returns it with the slot index. When kinds is non-empty only arrays of those
// types match. A nil array means no match.
func ArrayForPos(stmt *Statement, pos Pos, kinds ...ArrayType) (*Array, int) {
	if stmt == nil {
		return nil, 0
	}
	// Kept as is: for forward ranges this only fires on zero-width or
	// inverted statements.
	if !stmt.Start.Less(pos) && !pos.Less(stmt.End) {
		return nil, 0
	}

	for _, expr := range stmt.ExpressionList() {
		var arr *Array
		var index int
		switch e := expr.(type) {
		case *Array:
			arr, index = searchArray(e, pos, kinds)
		case Element:
			arr, index = searchCall(e, pos, kinds)
		}
		if arr != nil {
			return arr, index
		}
	}
	return nil, 0
}

func searchArray(arr *Array, pos Pos, kinds []ArrayType) (*Array, int) {
	if arr.Type == ArrayDict {
		for _, group := range [][]Node{arr.Values, arr.Keys} {
			for _, el := range group {
				st, ok := el.(*Statement)
				if !ok {
					continue
				}
				if found, index := ArrayForPos(st, pos, kinds...); found != nil {
					return found, index
				}
			}
		}
	} else {
		for i, el := range arr.Values {
			st, ok := el.(*Statement)
			if !ok {
				continue
			}
			if found, index := ArrayForPos(st, pos, kinds...); found != nil {
				return found, index
			}
			// arr.start < pos <= element.end
			if arr.Start.Less(pos) && !st.End.Less(pos) && arrayTypeAllowed(arr.Type, kinds) {
				return arr, i
			}
		}
	}
	if arr.Len() == 0 && arr.Start.Less(pos) && pos.Less(arr.End) && arrayTypeAllowed(arr.Type, kinds) {
		return arr, 0
	}
	return nil, 0
}

// searchCall follows a chain, preferring the continuation over the argument
// list attached at this link.
func searchCall(el Element, pos Pos, kinds []ArrayType) (*Array, int) {
	var arr *Array
	index := 0
	next, execution := el.chain()
	if next != nil {
		switch n := next.(type) {
		case *Array:
			arr, index = searchArray(n, pos, kinds)
		case Element:
			arr, index = searchCall(n, pos, kinds)
		}
	}
	if arr == nil && execution != nil {
		arr, index = searchArray(execution, pos, kinds)
	}
	return arr, index
}

func arrayTypeAllowed(t ArrayType, kinds []ArrayType) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == t {
			return true
		}
	}
	return false
}
