// scriptnav/helpers_signature.go
// Call-signature context: which call and which argument slot a cursor is in.
package scriptnav

// signatureArrayTypes are the argument-list shapes a call can have.
var signatureArrayTypes = []ArrayType{ArrayTuple, ArrayNoArray}

// SearchCallSignatures returns the call whose argument list holds pos, the
// zero-based argument index and whether the slot is a keyword argument (always
// false for now). The returned call belongs to a private clone of stmt: the
// clone is pruned below the cursor and is not reachable from the cached tree.
func SearchCallSignatures(stmt *Statement, pos Pos) (*Call, int, bool) {
	if stmt == nil {
		return nil, 0, false
	}
	stmt = CloneStatement(stmt)

	arr, index := ArrayForPos(stmt, pos, signatureArrayTypes...)
	if arr == nil {
		return nil, 0, false
	}
	owner, ok := arr.Parent().(Element)
	if !ok {
		return nil, 0, false
	}

	var head Node = owner
	for {
		up, ok := head.Parent().(Element)
		if !ok {
			break
		}
		head = up
	}

	// Cut what hangs below the cursor so evaluating the chain yields the
	// callable instead of the result of the call being typed. Trailers after
	// an execution hang off the owner's next link, so both go. A list reached
	// through a next link (`f(x)(y`) stays as the "()" of the called result.
	if _, exec := owner.chain(); exec == arr {
		owner.setExecution(nil)
		owner.SetField("next", nil)
	} else {
		arr.setExecution(nil)
		arr.SetField("next", nil)
	}

	call, _ := head.(*Call)
	return call, index, false
}
