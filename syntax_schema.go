// scriptnav/syntax_schema.go
// Field manifest used by structural cloning. Every node kind lists the fields
// that exist on it and how a clone treats each one.
package scriptnav

// FieldPolicy says how CloneNode handles one field of a node.
type FieldPolicy int

const (
	// PolicyCopy fields are values copied by the shallow copy.
	PolicyCopy FieldPolicy = iota
	// PolicyParent is the stored parent slot; it is rewritten to the copy of the
	// original parent when that parent is part of the clone.
	PolicyParent
	// PolicyShare fields keep pointing at the original object.
	PolicyShare
	// PolicyClone fields hold nodes, sequences of nodes or nested sequences of
	// nodes that are duplicated structurally.
	PolicyClone
	// PolicyMemo fields hold memoized node lists that reference nodes owned
	// elsewhere in the subtree. They are remapped after containment fields.
	PolicyMemo
	// PolicyDerived fields hold memoized results the copy recomputes; the
	// copy starts empty.
	PolicyDerived
)

func (p FieldPolicy) String() string {
	switch p {
	case PolicyCopy:
		return "copy"
	case PolicyParent:
		return "parent"
	case PolicyShare:
		return "share"
	case PolicyClone:
		return "clone"
	case PolicyMemo:
		return "memo"
	case PolicyDerived:
		return "derived"
	}
	return "unknown"
}

// FieldSpec names one field of a node kind and its clone policy.
type FieldSpec struct {
	Name   string
	Policy FieldPolicy
}

var positionFields = []FieldSpec{
	{"start", PolicyCopy},
	{"end", PolicyCopy},
}

func withPositions(specs ...FieldSpec) []FieldSpec {
	out := make([]FieldSpec, 0, len(positionFields)+len(specs))
	out = append(out, positionFields...)
	return append(out, specs...)
}

// nodeSchema is the clone manifest. Order matters only in that the parent
// slot is listed first; memo fields are always applied last.
var nodeSchema = map[NodeKind][]FieldSpec{
	KindModule: withPositions(
		FieldSpec{"path", PolicyCopy},
		FieldSpec{"statements", PolicyClone},
	),
	KindStatement: withPositions(
		FieldSpec{"parent", PolicyParent},
		FieldSpec{"expressions", PolicyClone},
		FieldSpec{"setVars", PolicyMemo},
		FieldSpec{"scope", PolicyShare},
	),
	KindImport: withPositions(
		FieldSpec{"parent", PolicyParent},
		FieldSpec{"from", PolicyClone},
		FieldSpec{"namespaces", PolicyClone},
		FieldSpec{"level", PolicyCopy},
		FieldSpec{"scope", PolicyShare},
	),
	KindCall: withPositions(
		FieldSpec{"parent", PolicyParent},
		FieldSpec{"name", PolicyClone},
		FieldSpec{"next", PolicyClone},
		FieldSpec{"execution", PolicyClone},
		FieldSpec{"results", PolicyDerived},
	),
	KindArray: withPositions(
		FieldSpec{"parent", PolicyParent},
		FieldSpec{"type", PolicyCopy},
		FieldSpec{"values", PolicyClone},
		FieldSpec{"keys", PolicyClone},
		FieldSpec{"next", PolicyClone},
		FieldSpec{"execution", PolicyClone},
		FieldSpec{"closed", PolicyCopy},
	),
	KindName: withPositions(
		FieldSpec{"parent", PolicyParent},
		FieldSpec{"value", PolicyCopy},
		FieldSpec{"module", PolicyShare},
	),
	KindLiteral: withPositions(
		FieldSpec{"parent", PolicyParent},
		FieldSpec{"value", PolicyCopy},
		FieldSpec{"literalKind", PolicyCopy},
	),
	KindOperator: withPositions(
		FieldSpec{"parent", PolicyParent},
		FieldSpec{"value", PolicyCopy},
	),
}

// SchemaFor returns the clone manifest of a node kind.
func SchemaFor(kind NodeKind) []FieldSpec {
	specs := nodeSchema[kind]
	out := make([]FieldSpec, len(specs))
	copy(out, specs)
	return out
}

// FieldsWithPolicy lists the field names of a kind that use the given policy.
func FieldsWithPolicy(kind NodeKind, policy FieldPolicy) []string {
	var names []string
	for _, spec := range nodeSchema[kind] {
		if spec.Policy == policy {
			names = append(names, spec.Name)
		}
	}
	return names
}
