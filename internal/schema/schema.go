// Package schema declares the data-driven field tables that describe one
// asset payload's on-disk layout for a given (generation, kind). It is the
// "catalog" design note of §9: a static registry of
// (generation, kind) -> StructType, never an inheritance hierarchy.
//
// The concrete per-generation field tables (~30-80 asset kinds, each with
// its own struct layout) are outside this module's scope (§1 Non-goals);
// this package supplies only the field-kind vocabulary such tables are
// built from. It declares no StructTypes and holds no registry of its own;
// the stringtable loader, for instance, declares its own StructType.
package schema

// Kind is a field's on-disk representation, matching the table in §4.4.
type Kind int

const (
	Scalar Kind = iota
	String
	Array
	Ptr
	PtrArray
	AssetRef
	ScriptString
	ScriptStringArray
	Blob
	Union
	Custom
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case String:
		return "string"
	case Array:
		return "array"
	case Ptr:
		return "ptr"
	case PtrArray:
		return "ptr_array"
	case AssetRef:
		return "asset_ref"
	case ScriptString:
		return "script_string"
	case ScriptStringArray:
		return "script_string_array"
	case Blob:
		return "blob"
	case Union:
		return "union"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Field describes one field of a StructType, in declaration order. Not
// every attribute applies to every Kind; see the per-Kind comments.
type Field struct {
	Name string
	Kind Kind

	// Size is the byte width of a Scalar, or of one element of an Array.
	Size int

	// Len is the fixed element count of an Array or ScriptStringArray.
	Len int

	// LenField names a sibling field (by index into the same StructType,
	// resolved into lenFieldIndex by StructType.Resolve) that holds the
	// element count of a PtrArray or the byte length of a Blob.
	LenField      string
	lenFieldIndex int

	// Block overrides the destination block for this field; -1 means "use
	// whatever block is current on the allocator stack".
	Block int
	// Align overrides the field's alignment; 0 means the block's default.
	Align int

	// Elem is the pointee StructType for Ptr and PtrArray fields.
	Elem *StructType
	// FollowInline requests the "follow-inline" placement policy of
	// §4.3 step 2 for a Ptr field: the target is placed immediately after
	// this field rather than enqueued.
	FollowInline bool

	// AssetKind is the pool kind an AssetRef field resolves against.
	AssetKind int
	// Weak marks an AssetRef as non-fatal when unresolved (§7
	// MissingDependency is a warning, not fatal, for weak references).
	Weak bool

	// TagField names the sibling field (by index, like LenField) that
	// selects a Union's active Variant.
	TagField      string
	tagFieldIndex int
	Variants      map[int]*StructType

	// CustomID names the hand-written handler a Custom field delegates
	// to; see the walker package's RegisterCustom.
	CustomID string
}

// StructType is one (generation, kind)'s field table plus an optional
// finalize hook invoked after every field has been loaded or dumped
// (§4.4 Backpatching).
type StructType struct {
	Name     string
	Fields   []Field
	Align    int
	Finalize func(*Struct) error
}

// Resolve fills in lenFieldIndex/tagFieldIndex from the human-authored
// LenField/TagField names, and must be called once after a StructType
// literal is built, before the type is walked.
func (t *StructType) Resolve() {
	index := make(map[string]int, len(t.Fields))
	for i, f := range t.Fields {
		index[f.Name] = i
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.LenField != "" {
			f.lenFieldIndex = index[f.LenField]
		}
		if f.TagField != "" {
			f.tagFieldIndex = index[f.TagField]
		}
	}
}

// Struct is an instance of a StructType: a parallel slice of decoded field
// values, one per entry of Type.Fields.
type Struct struct {
	Type   *StructType
	Values []any
}

// NewStruct allocates a zero-valued Struct for t, with Values sized to
// t.Fields but left nil; loaders fill them in field by field.
func NewStruct(t *StructType) *Struct {
	return &Struct{Type: t, Values: make([]any, len(t.Fields))}
}

func (s *Struct) fieldIndex(name string) int {
	for i, f := range s.Type.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Set stores v under the named field.
func (s *Struct) Set(name string, v any) {
	if i := s.fieldIndex(name); i >= 0 {
		s.Values[i] = v
	}
}

// Get returns the value stored under the named field.
func (s *Struct) Get(name string) any {
	if i := s.fieldIndex(name); i >= 0 {
		return s.Values[i]
	}
	return nil
}

// intValue reads a LenField/TagField value as an int, covering the integer
// types a length or tag field is typically stored as (the walker stores
// Scalar values as uint64).
func intValue(v any) int {
	switch x := v.(type) {
	case uint64:
		return int(x)
	case int:
		return x
	case uint16:
		return int(x)
	default:
		return 0
	}
}

// LenFieldValue returns the resolved element count for a PtrArray/Blob
// field, read from its sibling LenField.
func (t *StructType) LenFieldValue(s *Struct, f *Field) int {
	return intValue(s.Values[f.lenFieldIndex])
}

// TagFieldValue returns the resolved tag for a Union field, read from its
// sibling TagField.
func (t *StructType) TagFieldValue(s *Struct, f *Field) int {
	return intValue(s.Values[f.tagFieldIndex])
}

// pointerWidth is the on-disk size of every tagged stream offset (§3): a
// string, ptr, ptr_array, blob or asset_ref field all occupy one of these
// in their enclosing struct's inline layout, whatever they point at.
const pointerWidth = 4

// scriptStringWidth is the on-disk size of one script-string id (§3).
const scriptStringWidth = 2

// FieldWidth returns the number of bytes f occupies inline in its
// enclosing struct, not counting whatever it points to.
func FieldWidth(f *Field) int {
	switch f.Kind {
	case Scalar:
		return f.Size
	case Array:
		return f.Size * f.Len
	case String, Ptr, PtrArray, Blob, AssetRef:
		return pointerWidth
	case ScriptString:
		return scriptStringWidth
	case ScriptStringArray:
		return f.Len * scriptStringWidth
	case Union:
		max := 0
		for _, variant := range f.Variants {
			if sz := SizeOf(variant); sz > max {
				max = sz
			}
		}
		return max
	case Custom:
		return f.Size
	default:
		return 0
	}
}

// SizeOf returns the total inline byte width of an instance of t: the sum
// of its fields' FieldWidth, in declaration order. This module intentionally
// does not insert compiler-style inter-field padding; a StructType that
// needs it declares explicit padding as an Array field, the way hand-written
// field tables in the original tool already do for reserved bytes.
func SizeOf(t *StructType) int {
	size := 0
	for i := range t.Fields {
		size += FieldWidth(&t.Fields[i])
	}
	return size
}
