package walker

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/schema"
)

// putScalar little-endian encodes a scalar value of width n into dst.
// Every generation's stream is little-endian; hosts that are big-endian
// would byte-swap here (§4.4 Endianness), but every build target for this
// module already is little-endian, so there is nothing to swap.
func putScalar(dst []byte, n int, v uint64) {
	switch n {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	}
}

func getScalar(src []byte, n int) uint64 {
	switch n {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(src))
	case 4:
		return uint64(binary.LittleEndian.Uint32(src))
	case 8:
		return binary.LittleEndian.Uint64(src)
	}
	return 0
}

func asBytes(v any, want int) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, xerrors.Errorf("walker: field value is %T, want []byte", v)
	}
	if len(b) != want {
		out := make([]byte, want)
		copy(out, b)
		return out, nil
	}
	return b, nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", xerrors.Errorf("walker: field value is %T, want string", v)
	}
	return s, nil
}

func asStrings(v any, want int) ([]string, error) {
	s, ok := v.([]string)
	if !ok {
		return nil, xerrors.Errorf("walker: field value is %T, want []string", v)
	}
	if len(s) != want {
		return nil, xerrors.Errorf("walker: script_string_array has %d elements, schema declares %d", len(s), want)
	}
	return s, nil
}

func asPtr(v any) (*schema.Struct, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(*schema.Struct)
	if !ok {
		return nil, xerrors.Errorf("walker: field value is %T, want *schema.Struct", v)
	}
	return s, nil
}

func asPtrSlice(v any) ([]*schema.Struct, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.([]*schema.Struct)
	if !ok {
		return nil, xerrors.Errorf("walker: field value is %T, want []*schema.Struct", v)
	}
	return s, nil
}
