package dbengine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Constraint expressions. Only constant expressions occur in constraint
// definitions today (NOT NULL carries a boolean constant, DEFAULT carries
// the default value); the serialized form is what gets content-hashed and
// interned, so it must be stable.

type VariantType uint32

const (
	VariantNull VariantType = iota
	VariantBool
	VariantInt64
	VariantDouble
	VariantString
	VariantBinary
)

type Variant struct {
	Type   VariantType
	Bool   bool
	Int64  int64
	Double float64
	Str    string
	Bytes  []byte
}

func NullVariant() Variant            { return Variant{Type: VariantNull} }
func BoolVariant(v bool) Variant      { return Variant{Type: VariantBool, Bool: v} }
func Int64Variant(v int64) Variant    { return Variant{Type: VariantInt64, Int64: v} }
func DoubleVariant(v float64) Variant { return Variant{Type: VariantDouble, Double: v} }
func StringVariant(v string) Variant  { return Variant{Type: VariantString, Str: v} }
func BinaryVariant(v []byte) Variant  { return Variant{Type: VariantBinary, Bytes: v} }

const (
	exprKindConstant = 1
)

var errBadExpression = errors.New("malformed constraint expression")

type Expression interface {
	// Serialize produces the stable binary form used for interning.
	Serialize() []byte
}

type ConstantExpression struct {
	Value Variant
}

func NewConstantExpression(v Variant) *ConstantExpression {
	return &ConstantExpression{Value: v}
}

func (e *ConstantExpression) Serialize() []byte {
	buf := make([]byte, 0, 16)
	buf = binary.AppendUvarint(buf, exprKindConstant)
	buf = binary.AppendUvarint(buf, uint64(e.Value.Type))
	switch e.Value.Type {
	case VariantNull:
	case VariantBool:
		if e.Value.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case VariantInt64:
		buf = binary.AppendVarint(buf, e.Value.Int64)
	case VariantDouble:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.Value.Double))
	case VariantString:
		buf = binary.AppendUvarint(buf, uint64(len(e.Value.Str)))
		buf = append(buf, e.Value.Str...)
	case VariantBinary:
		buf = binary.AppendUvarint(buf, uint64(len(e.Value.Bytes)))
		buf = append(buf, e.Value.Bytes...)
	}
	return buf
}

// DeserializeExpression parses the serialized form and returns the expression
// together with the number of consumed bytes.
func DeserializeExpression(data []byte) (Expression, int, error) {
	kind, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, 0, errBadExpression
	}
	if kind != exprKindConstant {
		return nil, 0, fmt.Errorf("unsupported expression kind %d", kind)
	}
	consumed := n

	vt, n := binary.Uvarint(data[consumed:])
	if n <= 0 {
		return nil, 0, errBadExpression
	}
	consumed += n

	v := Variant{Type: VariantType(vt)}
	switch v.Type {
	case VariantNull:
	case VariantBool:
		if consumed >= len(data) {
			return nil, 0, errBadExpression
		}
		v.Bool = data[consumed] != 0
		consumed++
	case VariantInt64:
		i, n := binary.Varint(data[consumed:])
		if n <= 0 {
			return nil, 0, errBadExpression
		}
		v.Int64 = i
		consumed += n
	case VariantDouble:
		if consumed+8 > len(data) {
			return nil, 0, errBadExpression
		}
		v.Double = math.Float64frombits(binary.LittleEndian.Uint64(data[consumed:]))
		consumed += 8
	case VariantString:
		size, n := binary.Uvarint(data[consumed:])
		if n <= 0 || consumed+n+int(size) > len(data) {
			return nil, 0, errBadExpression
		}
		consumed += n
		v.Str = string(data[consumed : consumed+int(size)])
		consumed += int(size)
	case VariantBinary:
		size, n := binary.Uvarint(data[consumed:])
		if n <= 0 || consumed+n+int(size) > len(data) {
			return nil, 0, errBadExpression
		}
		consumed += n
		v.Bytes = append([]byte(nil), data[consumed:consumed+int(size)]...)
		consumed += int(size)
	default:
		return nil, 0, fmt.Errorf("unsupported variant type %d", vt)
	}
	return &ConstantExpression{Value: v}, consumed, nil
}
