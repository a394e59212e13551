package binres

import "fmt"

// Res_value data types
const (
	typeNull             = 0x00
	typeReference        = 0x01
	typeAttribute        = 0x02
	typeString           = 0x03
	typeFloat            = 0x04
	typeDimension        = 0x05
	typeFraction         = 0x06
	typeDynamicReference = 0x07
	typeDynamicAttribute = 0x08
	typeIntDec           = 0x10
	typeIntHex           = 0x11
	typeIntBoolean       = 0x12
)

const resValueSize = 8

// ValueKind classifies a decoded attribute or resource value
type ValueKind int

const (
	KindString ValueKind = iota
	KindReference
	KindInteger
	KindBoolean
)

// String returns the string representation of ValueKind
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindReference:
		return "reference"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a typed attribute or resource value.
// Data holds the resource id for references and the raw bits for integers.
type Value struct {
	Kind   ValueKind
	String string
	Data   uint32
}

// Bool reports the value of a boolean
func (v Value) Bool() bool {
	return v.Kind == KindBoolean && v.Data != 0
}

// Text renders the value the way aapt prints attribute values
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.String
	case KindReference:
		return fmt.Sprintf("@0x%08x", v.Data)
	case KindBoolean:
		if v.Data != 0 {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%d", int32(v.Data))
	}
}

// decodeValue maps a Res_value onto a Value. pool resolves string indexes;
// ok is false when a string index could not be resolved.
func decodeValue(dataType uint8, data uint32, pool *StringPool) (Value, bool) {
	switch dataType {
	case typeString:
		s, ok := pool.String(data)
		return Value{Kind: KindString, String: s}, ok
	case typeReference, typeAttribute, typeDynamicReference, typeDynamicAttribute:
		return Value{Kind: KindReference, Data: data}, true
	case typeIntBoolean:
		return Value{Kind: KindBoolean, Data: data}, true
	case typeNull:
		return Value{Kind: KindString}, true
	default:
		// floats, dimensions, fractions, colours and plain integers
		return Value{Kind: KindInteger, Data: data}, true
	}
}
