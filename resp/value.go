package resp

import (
	"strconv"
)

// Kind enumerates RESP reply kinds. RESP2 kinds come first, the RESP3
// extensions after them.
type Kind uint8

const (
	KindNull Kind = iota
	KindSimpleString
	KindError
	KindInteger
	KindBulkString
	KindArray
	KindDouble
	KindBoolean
	KindMap
	KindSet
	KindPush
	KindBigNumber
	KindVerbatimString
)

var kindNames = map[Kind]string{
	KindNull:           "Null",
	KindSimpleString:   "SimpleString",
	KindError:          "Error",
	KindInteger:        "Integer",
	KindBulkString:     "BulkString",
	KindArray:          "Array",
	KindDouble:         "Double",
	KindBoolean:        "Boolean",
	KindMap:            "Map",
	KindSet:            "Set",
	KindPush:           "Push",
	KindBigNumber:      "BigNumber",
	KindVerbatimString: "VerbatimString",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Pair is one key/value entry of a Map reply. Pairs keep the server's
// order; Redis guarantees nothing about it, so neither do we.
type Pair struct {
	Key   Value
	Value Value
}

// Value is one parsed RESP reply. The zero Value is Null.
//
// Accessors never panic: IsX reports the tag, AsX returns the carried
// payload or a zero value when the tag does not match. Callers that care
// about exactness check the tag first.
type Value struct {
	kind Kind

	str   string // SimpleString, Error, BigNumber, VerbatimString body
	verb  string // VerbatimString format, e.g. "txt"
	bulk  []byte // BulkString
	num   int64  // Integer
	fnum  float64
	bval  bool
	arr   []Value // Array, Set, Push
	pairs []Pair  // Map
}

// Constructors. The parser uses these; tests and the testbed encoder do too.

func Null() Value                 { return Value{} }
func SimpleString(s string) Value { return Value{kind: KindSimpleString, str: s} }
func ErrorString(s string) Value  { return Value{kind: KindError, str: s} }
func Int(v int64) Value           { return Value{kind: KindInteger, num: v} }
func Bulk(b []byte) Value         { return Value{kind: KindBulkString, bulk: b} }
func BulkString(s string) Value   { return Value{kind: KindBulkString, bulk: []byte(s)} }
func Double(f float64) Value      { return Value{kind: KindDouble, fnum: f} }
func Bool(b bool) Value           { return Value{kind: KindBoolean, bval: b} }
func Array(vs ...Value) Value     { return Value{kind: KindArray, arr: vs} }
func Set(vs ...Value) Value       { return Value{kind: KindSet, arr: vs} }
func Push(vs ...Value) Value      { return Value{kind: KindPush, arr: vs} }

func BigNumber(digits string) Value { return Value{kind: KindBigNumber, str: digits} }

func Map(pairs ...Pair) Value { return Value{kind: KindMap, pairs: pairs} }

func Verbatim(format, body string) Value {
	return Value{kind: KindVerbatimString, verb: format, str: body}
}

// Kind returns the reply tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull is true for the RESP2 null bulk string and null array as well as
// the RESP3 null frame; the parser folds all three into KindNull.
func (v Value) IsNull() bool         { return v.kind == KindNull }
func (v Value) IsSimpleString() bool { return v.kind == KindSimpleString }
func (v Value) IsError() bool        { return v.kind == KindError }
func (v Value) IsInteger() bool      { return v.kind == KindInteger }
func (v Value) IsBulkString() bool   { return v.kind == KindBulkString }
func (v Value) IsArray() bool        { return v.kind == KindArray }
func (v Value) IsDouble() bool       { return v.kind == KindDouble }
func (v Value) IsBoolean() bool      { return v.kind == KindBoolean }
func (v Value) IsMap() bool          { return v.kind == KindMap }
func (v Value) IsSet() bool          { return v.kind == KindSet }
func (v Value) IsPush() bool         { return v.kind == KindPush }
func (v Value) IsBigNumber() bool    { return v.kind == KindBigNumber }
func (v Value) IsVerbatim() bool     { return v.kind == KindVerbatimString }

// AsString returns the textual payload of string-like kinds: simple
// strings, errors, bulk strings, verbatim bodies and big numbers.
func (v Value) AsString() string {
	switch v.kind {
	case KindSimpleString, KindError, KindBigNumber, KindVerbatimString:
		return v.str
	case KindBulkString:
		return string(v.bulk)
	}
	return ""
}

// AsBytes returns the raw payload of bulk strings, or the text of other
// string-like kinds as bytes.
func (v Value) AsBytes() []byte {
	switch v.kind {
	case KindBulkString:
		return v.bulk
	case KindSimpleString, KindError, KindBigNumber, KindVerbatimString:
		return []byte(v.str)
	}
	return nil
}

// AsInt returns the integer payload. A bulk or simple string holding a
// decimal integer converts too, since Redis frequently returns numbers as
// strings on RESP2.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInteger:
		return v.num
	case KindBulkString, KindSimpleString:
		n, err := strconv.ParseInt(v.AsString(), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// AsFloat returns the double payload; integers and numeric strings
// convert (ZSCORE returns a bulk string on RESP2).
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindDouble:
		return v.fnum
	case KindInteger:
		return float64(v.num)
	case KindBulkString, KindSimpleString:
		f, err := strconv.ParseFloat(v.AsString(), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func (v Value) AsBool() bool {
	switch v.kind {
	case KindBoolean:
		return v.bval
	case KindInteger:
		return v.num != 0
	}
	return false
}

// AsArray returns the elements of an Array, Set or Push reply.
func (v Value) AsArray() []Value {
	switch v.kind {
	case KindArray, KindSet, KindPush:
		return v.arr
	}
	return nil
}

// AsMap returns the ordered key/value pairs of a Map reply. On RESP2 a
// map-shaped reply arrives as a flat array; AsMap folds an even-length
// array into pairs for convenience.
func (v Value) AsMap() []Pair {
	switch v.kind {
	case KindMap:
		return v.pairs
	case KindArray:
		if len(v.arr)%2 != 0 {
			return nil
		}
		pairs := make([]Pair, 0, len(v.arr)/2)
		for i := 0; i+1 < len(v.arr); i += 2 {
			pairs = append(pairs, Pair{Key: v.arr[i], Value: v.arr[i+1]})
		}
		return pairs
	}
	return nil
}

// AsStringMap is AsMap with keys stringified, the shape HGETALL callers
// almost always want.
func (v Value) AsStringMap() map[string]Value {
	pairs := v.AsMap()
	if pairs == nil {
		return nil
	}
	m := make(map[string]Value, len(pairs))
	for _, p := range pairs {
		m[p.Key.AsString()] = p.Value
	}
	return m
}

// AsStringSlice stringifies every element of an aggregate reply.
func (v Value) AsStringSlice() []string {
	arr := v.AsArray()
	if arr == nil {
		return nil
	}
	out := make([]string, len(arr))
	for i, el := range arr {
		out[i] = el.AsString()
	}
	return out
}

// VerbatimFormat returns the three-letter format tag of a verbatim
// string ("txt", "mkd").
func (v Value) VerbatimFormat() string {
	if v.kind != KindVerbatimString {
		return ""
	}
	return v.verb
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "Null"
	case KindInteger:
		return "Integer(" + strconv.FormatInt(v.num, 10) + ")"
	case KindDouble:
		return "Double(" + strconv.FormatFloat(v.fnum, 'g', -1, 64) + ")"
	case KindBoolean:
		return "Boolean(" + strconv.FormatBool(v.bval) + ")"
	case KindArray, KindSet, KindPush:
		return v.kind.String() + "[" + strconv.Itoa(len(v.arr)) + "]"
	case KindMap:
		return "Map[" + strconv.Itoa(len(v.pairs)) + "]"
	default:
		return v.kind.String() + "(" + v.AsString() + ")"
	}
}
