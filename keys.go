package vstore

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Key encoding preserves key order under bytewise comparison:
// numbers < dates < strings < arrays.
const (
	keyTagNumber byte = 0x10
	keyTagDate   byte = 0x20
	keyTagString byte = 0x30
	keyTagArray  byte = 0x40

	keyEnd       byte = 0x00
	keyStrEnd    byte = 0x01
	keyStrEscape byte = 0xFF
)

// normalizeKey validates a key and converts it into its canonical form:
// float64, time.Time, string or []any of canonical keys.
func normalizeKey(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case time.Time:
		return v, nil
	case float64:
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
		}
		return v, nil
	case float32:
		return normalizeKey(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			nel, err := normalizeKey(el)
			if err != nil {
				return nil, err
			}
			out[i] = nel
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidKey)
	case []byte:
		return nil, fmt.Errorf("%w: binary keys are not supported", ErrInvalidKey)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			nel, err := normalizeKey(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = nel
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidKey, v)
}

// encodeKey appends the order-preserving encoding of a canonical key.
func encodeKey(buf []byte, k any) []byte {
	switch k := k.(type) {
	case float64:
		buf = append(buf, keyTagNumber)
		return appendFixedUint64(buf, sortableFloatBits(k))
	case time.Time:
		buf = append(buf, keyTagDate)
		return appendFixedUint64(buf, sortableFloatBits(float64(k.UnixMilli())))
	case string:
		buf = append(buf, keyTagString)
		for i := 0; i < len(k); i++ {
			c := k[i]
			buf = append(buf, c)
			if c == keyEnd {
				buf = append(buf, keyStrEscape)
			}
		}
		return append(buf, keyEnd, keyStrEnd)
	case []any:
		buf = append(buf, keyTagArray)
		for _, el := range k {
			buf = encodeKey(buf, el)
		}
		return append(buf, keyEnd)
	default:
		panic(fmt.Errorf("encodeKey: non-canonical key %T", k))
	}
}

// decodeKey decodes one key from the front of raw and returns the remainder.
func decodeKey(raw []byte) (any, []byte, error) {
	d := makeByteDecoder(raw)
	k, err := d.key()
	if err != nil {
		return nil, nil, err
	}
	return k, d.Buf, nil
}

func (d *byteDecoder) key() (any, error) {
	tag, err := d.Byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case keyTagNumber:
		bits, err := d.FixedUint64()
		if err != nil {
			return nil, err
		}
		return unsortableFloatBits(bits), nil
	case keyTagDate:
		bits, err := d.FixedUint64()
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(int64(unsortableFloatBits(bits))).UTC(), nil
	case keyTagString:
		var sb strings.Builder
		for {
			c, err := d.Byte()
			if err != nil {
				return nil, err
			}
			if c != keyEnd {
				sb.WriteByte(c)
				continue
			}
			next, err := d.Byte()
			if err != nil {
				return nil, err
			}
			switch next {
			case keyStrEnd:
				return sb.String(), nil
			case keyStrEscape:
				sb.WriteByte(keyEnd)
			default:
				return nil, dataErrf(d.Orig, d.Off(), nil, "invalid string key escape %x", next)
			}
		}
	case keyTagArray:
		var out []any
		for {
			if len(d.Buf) == 0 {
				return nil, dataErrf(d.Orig, d.Off(), nil, "unterminated array key")
			}
			if d.Buf[0] == keyEnd {
				d.Buf = d.Buf[1:]
				if out == nil {
					out = []any{}
				}
				return out, nil
			}
			el, err := d.key()
			if err != nil {
				return nil, err
			}
			out = append(out, el)
		}
	default:
		return nil, dataErrf(d.Orig, d.Off()-1, nil, "invalid key tag %x", tag)
	}
}

func sortableFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func unsortableFloatBits(bits uint64) float64 {
	if bits&(1<<63) != 0 {
		return math.Float64frombits(bits &^ (1 << 63))
	}
	return math.Float64frombits(^bits)
}

// compareKeys orders canonical keys the same way their encodings sort.
func compareKeys(a, b any) int {
	return strings.Compare(string(encodeKey(nil, a)), string(encodeKey(nil, b)))
}

// keyString renders a key the way keyword matching sees it: numbers in their
// shortest decimal form, arrays joined with commas.
func keyString(k any) string {
	switch k := k.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case time.Time:
		return k.Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(k))
		for i, el := range k {
			parts[i] = keyString(el)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(k)
	}
}

// extractKey evaluates a key path against a record. A single path yields a
// scalar key, several paths yield a compound array key. The second result is
// false when any path is missing or does not hold a valid key.
func extractKey(rec Record, paths []string) (any, bool) {
	if len(paths) == 1 {
		v, ok := valueAtPath(rec, paths[0])
		if !ok {
			return nil, false
		}
		k, err := normalizeKey(v)
		return k, err == nil
	}
	out := make([]any, len(paths))
	for i, p := range paths {
		v, ok := valueAtPath(rec, p)
		if !ok {
			return nil, false
		}
		k, err := normalizeKey(v)
		if err != nil {
			return nil, false
		}
		out[i] = k
	}
	return out, true
}

func valueAtPath(rec Record, path string) (any, bool) {
	var cur any = map[string]any(rec)
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch c := cur.(type) {
		case map[string]any:
			m = c
		case Record:
			m = c
		default:
			return nil, false
		}
		v, found := m[part]
		if !found {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
