package ir

import (
	"fmt"
	"reflect"
)

// Normalize folds the integer widths and byte strings drivers return into
// int64 and string, so values read back compare equal to values written.
func Normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	}
	return v
}

// SameValue reports whether a and b hold the same column value.
func SameValue(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := a.(float64); ok {
		if bi, ok := b.(int64); ok {
			return af == float64(bi)
		}
	}
	if ai, ok := a.(int64); ok {
		if bf, ok := b.(float64); ok {
			return float64(ai) == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// KeyString renders a value for use as an index key, folding integer widths.
func KeyString(v any) string {
	return fmt.Sprintf("%T:%v", Normalize(v), Normalize(v))
}
