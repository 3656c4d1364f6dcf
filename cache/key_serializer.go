package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

type defaultKeySerializer struct{}

// NewDefaultKeySerializer returns the serializer used for repository and query keys.
//
// Strings and Stringers are Go quoted so separators inside user input cannot
// shift segment or field boundaries; a query key for page 1 of the Work tag
// reads `notes::1::""::"Work"`. Structs are written as their exported fields
// in declaration order, slices element by element and maps with sorted keys.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

func (s defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)
	for _, arg := range args {
		parts = append(parts, s.value(reflect.ValueOf(arg)))
	}
	return strings.Join(parts, KeySeparator)
}

func (s defaultKeySerializer) value(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}

	if v.CanInterface() {
		switch t := v.Interface().(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano)
		case fmt.Stringer:
			if v.Kind() != reflect.Struct && v.Kind() != reflect.Ptr {
				return strconv.Quote(t.String())
			}
		}
	}

	switch v.Kind() {
	case reflect.String:
		return strconv.Quote(v.String())
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return "nil"
		}
		return s.value(v.Elem())
	case reflect.Slice:
		if v.IsNil() {
			return "slice:nil"
		}
		return s.sequence("slice", v)
	case reflect.Array:
		return s.sequence("array", v)
	case reflect.Map:
		if v.IsNil() {
			return "map:nil"
		}
		return s.mapping(v)
	case reflect.Struct:
		return s.structure(v)
	case reflect.Func, reflect.Chan:
		// only stable for the lifetime of the process
		return fmt.Sprintf("%s:%#x", v.Kind(), v.Pointer())
	}

	if v.CanInterface() {
		if data, err := json.Marshal(v.Interface()); err == nil {
			return "json:" + string(data)
		}
	}
	return "fallback:" + v.Type().String()
}

func (s defaultKeySerializer) sequence(kind string, v reflect.Value) string {
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = s.value(v.Index(i))
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, len(parts), strings.Join(parts, ","))
}

func (s defaultKeySerializer) mapping(v reflect.Value) string {
	pairs := make([]string, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.value(iter.Key())+"="+s.value(iter.Value()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s defaultKeySerializer) structure(v reflect.Value) string {
	t := v.Type()
	parts := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.value(v.Field(i)))
	}
	return "struct:{" + strings.Join(parts, ",") + "}"
}

// Namespace returns the leading segment of a serialized key.
func Namespace(key string) string {
	ns, _, _ := strings.Cut(key, KeySeparator)
	return ns
}
