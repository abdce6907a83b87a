package pipeline

import "reflect"

// Cloneable lets a codec-provided value type control its own copy so
// clone can preserve type identity for custom structures (the codec
// registry's parsed events are rarely plain structs).
type Cloneable interface {
	Clone() any
}

// DeepClone implements the §4.2(d) clone policy: raw byte buffers are
// shallow-copied, Cloneable values delegate to their own Clone, and
// everything else (slices, maps, structs, pointers to structs) is walked
// recursively. Primitive fields are copied by value automatically since
// reflect.New + Set does that for us.
func DeepClone(v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	if c, ok := v.(Cloneable); ok {
		return c.Clone()
	}
	rv := reflect.ValueOf(v)
	cloned := cloneValue(rv)
	return cloned.Interface()
}

func cloneValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(cloneValue(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v) // unexported fields keep their values (shallow)
		for i := 0; i < v.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		inner := cloneValue(v.Elem())
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out
	default:
		return v
	}
}
