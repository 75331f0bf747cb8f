package replication

import "reflect"

// Normalize returns a copy of payload without absent optional values: nil
// interfaces and nil pointers, slices, maps are dropped entirely. Non-nil
// pointers are dereferenced so the wire payload carries plain values.
func Normalize(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Pointer:
			if rv.IsNil() {
				continue
			}
			out[k] = rv.Elem().Interface()
		case reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
			if rv.IsNil() {
				continue
			}
			out[k] = v
		default:
			out[k] = v
		}
	}
	return out
}
