package engine

import (
	"reflect"
	"strconv"
)

// Namespace — пространство имён, в котором разрешаются цепочки
// идентификаторов вида step-id.field.sub.
//
// Lookup возвращает значение корневого идентификатора.
type Namespace interface {
	Lookup(name string) (any, bool)
}

// Vars — пространство имён на основе map.
type Vars map[string]any

// Lookup реализует Namespace.
func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Overlay — пространство имён, в котором Top перекрывает Base.
type Overlay struct {
	Base Namespace
	Top  Vars
}

// Lookup реализует Namespace.
func (o Overlay) Lookup(name string) (any, bool) {
	if val, ok := o.Top[name]; ok {
		return val, true
	}
	if o.Base == nil {
		return nil, false
	}
	return o.Base.Lookup(name)
}

// resolveChain проходит по цепочке сегментов.
// Отсутствующий сегмент даёт nil (undefined) без ошибки.
func resolveChain(ns Namespace, root string, path []string) any {
	if ns == nil {
		return nil
	}
	cur, ok := ns.Lookup(root)
	if !ok {
		return nil
	}
	for _, seg := range path {
		cur, ok = child(cur, seg)
		if !ok {
			return nil
		}
	}
	return Normalize(cur)
}

// child возвращает вложенное значение по ключу или индексу.
// Для строк и массивов поддерживается свойство length.
func child(v any, key string) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		c, ok := val[key]
		return c, ok
	case map[string]string:
		c, ok := val[key]
		return c, ok
	case []any:
		return index(len(val), key, func(i int) any { return val[i] })
	case []string:
		return index(len(val), key, func(i int) any { return val[i] })
	case string:
		if key == "length" {
			return float64(len([]rune(val))), true
		}
		return nil, false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		c := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !c.IsValid() {
			return nil, false
		}
		return c.Interface(), true
	case reflect.Slice, reflect.Array:
		return index(rv.Len(), key, func(i int) any { return rv.Index(i).Interface() })
	case reflect.Struct:
		f := rv.FieldByName(key)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

func index(length int, key string, at func(int) any) (any, bool) {
	if key == "length" {
		return float64(length), true
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= length {
		return nil, false
	}
	return at(i), true
}
