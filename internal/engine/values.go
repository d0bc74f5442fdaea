package engine

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Значения выражений — JSON-подобные: string, float64, bool, nil,
// map[string]any, []any. Целые числа Go приводятся к float64 при чтении.

// Normalize приводит числовые типы Go к float64.
// Прочие значения возвращаются без изменений.
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

// Truthy возвращает истинность значения по правилам JavaScript.
func Truthy(v any) bool {
	switch val := Normalize(v).(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case string:
		return val != ""
	default:
		return true
	}
}

// LooseEqual сравнивает значения по правилам нестрогого равенства (==).
//
// Числа и строки сравниваются после приведения строки к числу,
// булевы значения приводятся к 0/1, null равен только null.
// Объекты и массивы равны только самим себе.
func LooseEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ab, ok := a.(bool); ok {
		return LooseEqual(boolToNumber(ab), b)
	}
	if bb, ok := b.(bool); ok {
		return LooseEqual(a, boolToNumber(bb))
	}

	switch av := a.(type) {
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case string:
			return av == stringToNumber(bv)
		}
		return false
	case string:
		switch bv := b.(type) {
		case string:
			return av == bv
		case float64:
			return stringToNumber(av) == bv
		}
		return false
	}

	if isComposite(a) && isComposite(b) {
		return sameReference(a, b)
	}
	return false
}

// compare выполняет операторы > >= < <=.
// Две строки сравниваются лексикографически, остальное — как числа.
// null и undefined не сравнимы ни с чем.
func compare(op string, a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return false
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch op {
			case ">":
				return as > bs
			case ">=":
				return as >= bs
			case "<":
				return as < bs
			case "<=":
				return as <= bs
			}
			return false
		}
	}

	x, y := toNumber(a), toNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	switch op {
	case ">":
		return x > y
	case ">=":
		return x >= y
	case "<":
		return x < y
	case "<=":
		return x <= y
	}
	return false
}

// Stringify превращает значение в строку для подстановки в шаблон.
// nil становится пустой строкой, объекты и массивы — JSON.
func Stringify(v any) string {
	switch val := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatNumber(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toNumber(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case bool:
		return boolToNumber(val)
	case string:
		return stringToNumber(val)
	default:
		return math.NaN()
	}
}

func boolToNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// stringToNumber повторяет Number(str): пустая строка — 0, мусор — NaN.
func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func isComposite(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return true
	default:
		return false
	}
}

func sameReference(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != vb.Kind() {
		return false
	}
	if va.Kind() == reflect.Slice && (va.Len() == 0 || vb.Len() == 0) {
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	}
	return va.Pointer() == vb.Pointer()
}
