package services

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var templatePattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// normalizeValue 通过 JSON 往返把任意值转成 map/slice/float64/string/bool/nil
func normalizeValue(v interface{}) interface{} {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Lookup 按点路径取值，任一段缺失返回 false
func Lookup(value interface{}, path string) (interface{}, bool) {
	if path == "" {
		return value, true
	}
	current := value
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// RenderTemplate 替换 {{field.path}}，未解析的占位符渲染成空串
func RenderTemplate(tpl string, data interface{}) string {
	if tpl == "" {
		return ""
	}
	return templatePattern.ReplaceAllStringFunc(tpl, func(m string) string {
		path := templatePattern.FindStringSubmatch(m)[1]
		v, ok := Lookup(data, path)
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// toNumber 数值强制转换，无法转换时返回 false
func toNumber(v interface{}, present bool) (float64, bool) {
	if !present {
		return 0, false
	}
	switch val := v.(type) {
	case nil:
		return 0, true
	case float64:
		return val, !math.IsNaN(val)
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// strictEqual 仅比较标量，对象与数组互不相等
func strictEqual(a, b interface{}, aPresent bool) bool {
	if !aPresent {
		return false
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}
