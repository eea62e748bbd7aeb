package optimistic

import (
	"fmt"
	"strings"
)

// Fields 记录的字段集合，允许嵌套 map（与 JSON 解码结果一致）
type Fields = map[string]any

// SplitPath 拆分点分路径，例如 permissions.whoCanChat
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// GetPath 沿点分路径读取值
func GetPath(fields Fields, path string) (any, bool) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, false
	}

	var cur any = fields
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath 沿点分路径写入值，中间层不存在时自动创建
func SetPath(fields Fields, path string, value any) error {
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}

	m := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			next = Fields{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
	return nil
}

// DeletePath 删除点分路径上的值（回滚到"原本不存在"时使用）
func DeletePath(fields Fields, path string) {
	parts, err := SplitPath(path)
	if err != nil {
		return
	}

	m := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

// Clone 深拷贝 map / slice，快照不能和现场共享底层数据
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// CloneFields 深拷贝整条记录
func CloneFields(f Fields) Fields {
	if f == nil {
		return Fields{}
	}
	return Clone(f).(map[string]any)
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
