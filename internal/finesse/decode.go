package finesse

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/clbanning/mxj/v2"
)

// Tree - дерево XML-документа: элементы становятся ключами, повторяющиеся дочерние
// элементы сворачиваются в []any, одиночные остаются одним узлом.
// Атрибуты хранятся с префиксом "-", текст элемента с атрибутами - под ключом "#text".
type Tree map[string]any

const textKey = "#text"

// Decode разбирает XML в Tree. Битый или пустой документ - *DecodeError.
func Decode(data []byte) (Tree, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{Err: ErrEmptyDocument}
	}

	m, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	return Tree(m), nil
}

// Node спускается по цепочке имен элементов. Если на пути встретилась последовательность,
// поиск продолжается в ее первом элементе.
func (t Tree) Node(path ...string) (any, bool) {
	var cur any = map[string]any(t)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		next, ok := m[key]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// AsSequence нормализует "один-или-много" в срез, независимо от того, как XML-библиотека
// свернула элемент. nil превращается в пустой срез.
func AsSequence(v any) []any {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		return vv
	case []map[string]any:
		out := make([]any, 0, len(vv))
		for _, m := range vv {
			out = append(out, m)
		}
		return out
	default:
		return []any{v}
	}
}

// Text возвращает текстовое значение дочернего элемента key у узла node.
// Отсутствующий элемент или элемент со сложной структурой дают пустую строку.
func Text(node any, key string) string {
	m, ok := asMap(node)
	if !ok {
		return ""
	}
	return leafText(m[key])
}

func leafText(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case bool:
		return strconv.FormatBool(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case []any:
		if len(vv) == 0 {
			return ""
		}
		return leafText(vv[0])
	default:
		if m, ok := asMap(v); ok {
			return leafText(m[textKey])
		}
		return fmt.Sprint(v)
	}
}

func asMap(v any) (map[string]any, bool) {
	switch vv := v.(type) {
	case map[string]any:
		return vv, true
	case mxj.Map:
		return map[string]any(vv), true
	case Tree:
		return map[string]any(vv), true
	case []any:
		if len(vv) == 0 {
			return nil, false
		}
		return asMap(vv[0])
	default:
		return nil, false
	}
}
