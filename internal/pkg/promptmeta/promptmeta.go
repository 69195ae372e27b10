package promptmeta

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrFormat 提示词元数据结构非法
var ErrFormat = errors.New("invalid prompt metadata")

type Kind int

const (
	KindNone Kind = iota
	KindText
	KindObject
	KindRefs
)

// Reference 引用列表中的一个上游引用，Fields 保留对象的全部字段
type Reference struct {
	ID     string
	Fields map[string]any
}

// Meta 提示词元数据，四种形态之一：
// 空、纯文本、遗留对象、引用列表（若干引用 + 尾部提示词文本）
type Meta struct {
	Kind   Kind
	Text   string
	Object map[string]any
	Refs   []Reference
}

func None() Meta {
	return Meta{Kind: KindNone}
}

func Text(s string) Meta {
	return Meta{Kind: KindText, Text: s}
}

func NewRefs(refs []Reference, text string) Meta {
	return Meta{Kind: KindRefs, Text: text, Refs: refs}
}

func NewReference(id string) Reference {
	return Reference{ID: id, Fields: map[string]any{"id": id}}
}

// FromValue 校验并转换一个已解码的 JSON 值。
// 引用列表必须非空且以提示词字符串结尾，前面的元素必须是携带非空
// 字符串 id 的对象；引用对象允许并保留额外字段。
func FromValue(v any) (Meta, error) {
	switch val := v.(type) {
	case nil:
		return Meta{Kind: KindNone}, nil
	case string:
		return Meta{Kind: KindText, Text: val}, nil
	case map[string]any:
		return Meta{Kind: KindObject, Object: val}, nil
	case []any:
		if len(val) == 0 {
			return Meta{}, fmt.Errorf("%w: reference lists must include a trailing prompt string", ErrFormat)
		}
		text, ok := val[len(val)-1].(string)
		if !ok {
			return Meta{}, fmt.Errorf("%w: reference lists must end with the prompt text string", ErrFormat)
		}
		refs := make([]Reference, 0, len(val)-1)
		for _, item := range val[:len(val)-1] {
			obj, ok := item.(map[string]any)
			if !ok {
				return Meta{}, fmt.Errorf("%w: references must be objects with an 'id' field", ErrFormat)
			}
			id, ok := obj["id"].(string)
			if !ok || id == "" {
				return Meta{}, fmt.Errorf("%w: reference ids must be non-empty strings", ErrFormat)
			}
			refs = append(refs, Reference{ID: id, Fields: obj})
		}
		return Meta{Kind: KindRefs, Text: text, Refs: refs}, nil
	default:
		return Meta{}, fmt.Errorf("%w: must be a string, object, or reference list", ErrFormat)
	}
}

// Parse 解析并校验一段 JSON 编码的提示词元数据
func Parse(raw []byte) (Meta, error) {
	if len(raw) == 0 {
		return Meta{Kind: KindNone}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return FromValue(v)
}

// PromptText 提取用于展示/检索的提示词文本
func (m Meta) PromptText() string {
	switch m.Kind {
	case KindText, KindRefs:
		return m.Text
	default:
		return ""
	}
}

// ToValue 还原为通用 JSON 值，与 FromValue 互逆
func (m Meta) ToValue() any {
	switch m.Kind {
	case KindText:
		return m.Text
	case KindObject:
		return m.Object
	case KindRefs:
		out := make([]any, 0, len(m.Refs)+1)
		for _, ref := range m.Refs {
			fields := ref.Fields
			if fields == nil {
				fields = map[string]any{}
			}
			fields["id"] = ref.ID
			out = append(out, fields)
		}
		return append(out, m.Text)
	default:
		return nil
	}
}

func (m Meta) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToValue())
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value 实现 driver.Valuer，空元数据落库为 NULL
func (m Meta) Value() (driver.Value, error) {
	if m.Kind == KindNone {
		return nil, nil
	}
	data, err := json.Marshal(m.ToValue())
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner
func (m *Meta) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = Meta{Kind: KindNone}
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported prompt_meta column type %T", value)
	}
}

// GormDataType 声明列类型，MySQL 与 SQLite 均按 JSON 文本存储
func (Meta) GormDataType() string {
	return "json"
}
