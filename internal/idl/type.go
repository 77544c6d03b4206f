package idl

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// 基础类型名
const (
	Bool      = "bool"
	U8        = "u8"
	I8        = "i8"
	U16       = "u16"
	I16       = "i16"
	U32       = "u32"
	I32       = "i32"
	F32       = "f32"
	U64       = "u64"
	I64       = "i64"
	F64       = "f64"
	U128      = "u128"
	I128      = "i128"
	Bytes     = "bytes"
	String    = "string"
	PublicKey = "publicKey"
)

// Type 字段类型的标签联合体，任一时刻只有一个分支有值
type Type struct {
	Primitive string
	Vec       *Type
	Option    *Type
	COption   *Type
	Defined   string
	Array     *ArrayType
}

type ArrayType struct {
	Elem Type
	Len  int
}

func (t Type) String() string {
	switch {
	case t.Primitive != "":
		return t.Primitive
	case t.Vec != nil:
		return "vec<" + t.Vec.String() + ">"
	case t.Option != nil:
		return "option<" + t.Option.String() + ">"
	case t.COption != nil:
		return "coption<" + t.COption.String() + ">"
	case t.Defined != "":
		return "defined<" + t.Defined + ">"
	case t.Array != nil:
		return fmt.Sprintf("[%s; %d]", t.Array.Elem.String(), t.Array.Len)
	default:
		return "<empty>"
	}
}

// UnmarshalJSON 支持 "u64"、{"vec": T}、{"option": T}、{"coption": T}、
// {"defined": "Name"}、{"defined": {"name": "Name"}}、{"array": [T, N]}
func (t *Type) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "pubkey" {
			s = PublicKey
		}
		*t = Type{Primitive: s}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid idl type %s: %w", string(data), err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("invalid idl type %s: expect exactly one key", string(data))
	}

	for key, raw := range obj {
		switch key {
		case "vec", "option", "coption":
			inner := new(Type)
			if err := json.Unmarshal(raw, inner); err != nil {
				return err
			}
			switch key {
			case "vec":
				*t = Type{Vec: inner}
			case "option":
				*t = Type{Option: inner}
			default:
				*t = Type{COption: inner}
			}
		case "defined":
			name, err := parseDefined(raw)
			if err != nil {
				return err
			}
			*t = Type{Defined: name}
		case "array":
			var pair []json.RawMessage
			if err := json.Unmarshal(raw, &pair); err != nil {
				return err
			}
			if len(pair) != 2 {
				return fmt.Errorf("invalid array type %s", string(raw))
			}
			arr := &ArrayType{}
			if err := json.Unmarshal(pair[0], &arr.Elem); err != nil {
				return err
			}
			if err := json.Unmarshal(pair[1], &arr.Len); err != nil {
				return fmt.Errorf("invalid array length %s: %w", string(pair[1]), err)
			}
			if arr.Len < 0 {
				return fmt.Errorf("invalid array length %d", arr.Len)
			}
			*t = Type{Array: arr}
		default:
			return fmt.Errorf("unsupported idl type key %q", key)
		}
	}
	return nil
}

func parseDefined(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("invalid defined type %s: %w", string(raw), err)
	}
	return obj.Name, nil
}

// UnmarshalJSON 区分具名字段 [{"name":..,"type":..}] 与元组字段 [T, T]
func (f *EnumFields) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		f.Named = []Field{}
		return nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &probe); err == nil {
		if _, ok := probe["name"]; ok {
			named := make([]Field, len(items))
			for i, item := range items {
				if err := json.Unmarshal(item, &named[i]); err != nil {
					return err
				}
			}
			f.Named = named
			return nil
		}
	}

	tuple := make([]Type, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &tuple[i]); err != nil {
			return err
		}
	}
	f.Tuple = tuple
	return nil
}
