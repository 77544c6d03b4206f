package idl

// Idl Anchor 程序接口描述（legacy 格式：isMut / isSigner / publicKey / defined 为字符串）。
// 加载后只读，可在多个 goroutine 间共享。
type Idl struct {
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
	State        *State        `json:"state,omitempty"`
	Accounts     []TypeDef     `json:"accounts,omitempty"`
	Types        []TypeDef     `json:"types,omitempty"`
	Events       []Event       `json:"events,omitempty"`
	Errors       []ErrorCode   `json:"errors,omitempty"`
	Metadata     *Metadata     `json:"metadata,omitempty"`
}

// Instruction 指令定义；state.methods 与 instructions 共用该结构
type Instruction struct {
	Name     string        `json:"name"`
	Docs     []string      `json:"docs,omitempty"`
	Accounts []AccountItem `json:"accounts"`
	Args     []Field       `json:"args"`
}

// AccountItem 既可能是单个账户，也可能是嵌套账户组（Accounts 非 nil）
type AccountItem struct {
	Name     string        `json:"name"`
	IsMut    bool          `json:"isMut"`
	IsSigner bool          `json:"isSigner"`
	Optional bool          `json:"isOptional,omitempty"`
	Docs     []string      `json:"docs,omitempty"`
	Accounts []AccountItem `json:"accounts,omitempty"`
}

// IsGroup 是否为嵌套账户组
func (a *AccountItem) IsGroup() bool {
	return a.Accounts != nil
}

type State struct {
	Struct  TypeDef       `json:"struct"`
	Methods []Instruction `json:"methods"`
}

type Field struct {
	Name string   `json:"name"`
	Docs []string `json:"docs,omitempty"`
	Type Type     `json:"type"`
}

type Event struct {
	Name   string       `json:"name"`
	Fields []EventField `json:"fields"`
}

type EventField struct {
	Name  string `json:"name"`
	Type  Type   `json:"type"`
	Index bool   `json:"index"`
}

// TypeDef 具名类型，来自 idl.accounts 或 idl.types
type TypeDef struct {
	Name string    `json:"name"`
	Docs []string  `json:"docs,omitempty"`
	Type TypeDefTy `json:"type"`
}

const (
	TypeDefKindStruct = "struct"
	TypeDefKindEnum   = "enum"
	TypeDefKindAlias  = "alias"
)

type TypeDefTy struct {
	Kind     string        `json:"kind"`
	Fields   []Field       `json:"fields,omitempty"`
	Variants []EnumVariant `json:"variants,omitempty"`
	Value    *Type         `json:"value,omitempty"` // kind=alias
}

// EnumVariant 枚举分支：具名字段、元组字段或无字段（unit）
type EnumVariant struct {
	Name   string     `json:"name"`
	Fields EnumFields `json:"fields,omitempty"`
}

type EnumFields struct {
	Named []Field
	Tuple []Type
}

func (f EnumFields) IsUnit() bool {
	return f.Named == nil && f.Tuple == nil
}

type ErrorCode struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg,omitempty"`
}

type Metadata struct {
	Address string `json:"address,omitempty"`
}

// TypeDefs 合并 accounts 与 types 表；同名时 accounts 优先（先到先得）
func (x *Idl) TypeDefs() map[string]*TypeDef {
	defs := make(map[string]*TypeDef, len(x.Accounts)+len(x.Types))
	for i := range x.Accounts {
		if _, ok := defs[x.Accounts[i].Name]; !ok {
			defs[x.Accounts[i].Name] = &x.Accounts[i]
		}
	}
	for i := range x.Types {
		if _, ok := defs[x.Types[i].Name]; !ok {
			defs[x.Types[i].Name] = &x.Types[i]
		}
	}
	return defs
}

// StateMethods 返回 state 命名空间下的方法，没有时返回 nil
func (x *Idl) StateMethods() []Instruction {
	if x.State == nil {
		return nil
	}
	return x.State.Methods
}
