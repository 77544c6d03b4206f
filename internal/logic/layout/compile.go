package layout

import (
	"errors"
	"fmt"

	"github.com/Syoongy/sniffer/internal/idl"
)

var (
	ErrUnresolvedType = errors.New("unresolved defined type")
	ErrRecursiveType  = errors.New("recursive type without indirection")
	ErrInvalidType    = errors.New("invalid idl type")
)

// Compiled 一个 IDL 编译后的全部 layout，只读
type Compiled struct {
	Instructions map[string]*StructLayout // global 命名空间指令名 → 参数 layout
	StateMethods map[string]*StructLayout // state 命名空间方法名 → 参数 layout
	Events       map[string]*StructLayout // 事件名 → 字段 layout
}

// Compile 将 IDL 中的指令、state 方法、事件编译为 layout。
// 任一 defined 引用无法解析即整体失败：该程序的 IDL 视为有缺陷，不应重试。
func Compile(x *idl.Idl) (*Compiled, error) {
	c := newCompiler(x)
	out := &Compiled{
		Instructions: make(map[string]*StructLayout, len(x.Instructions)),
		StateMethods: make(map[string]*StructLayout, len(x.StateMethods())),
		Events:       make(map[string]*StructLayout, len(x.Events)),
	}

	for _, ix := range x.Instructions {
		l, err := c.structOf(ix.Args)
		if err != nil {
			return nil, fmt.Errorf("instruction %s: %w", ix.Name, err)
		}
		out.Instructions[ix.Name] = l
	}
	for _, m := range x.StateMethods() {
		l, err := c.structOf(m.Args)
		if err != nil {
			return nil, fmt.Errorf("state method %s: %w", m.Name, err)
		}
		out.StateMethods[m.Name] = l
	}
	for _, ev := range x.Events {
		fields := make([]idl.Field, len(ev.Fields))
		for i, f := range ev.Fields {
			fields[i] = idl.Field{Name: f.Name, Type: f.Type}
		}
		l, err := c.structOf(fields)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Name, err)
		}
		out.Events[ev.Name] = l
	}
	return out, nil
}

type frame struct {
	name        string
	indirection int
}

type compiler struct {
	defs map[string]*idl.TypeDef
	// done 已编译完成（或正在编译、槽位已分配）的具名类型
	done  map[string]*Layout
	stack []frame
	// indirection 当前路径上经过的 vec/option 层数
	indirection int
}

func newCompiler(x *idl.Idl) *compiler {
	return &compiler{
		defs: x.TypeDefs(),
		done: make(map[string]*Layout),
	}
}

func (c *compiler) structOf(fields []idl.Field) (*StructLayout, error) {
	s := &StructLayout{Fields: make([]FieldLayout, 0, len(fields))}
	for _, f := range fields {
		l, err := c.compileType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		s.Fields = append(s.Fields, FieldLayout{Name: f.Name, Layout: l})
	}
	return s, nil
}

func (c *compiler) compileType(t idl.Type) (Layout, error) {
	switch {
	case t.Primitive != "":
		if !isPrimitive(t.Primitive) {
			return nil, fmt.Errorf("%w: unknown primitive %q", ErrInvalidType, t.Primitive)
		}
		return &primitiveLayout{name: t.Primitive}, nil

	case t.Vec != nil:
		elem, err := c.indirect(*t.Vec)
		if err != nil {
			return nil, err
		}
		return &vecLayout{elem: elem, elemSize: c.minSize(*t.Vec, nil)}, nil

	case t.Option != nil:
		inner, err := c.indirect(*t.Option)
		if err != nil {
			return nil, err
		}
		return &optionLayout{inner: inner}, nil

	case t.COption != nil:
		inner, err := c.indirect(*t.COption)
		if err != nil {
			return nil, err
		}
		return &optionLayout{inner: inner, coption: true}, nil

	case t.Array != nil:
		elem, err := c.compileType(t.Array.Elem)
		if err != nil {
			return nil, err
		}
		return &arrayLayout{elem: elem, n: t.Array.Len}, nil

	case t.Defined != "":
		return c.defined(t.Defined)
	}
	return nil, fmt.Errorf("%w: empty type", ErrInvalidType)
}

// indirect 编译 vec/option 内部类型，期间允许递归引用
func (c *compiler) indirect(t idl.Type) (Layout, error) {
	c.indirection++
	defer func() { c.indirection-- }()
	return c.compileType(t)
}

func (c *compiler) defined(name string) (Layout, error) {
	for _, f := range c.stack {
		if f.name != name {
			continue
		}
		// 自引用且中间没有 vec/option：无限大小的类型
		if f.indirection == c.indirection {
			return nil, fmt.Errorf("%w: %s", ErrRecursiveType, name)
		}
		return &refLayout{name: name, target: c.done[name]}, nil
	}
	if slot, ok := c.done[name]; ok && *slot != nil {
		return *slot, nil
	}

	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedType, name)
	}

	slot := new(Layout)
	c.done[name] = slot
	c.stack = append(c.stack, frame{name: name, indirection: c.indirection})
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	l, err := c.typeDef(def)
	if err != nil {
		delete(c.done, name)
		return nil, fmt.Errorf("type %s: %w", name, err)
	}
	*slot = l
	return l, nil
}

func (c *compiler) typeDef(def *idl.TypeDef) (Layout, error) {
	switch def.Type.Kind {
	case idl.TypeDefKindStruct:
		return c.structOf(def.Type.Fields)
	case idl.TypeDefKindEnum:
		e := &enumLayout{variants: make([]variantLayout, 0, len(def.Type.Variants))}
		for _, v := range def.Type.Variants {
			vl := variantLayout{name: v.Name}
			switch {
			case v.Fields.Named != nil:
				s, err := c.structOf(v.Fields.Named)
				if err != nil {
					return nil, fmt.Errorf("variant %s: %w", v.Name, err)
				}
				vl.fields = s
			case v.Fields.Tuple != nil:
				tl := &tupleLayout{elems: make([]Layout, 0, len(v.Fields.Tuple))}
				for i, t := range v.Fields.Tuple {
					l, err := c.compileType(t)
					if err != nil {
						return nil, fmt.Errorf("variant %s[%d]: %w", v.Name, i, err)
					}
					tl.elems = append(tl.elems, l)
				}
				vl.fields = tl
			}
			e.variants = append(e.variants, vl)
		}
		return e, nil
	case idl.TypeDefKindAlias:
		if def.Type.Value == nil {
			return nil, fmt.Errorf("%w: alias without value", ErrInvalidType)
		}
		return c.compileType(*def.Type.Value)
	}
	return nil, fmt.Errorf("%w: unknown typedef kind %q", ErrInvalidType, def.Type.Kind)
}

func isPrimitive(name string) bool {
	switch name {
	case idl.Bool, idl.U8, idl.I8, idl.U16, idl.I16, idl.U32, idl.I32, idl.F32,
		idl.U64, idl.I64, idl.F64, idl.U128, idl.I128,
		idl.Bytes, idl.String, idl.PublicKey:
		return true
	}
	return false
}

// minSize 类型编码的最小字节数，用于在分配前校验 vec 长度前缀。
// defined 类型按定义递归展开，visiting 防止自引用死循环
func (c *compiler) minSize(t idl.Type, visiting map[string]bool) int {
	switch {
	case t.Primitive != "":
		switch t.Primitive {
		case idl.U16, idl.I16:
			return 2
		case idl.U32, idl.I32, idl.F32, idl.String, idl.Bytes:
			return 4
		case idl.U64, idl.I64, idl.F64:
			return 8
		case idl.U128, idl.I128:
			return 16
		case idl.PublicKey:
			return 32
		}
		return 1
	case t.Array != nil:
		return t.Array.Len * c.minSize(t.Array.Elem, visiting)
	case t.Vec != nil, t.COption != nil:
		return 4
	case t.Option != nil:
		return 1
	case t.Defined != "":
		def, ok := c.defs[t.Defined]
		if !ok || visiting[t.Defined] {
			return 0
		}
		if visiting == nil {
			visiting = make(map[string]bool)
		}
		visiting[t.Defined] = true
		defer delete(visiting, t.Defined)
		return c.typeDefMinSize(def, visiting)
	}
	return 0
}

func (c *compiler) typeDefMinSize(def *idl.TypeDef, visiting map[string]bool) int {
	switch def.Type.Kind {
	case idl.TypeDefKindStruct:
		return c.fieldsMinSize(def.Type.Fields, visiting)
	case idl.TypeDefKindEnum:
		// 变体下标 1 字节，加上最小变体
		smallest := -1
		for _, v := range def.Type.Variants {
			n := c.fieldsMinSize(v.Fields.Named, visiting)
			for _, t := range v.Fields.Tuple {
				n += c.minSize(t, visiting)
			}
			if smallest < 0 || n < smallest {
				smallest = n
			}
		}
		return 1 + max(smallest, 0)
	case idl.TypeDefKindAlias:
		if def.Type.Value != nil {
			return c.minSize(*def.Type.Value, visiting)
		}
	}
	return 0
}

func (c *compiler) fieldsMinSize(fields []idl.Field, visiting map[string]bool) int {
	n := 0
	for _, f := range fields {
		n += c.minSize(f.Type, visiting)
	}
	return n
}
