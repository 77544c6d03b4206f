package discriminator

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/Syoongy/sniffer/internal/idl"
	"github.com/Syoongy/sniffer/internal/logic/layout"
)

// ReservedIdlKey Anchor IDL 管理指令（IdlCreateAccount / IdlWrite / IdlSetBuffer ...）的判别符 Base58，
// 不属于用户定义指令集
const ReservedIdlKey = "Bs9xzWfRwBo"

// IsReserved 判断 Base58 判别符是否为 IDL 管理指令
func IsReserved(key string) bool {
	return key == ReservedIdlKey
}

// InstructionEntry 指令判别符对应的解码信息
type InstructionEntry struct {
	Name          string
	Namespace     string
	Discriminator Discriminator
	Layout        *layout.StructLayout
	Args          []idl.Field
	Accounts      []idl.AccountItem // nil 表示 IDL 未声明账户映射
}

// InstructionIndex Base58(判别符) → 指令。构建后只读，可并发读取
type InstructionIndex struct {
	entries map[string]*InstructionEntry
}

// Lookup 精确匹配，无前缀/模糊匹配
func (x *InstructionIndex) Lookup(key string) (*InstructionEntry, bool) {
	e, ok := x.entries[key]
	return e, ok
}

// KeyOf 取 data 前 8 字节的 Base58 作为查找 key；不足 8 字节返回 false
func (x *InstructionIndex) KeyOf(data []byte) (string, bool) {
	if len(data) < Size {
		return "", false
	}
	return base58.Encode(data[:Size]), true
}

func (x *InstructionIndex) Len() int {
	return len(x.entries)
}

// EventEntry 事件判别符对应的解码信息
type EventEntry struct {
	Name          string
	Discriminator Discriminator
	Layout        *layout.StructLayout
	Fields        []idl.EventField
}

// EventIndex Base64(判别符) → 事件。与指令表不互查
type EventIndex struct {
	entries map[string]*EventEntry
}

func (x *EventIndex) Lookup(key string) (*EventEntry, bool) {
	e, ok := x.entries[key]
	return e, ok
}

// KeyOf 取 data 前 8 字节的 Base64 作为查找 key
func (x *EventIndex) KeyOf(data []byte) (string, bool) {
	if len(data) < Size {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(data[:Size]), true
}

func (x *EventIndex) Len() int {
	return len(x.entries)
}

// Build 编译 IDL 并同时构建指令表与事件表
func Build(x *idl.Idl) (*InstructionIndex, *EventIndex, error) {
	compiled, err := layout.Compile(x)
	if err != nil {
		return nil, nil, err
	}
	ixIndex, err := BuildInstructionIndex(x, compiled)
	if err != nil {
		return nil, nil, err
	}
	evIndex, err := BuildEventIndex(x, compiled)
	if err != nil {
		return nil, nil, err
	}
	return ixIndex, evIndex, nil
}

// BuildInstructionIndex global 命名空间的 instructions + state 命名空间的 methods
func BuildInstructionIndex(x *idl.Idl, compiled *layout.Compiled) (*InstructionIndex, error) {
	index := &InstructionIndex{
		entries: make(map[string]*InstructionEntry, len(x.Instructions)+len(x.StateMethods())),
	}

	add := func(ns string, ix idl.Instruction, l *layout.StructLayout) error {
		if l == nil {
			return fmt.Errorf("instruction %s: layout not compiled", ix.Name)
		}
		d := Sighash(ns, ix.Name)
		key := d.Base58()
		if IsReserved(key) {
			return fmt.Errorf("instruction %s:%s collides with reserved idl discriminator", ns, ix.Name)
		}
		if prev, ok := index.entries[key]; ok {
			return fmt.Errorf("instruction %s:%s collides with %s:%s", ns, ix.Name, prev.Namespace, prev.Name)
		}
		index.entries[key] = &InstructionEntry{
			Name:          ix.Name,
			Namespace:     ns,
			Discriminator: d,
			Layout:        l,
			Args:          ix.Args,
			Accounts:      ix.Accounts,
		}
		return nil
	}

	for _, ix := range x.Instructions {
		if err := add(NamespaceGlobal, ix, compiled.Instructions[ix.Name]); err != nil {
			return nil, err
		}
	}
	for _, m := range x.StateMethods() {
		if err := add(NamespaceState, m, compiled.StateMethods[m.Name]); err != nil {
			return nil, err
		}
	}
	return index, nil
}

func BuildEventIndex(x *idl.Idl, compiled *layout.Compiled) (*EventIndex, error) {
	index := &EventIndex{entries: make(map[string]*EventEntry, len(x.Events))}
	for _, ev := range x.Events {
		l := compiled.Events[ev.Name]
		if l == nil {
			return nil, fmt.Errorf("event %s: layout not compiled", ev.Name)
		}
		d := Event(ev.Name)
		key := d.Base64()
		if prev, ok := index.entries[key]; ok {
			return nil, fmt.Errorf("event %s collides with %s", ev.Name, prev.Name)
		}
		index.entries[key] = &EventEntry{
			Name:          ev.Name,
			Discriminator: d,
			Layout:        l,
			Fields:        ev.Fields,
		}
	}
	return index, nil
}
