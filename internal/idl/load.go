package idl

import (
	"errors"
	"fmt"
	"os"

	"github.com/zeromicro/go-zero/core/jsonx"
)

var ErrInvalidIdl = errors.New("invalid idl")

// Parse 解析 IDL JSON 文档并做基础结构校验
func Parse(data []byte) (*Idl, error) {
	var x Idl
	if err := jsonx.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdl, err)
	}
	if err := x.Validate(); err != nil {
		return nil, err
	}
	return &x, nil
}

// Load 从本地文件读取 IDL
func Load(path string) (*Idl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read idl %s: %w", path, err)
	}
	x, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse idl %s: %w", path, err)
	}
	return x, nil
}

// Validate 检查名称非空且同一命名空间内不重名
func (x *Idl) Validate() error {
	if err := uniqueNames("instruction", x.Instructions); err != nil {
		return err
	}
	if err := uniqueNames("state method", x.StateMethods()); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(x.Events))
	for _, ev := range x.Events {
		if ev.Name == "" {
			return fmt.Errorf("%w: event with empty name", ErrInvalidIdl)
		}
		if _, ok := seen[ev.Name]; ok {
			return fmt.Errorf("%w: duplicate event %q", ErrInvalidIdl, ev.Name)
		}
		seen[ev.Name] = struct{}{}
	}
	return nil
}

func uniqueNames(kind string, ixs []Instruction) error {
	seen := make(map[string]struct{}, len(ixs))
	for _, ix := range ixs {
		if ix.Name == "" {
			return fmt.Errorf("%w: %s with empty name", ErrInvalidIdl, kind)
		}
		if _, ok := seen[ix.Name]; ok {
			return fmt.Errorf("%w: duplicate %s %q", ErrInvalidIdl, kind, ix.Name)
		}
		seen[ix.Name] = struct{}{}
	}
	return nil
}
