package processor

import (
	"fmt"

	"github.com/Syoongy/sniffer/internal/consts"
	"github.com/Syoongy/sniffer/internal/idl"
	"github.com/Syoongy/sniffer/internal/logic/discriminator"
	"github.com/Syoongy/sniffer/internal/logic/txadapter"
	"github.com/Syoongy/sniffer/pkg/logger"
)

// Program 被跟踪的 Anchor 程序及其编译好的判别符表，构建后只读
type Program struct {
	ID           string
	Idl          *idl.Idl
	Instructions *discriminator.InstructionIndex
	Events       *discriminator.EventIndex
}

// NewProgram 编译 IDL。编译失败说明 IDL 本身有问题，调用方不应重试
func NewProgram(id string, x *idl.Idl) (*Program, error) {
	ixIndex, evIndex, err := discriminator.Build(x)
	if err != nil {
		return nil, fmt.Errorf("compile idl for %s: %w", id, err)
	}
	return &Program{ID: id, Idl: x, Instructions: ixIndex, Events: evIndex}, nil
}

func LoadProgram(id, idlPath string) (*Program, error) {
	x, err := idl.Load(idlPath)
	if err != nil {
		return nil, err
	}
	return NewProgram(id, x)
}

// Registry programID → Program。
// tracked 为主指令过滤集合（即全部已注册程序），whitelist 为 inner 指令过滤集合。
type Registry struct {
	programs  map[string]*Program
	order     []string
	tracked   txadapter.ProgramSet
	whitelist txadapter.ProgramSet
}

func NewRegistry(whitelist []string, programs ...*Program) (*Registry, error) {
	r := &Registry{
		programs:  make(map[string]*Program, len(programs)),
		tracked:   make(txadapter.ProgramSet, len(programs)),
		whitelist: txadapter.NewProgramSet(whitelist...),
	}
	for _, p := range programs {
		if _, ok := r.programs[p.ID]; ok {
			return nil, fmt.Errorf("duplicate program %s", p.ID)
		}
		r.programs[p.ID] = p
		r.order = append(r.order, p.ID)
		r.tracked[p.ID] = struct{}{}
	}
	for id := range r.whitelist {
		if _, native := consts.NativePrograms[id]; native {
			logger.Warnf("[processor::NewRegistry] inner whitelist contains native program %s, its instructions will be reported as not anchor", id)
		}
	}
	return r, nil
}

func (r *Registry) Get(id string) (*Program, bool) {
	p, ok := r.programs[id]
	return p, ok
}

// Programs 注册顺序
func (r *Registry) Programs() []*Program {
	out := make([]*Program, len(r.order))
	for i, id := range r.order {
		out[i] = r.programs[id]
	}
	return out
}

// IDs 注册顺序的程序 ID
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Tracked() txadapter.ProgramSet {
	return r.tracked
}

func (r *Registry) Whitelist() txadapter.ProgramSet {
	return r.whitelist
}
