package txadapter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/Syoongy/sniffer/internal/logic/core"
)

var ErrAccountIndexOutOfRange = errors.New("account index out of range")

// ProgramSet 程序 ID 集合（base58）。nil 集合不包含任何程序
type ProgramSet map[string]struct{}

func NewProgramSet(ids ...string) ProgramSet {
	s := make(ProgramSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s ProgramSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Reconstruct 重建单个被跟踪程序的指令序列，见 ReconstructTracked
func Reconstruct(tx *core.RawTransaction, tracked string, whitelist ProgramSet, timestampMs int64) ([]*core.Instruction, error) {
	return ReconstructTracked(tx, NewProgramSet(tracked), whitelist, timestampMs)
}

// ReconstructTracked 按原始顺序展开主指令与 inner 指令：
//   - 主指令：程序 ID 属于 tracked 时输出，ParentIdx = -1，Index 为未过滤列表中的位置；
//   - inner：按分组顺序、组内顺序遍历，程序 ID 属于 whitelist 时输出，
//     ParentIdx 为分组声明的主指令下标，Index 为组内位置。
//
// 输出先主指令后 inner。零签名或账户下标越界时整笔交易返回 error。
func ReconstructTracked(tx *core.RawTransaction, tracked, whitelist ProgramSet, timestampMs int64) ([]*core.Instruction, error) {
	txHash, err := tx.Hash()
	if err != nil {
		return nil, err
	}

	keys := EffectiveKeys(tx)
	b := &builder{txHash: txHash, keys: keys, timestamp: timestampMs}

	var groups []core.InnerInstructionGroup
	if tx.Meta != nil {
		groups = tx.Meta.InnerInstructions
	}
	if len(groups) == 0 {
		return safeBuild(func() ([]*core.Instruction, error) {
			return b.topLevel(tx.Transaction.Message.Instructions, tracked)
		})
	}

	// 主指令与 inner 读取的是同一笔交易的不相交部分，可并行构建；输出顺序固定
	var (
		wg               sync.WaitGroup
		top, inner       []*core.Instruction
		topErr, innerErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		inner, innerErr = safeBuild(func() ([]*core.Instruction, error) {
			return b.inner(groups, whitelist)
		})
	}()
	top, topErr = safeBuild(func() ([]*core.Instruction, error) {
		return b.topLevel(tx.Transaction.Message.Instructions, tracked)
	})
	wg.Wait()

	if topErr != nil {
		return nil, topErr
	}
	if innerErr != nil {
		return nil, innerErr
	}

	out := make([]*core.Instruction, 0, len(top)+len(inner))
	out = append(out, top...)
	return append(out, inner...), nil
}

func safeBuild(fn func() ([]*core.Instruction, error)) (out []*core.Instruction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconstruct panic: %v", r)
		}
	}()
	return fn()
}

type builder struct {
	txHash    string
	keys      []string
	timestamp int64
}

func (b *builder) topLevel(ixs []core.CompiledInstruction, tracked ProgramSet) ([]*core.Instruction, error) {
	out := make([]*core.Instruction, 0, len(ixs))
	for i := range ixs {
		ix, ok, err := b.build(&ixs[i], i, -1, tracked)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		if ok {
			out = append(out, ix)
		}
	}
	return out, nil
}

func (b *builder) inner(groups []core.InnerInstructionGroup, whitelist ProgramSet) ([]*core.Instruction, error) {
	var out []*core.Instruction
	for _, group := range groups {
		for j := range group.Instructions {
			ix, ok, err := b.build(&group.Instructions[j], j, int(group.Index), whitelist)
			if err != nil {
				return nil, fmt.Errorf("inner instruction %d.%d: %w", group.Index, j, err)
			}
			if ok {
				out = append(out, ix)
			}
		}
	}
	return out, nil
}

// build 程序 ID 不在 filter 中时返回 ok=false，此时不解析账户与数据
func (b *builder) build(ci *core.CompiledInstruction, index, parentIdx int, filter ProgramSet) (*core.Instruction, bool, error) {
	programID, err := b.key(ci.ProgramIDIndex)
	if err != nil {
		return nil, false, fmt.Errorf("program id: %w", err)
	}
	if !filter.Has(programID) {
		return nil, false, nil
	}

	accounts := make([]string, len(ci.Accounts))
	for k, idx := range ci.Accounts {
		if accounts[k], err = b.key(idx); err != nil {
			return nil, false, fmt.Errorf("account %d: %w", k, err)
		}
	}

	return &core.Instruction{
		Index:     index,
		TxHash:    b.txHash,
		ProgramID: programID,
		Data:      decodeData(ci),
		ParentIdx: parentIdx,
		Accounts:  accounts,
		Timestamp: b.timestamp,
	}, true, nil
}

func (b *builder) key(idx uint16) (string, error) {
	if int(idx) >= len(b.keys) {
		return "", fmt.Errorf("%w: %d >= %d", ErrAccountIndexOutOfRange, idx, len(b.keys))
	}
	return b.keys[idx], nil
}

// decodeData base58 解码失败时直接使用原始文本字节
func decodeData(ci *core.CompiledInstruction) []byte {
	if ci.RawData != nil {
		return ci.RawData
	}
	if ci.Data == "" {
		return []byte{}
	}
	data, err := base58.Decode(ci.Data)
	if err != nil {
		return []byte(ci.Data)
	}
	return data
}
