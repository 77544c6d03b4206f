package ixdecoder

import (
	"errors"
	"fmt"

	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/discriminator"
	"github.com/Syoongy/sniffer/internal/logic/normalize"
)

var (
	ErrMissingAccountMapping = errors.New("no account mapping for instruction")
	ErrDecodeArgs            = errors.New("decode instruction args")
)

// Decode 按前 8 字节判别符分派并解码单条指令：
//   - 数据不足 8 字节或判别符未命中 → NotAnchor（命中 IDL 管理指令时 Reserved=true）
//   - 命中但账户映射缺失、参数解码失败 → Failed
//   - 其余 → Decoded，参数已规范化
//
// 账户按声明位置映射，嵌套账户组占位但不输出；指令携带的账户少于声明时，缺失位置的 Pubkey 为空串。
func Decode(index *discriminator.InstructionIndex, ix *core.Instruction, hasTxErrored bool) (res core.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = core.Failed(fmt.Errorf("%w: panic: %v", ErrDecodeArgs, r))
		}
	}()

	key, ok := index.KeyOf(ix.Data)
	if !ok {
		return core.NotAnchor(false)
	}
	entry, ok := index.Lookup(key)
	if !ok {
		return core.NotAnchor(discriminator.IsReserved(key))
	}

	if entry.Accounts == nil {
		return core.Failed(fmt.Errorf("%w: %s", ErrMissingAccountMapping, entry.Name))
	}

	mapped := make([]core.MappedAccount, 0, len(entry.Accounts))
	for i := range entry.Accounts {
		acc := &entry.Accounts[i]
		if acc.IsGroup() {
			// 嵌套账户组暂不支持
			continue
		}
		var pubkey string
		if i < len(ix.Accounts) {
			pubkey = ix.Accounts[i]
		}
		mapped = append(mapped, core.MappedAccount{
			Name:     acc.Name,
			Pubkey:   pubkey,
			IsMut:    acc.IsMut,
			IsSigner: acc.IsSigner,
		})
	}

	args, err := entry.Layout.DecodeMap(ix.Data[discriminator.Size:])
	if err != nil {
		return core.Failed(fmt.Errorf("%w: %s: %v", ErrDecodeArgs, entry.Name, err))
	}
	normalize.Fields(args)

	return core.Decoded(&core.DecodedInstruction{
		TxHash:            ix.TxHash,
		Timestamp:         ix.Timestamp,
		Name:              entry.Name,
		ProgramID:         ix.ProgramID,
		Accounts:          ix.Accounts,
		MappedAccounts:    mapped,
		Args:              args,
		ParentIndex:       ix.ParentIdx,
		Index:             ix.Index,
		InnerInstructions: []*core.DecodedInstruction{},
		Err:               hasTxErrored,
	})
}
