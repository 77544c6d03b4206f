package txadapter

import (
	"fmt"

	"github.com/mr-tron/base58"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"

	"github.com/Syoongy/sniffer/internal/logic/core"
)

// FromGrpc 将 gRPC 推送的交易转换为 RawTransaction。
// 账户与签名统一编码为 base58，指令数据保留原始字节（RawData）。
// geyser 推送已带 loadedAddresses，ALT 解析走回退路径即可。
func FromGrpc(slot uint64, blockTime *int64, tx *pb.SubscribeUpdateTransactionInfo) (_ *core.RawTransaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("FromGrpc panic: %v", r)
		}
	}()

	if tx == nil || tx.Transaction == nil || tx.Transaction.Message == nil {
		return nil, fmt.Errorf("invalid transaction: missing message")
	}
	msg := tx.Transaction.Message

	signatures := make([]string, len(tx.Transaction.Signatures))
	for i, s := range tx.Transaction.Signatures {
		signatures[i] = base58.Encode(s)
	}

	out := &core.RawTransaction{
		Slot:      slot,
		BlockTime: blockTime,
		Version:   core.LegacyVersion,
		Transaction: core.TransactionBody{
			Signatures: signatures,
			Message: core.Message{
				AccountKeys:     encodeKeys(msg.AccountKeys),
				RecentBlockhash: base58.Encode(msg.RecentBlockhash),
				Instructions:    make([]core.CompiledInstruction, len(msg.Instructions)),
			},
		},
	}
	if msg.Versioned {
		out.Version = 0
	}
	if h := msg.Header; h != nil {
		out.Transaction.Message.Header = core.MessageHeader{
			NumRequiredSignatures:       uint8(h.NumRequiredSignatures),
			NumReadonlySignedAccounts:   uint8(h.NumReadonlySignedAccounts),
			NumReadonlyUnsignedAccounts: uint8(h.NumReadonlyUnsignedAccounts),
		}
	}
	for i, ix := range msg.Instructions {
		out.Transaction.Message.Instructions[i] = core.CompiledInstruction{
			ProgramIDIndex: uint16(ix.ProgramIdIndex),
			Accounts:       widen(ix.Accounts),
			RawData:        nonNil(ix.Data),
		}
	}
	for _, l := range msg.AddressTableLookups {
		out.Transaction.Message.AddressTableLookups = append(out.Transaction.Message.AddressTableLookups, core.AddressTableLookup{
			AccountKey:      base58.Encode(l.AccountKey),
			WritableIndexes: widen(l.WritableIndexes),
			ReadonlyIndexes: widen(l.ReadonlyIndexes),
		})
	}

	if m := tx.Meta; m != nil {
		meta := &core.TransactionMeta{
			Fee:         m.Fee,
			LogMessages: m.LogMessages,
			LoadedAddresses: &core.LoadedAddresses{
				Writable: encodeKeys(m.LoadedWritableAddresses),
				Readonly: encodeKeys(m.LoadedReadonlyAddresses),
			},
			InnerInstructions: make([]core.InnerInstructionGroup, len(m.InnerInstructions)),
		}
		// nil 指针不能直接赋给 any，否则会被视为失败交易
		if m.Err != nil {
			meta.Err = m.Err.Err
		}
		for i, group := range m.InnerInstructions {
			ixs := make([]core.CompiledInstruction, len(group.Instructions))
			for j, inner := range group.Instructions {
				ixs[j] = core.CompiledInstruction{
					ProgramIDIndex: uint16(inner.ProgramIdIndex),
					Accounts:       widen(inner.Accounts),
					RawData:        nonNil(inner.Data),
					StackHeight:    inner.StackHeight,
				}
			}
			meta.InnerInstructions[i] = core.InnerInstructionGroup{
				Index:        uint16(group.Index),
				Instructions: ixs,
			}
		}
		out.Meta = meta
	}

	return out, nil
}

func encodeKeys(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = base58.Encode(k)
	}
	return out
}

func widen(idx []byte) []uint16 {
	out := make([]uint16, len(idx))
	for i, v := range idx {
		out[i] = uint16(v)
	}
	return out
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
