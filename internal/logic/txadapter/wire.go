package txadapter

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/Syoongy/sniffer/internal/logic/core"
)

// FromWire 解析 base64 编码的序列化交易（getTransaction encoding=base64），
// meta 由调用方从同一响应中单独提供
func FromWire(wire string, meta *core.TransactionMeta, slot uint64, blockTime *int64) (*core.RawTransaction, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return nil, fmt.Errorf("decode base64 transaction: %w", err)
	}
	stx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode wire transaction: %w", err)
	}

	msg := &stx.Message
	out := &core.RawTransaction{
		Slot:      slot,
		BlockTime: blockTime,
		Meta:      meta,
		Version:   core.LegacyVersion,
		Transaction: core.TransactionBody{
			Signatures: make([]string, len(stx.Signatures)),
			Message: core.Message{
				Header: core.MessageHeader{
					NumRequiredSignatures:       msg.Header.NumRequiredSignatures,
					NumReadonlySignedAccounts:   msg.Header.NumReadonlySignedAccounts,
					NumReadonlyUnsignedAccounts: msg.Header.NumReadonlyUnsignedAccounts,
				},
				AccountKeys:     make([]string, len(msg.AccountKeys)),
				RecentBlockhash: msg.RecentBlockhash.String(),
				Instructions:    make([]core.CompiledInstruction, len(msg.Instructions)),
			},
		},
	}
	if msg.IsVersioned() {
		out.Version = 0
	}
	for i, s := range stx.Signatures {
		out.Transaction.Signatures[i] = s.String()
	}
	for i, k := range msg.AccountKeys {
		out.Transaction.Message.AccountKeys[i] = k.String()
	}
	for i, ix := range msg.Instructions {
		out.Transaction.Message.Instructions[i] = core.CompiledInstruction{
			ProgramIDIndex: ix.ProgramIDIndex,
			Accounts:       append([]uint16(nil), ix.Accounts...),
			RawData:        nonNil(ix.Data),
		}
	}
	for _, l := range msg.AddressTableLookups {
		lookup := core.AddressTableLookup{AccountKey: l.AccountKey.String()}
		for _, w := range l.WritableIndexes {
			lookup.WritableIndexes = append(lookup.WritableIndexes, uint16(w))
		}
		for _, r := range l.ReadonlyIndexes {
			lookup.ReadonlyIndexes = append(lookup.ReadonlyIndexes, uint16(r))
		}
		out.Transaction.Message.AddressTableLookups = append(out.Transaction.Message.AddressTableLookups, lookup)
	}
	return out, nil
}
