package dispatcher

import (
	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/mq"
	"google.golang.org/protobuf/types/known/structpb"
)

const envelopeVersion = 1

func buildEnvelope(source string, records []any) *structpb.Struct {
	return mq.NewStruct(map[string]any{
		"version": envelopeVersion,
		"source":  source,
		"records": records,
	})
}

func instructionRecord(slot uint64, ix *core.DecodedInstruction) map[string]any {
	mapped := make([]any, len(ix.MappedAccounts))
	for i, acc := range ix.MappedAccounts {
		mapped[i] = map[string]any{
			"name":     acc.Name,
			"pubkey":   acc.Pubkey,
			"isMut":    acc.IsMut,
			"isSigner": acc.IsSigner,
		}
	}
	inner := make([]any, len(ix.InnerInstructions))
	for i, child := range ix.InnerInstructions {
		inner[i] = instructionRecord(slot, child)
	}
	return map[string]any{
		"slot":              int64(slot),
		"txHash":            ix.TxHash,
		"timestamp":         ix.Timestamp,
		"name":              ix.Name,
		"programId":         ix.ProgramID,
		"accounts":          ix.Accounts,
		"mappedAccounts":    mapped,
		"args":              ix.Args,
		"parentIndex":       ix.ParentIndex,
		"index":             ix.Index,
		"innerInstructions": inner,
		"err":               ix.Err,
	}
}

func eventRecord(slot uint64, ev *core.DecodedEvent) map[string]any {
	return map[string]any{
		"slot":      int64(slot),
		"txHash":    ev.TxHash,
		"programId": ev.ProgramID,
		"name":      ev.Name,
		"data":      ev.Data,
	}
}
