package processor

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/discriminator"
)

const (
	whirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	helperPg  = "HeLpEr1111111111111111111111111111111111111"
)

func testKey(n byte) string {
	var b [32]byte
	b[0] = n
	b[31] = 0x5A
	return base58.Encode(b[:])
}

type swapArgs struct {
	Amount                 uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         [16]byte
	AmountSpecifiedIsInput uint8
	AToB                   uint8
}

type swapEvent struct {
	Whirlpool [32]byte
	AmountIn  uint64
	AmountOut uint64
	AToB      uint8
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	prog, err := LoadProgram(whirlpool, filepath.Join("..", "..", "idl", "testdata", "swap_program.json"))
	require.NoError(t, err)
	reg, err := NewRegistry([]string{whirlpool, helperPg}, prog)
	require.NoError(t, err)
	return NewProcessor(reg, 4, nil)
}

func swapData(t *testing.T, amount uint64) string {
	t.Helper()
	payload, err := borsh.Serialize(swapArgs{Amount: amount, AToB: 1})
	require.NoError(t, err)
	d := discriminator.Sighash(discriminator.NamespaceGlobal, "swap")
	return base58.Encode(append(d[:], payload...))
}

func swapEventLog(t *testing.T, amountIn uint64) string {
	t.Helper()
	payload, err := borsh.Serialize(swapEvent{AmountIn: amountIn, AmountOut: 1})
	require.NoError(t, err)
	d := discriminator.Event("SwapEvent")
	return "Program data: " + base64.StdEncoding.EncodeToString(append(d[:], payload...))
}

// keys: 0..3 普通账户，4 whirlpool，5 helper
func swapTx(t *testing.T, sig string, amount uint64) *core.RawTransaction {
	blockTime := int64(1700000000)
	return &core.RawTransaction{
		Slot:      99,
		BlockTime: &blockTime,
		Transaction: core.TransactionBody{
			Signatures: []string{sig},
			Message: core.Message{
				AccountKeys: []string{testKey(1), testKey(2), testKey(3), testKey(4), whirlpool, helperPg},
				Instructions: []core.CompiledInstruction{
					{ProgramIDIndex: 4, Accounts: []uint16{0, 1, 2, 3}, Data: swapData(t, amount)},
					// 未知判别符
					{ProgramIDIndex: 4, Accounts: []uint16{0}, Data: base58.Encode([]byte{1, 2, 3, 4, 5, 6, 7, 8})},
					// 账户不足
					{ProgramIDIndex: 4, Accounts: []uint16{0}, Data: swapData(t, 1)},
				},
			},
		},
		Meta: &core.TransactionMeta{
			InnerInstructions: []core.InnerInstructionGroup{
				{Index: 0, Instructions: []core.CompiledInstruction{
					{ProgramIDIndex: 5, Accounts: []uint16{0}, Data: "3"},
					{ProgramIDIndex: 4, Accounts: []uint16{0, 1, 2, 3}, Data: swapData(t, amount+1)},
				}},
			},
			LogMessages: []string{
				"Program " + whirlpool + " invoke [1]",
				swapEventLog(t, amount),
				"Program " + helperPg + " invoke [2]",
				"Program " + helperPg + " success",
				"Program " + whirlpool + " success",
			},
		},
	}
}

func TestProcessTransaction(t *testing.T) {
	p := newTestProcessor(t)
	res := p.ProcessTransaction(swapTx(t, "sigA", 500), 0)

	require.NoError(t, res.Err)
	require.NoError(t, res.LogErr)
	assert.Equal(t, "sigA", res.TxHash)
	assert.False(t, res.HasErrored)

	require.Len(t, res.Instructions, 2)
	top, inner := res.Instructions[0], res.Instructions[1]
	assert.Equal(t, "swap", top.Name)
	assert.Equal(t, -1, top.ParentIndex)
	assert.Equal(t, "500", top.Args["amount"])
	assert.Equal(t, int64(1700000000000), top.Timestamp)
	assert.Equal(t, 0, inner.ParentIndex)
	assert.Equal(t, 1, inner.Index)
	assert.Equal(t, "501", inner.Args["amount"])

	// 未知判别符 + helper 程序（无 IDL）
	assert.Equal(t, 2, res.NotAnchor)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Index)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "SwapEvent", res.Events[0].Name)
	assert.Equal(t, "sigA", res.Events[0].TxHash)
	assert.Equal(t, "500", res.Events[0].Data["amountIn"])
}

func TestProcessTransactions_Batch(t *testing.T) {
	p := newTestProcessor(t)

	broken := swapTx(t, "sigBroken", 1)
	broken.Transaction.Signatures = nil
	failed := swapTx(t, "sigFailed", 7)
	failed.Meta.Err = map[string]any{"InstructionError": []any{0, "Custom"}}
	underflow := swapTx(t, "sigUnderflow", 8)
	underflow.Meta.LogMessages = []string{"Program " + whirlpool + " success"}

	txs := []*core.RawTransaction{swapTx(t, "sig1", 10), broken, failed, underflow, swapTx(t, "sig1", 11)}
	batch := p.ProcessTransactions(context.Background(), txs, 42)

	require.Len(t, batch.Txs, 5)
	assert.Equal(t, "sig1", batch.Txs[0].TxHash)
	assert.Error(t, batch.Txs[1].Err)
	assert.True(t, batch.Txs[2].HasErrored)
	assert.True(t, batch.Txs[2].Instructions[0].Err)
	assert.Error(t, batch.Txs[3].LogErr)
	assert.Len(t, batch.Txs[3].Instructions, 2, "log scan failure does not drop instructions")
	assert.Equal(t, int64(42), batch.Txs[4].Instructions[0].Timestamp)

	assert.Equal(t, Stats{
		Transactions: 5,
		Rejected:     1,
		Decoded:      8,
		NotAnchor:    8,
		Failed:       4,
		Events:       3,
		LogFailures:  1,
	}, batch.Stats)

	assert.Equal(t, []string{"sig1", "sigFailed", "sigUnderflow", "sig1"}, batch.Hashes())
	grouped := batch.Grouped()
	assert.Len(t, grouped, 3)
	assert.Len(t, grouped["sig1"], 4)
}

func TestProcessTransactions_Cancelled(t *testing.T) {
	p := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := p.ProcessTransactions(ctx, []*core.RawTransaction{swapTx(t, "sig1", 1)}, 0)
	assert.ErrorIs(t, batch.Txs[0].Err, context.Canceled)
	assert.Equal(t, 1, batch.Stats.Rejected)
}

func TestRegistry(t *testing.T) {
	prog, err := LoadProgram(whirlpool, filepath.Join("..", "..", "idl", "testdata", "swap_program.json"))
	require.NoError(t, err)

	_, err = NewRegistry(nil, prog, prog)
	assert.Error(t, err)

	reg, err := NewRegistry([]string{helperPg}, prog)
	require.NoError(t, err)
	got, ok := reg.Get(whirlpool)
	require.True(t, ok)
	assert.Same(t, prog, got)
	assert.True(t, reg.Tracked().Has(whirlpool))
	assert.False(t, reg.Whitelist().Has(whirlpool))
	assert.Equal(t, []string{whirlpool}, reg.IDs())

	_, err = LoadProgram(whirlpool, "does-not-exist.json")
	assert.Error(t, err)
}
