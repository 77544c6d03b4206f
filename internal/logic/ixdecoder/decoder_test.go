package ixdecoder

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syoongy/sniffer/internal/idl"
	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/discriminator"
	"github.com/Syoongy/sniffer/internal/logic/layout"
)

type swapArgs struct {
	Amount                 uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         [16]byte
	AmountSpecifiedIsInput uint8
	AToB                   uint8
}

func loadIndex(t *testing.T) *discriminator.InstructionIndex {
	t.Helper()
	x, err := idl.Load(filepath.Join("..", "..", "idl", "testdata", "swap_program.json"))
	require.NoError(t, err)
	ixIndex, _, err := discriminator.Build(x)
	require.NoError(t, err)
	return ixIndex
}

func swapData(t *testing.T) []byte {
	t.Helper()
	var limit [16]byte
	copy(limit[:], layout.Int128ToLE(big.NewInt(4295048016)))
	payload, err := borsh.Serialize(swapArgs{
		Amount:                 1000,
		OtherAmountThreshold:   0,
		SqrtPriceLimit:         limit,
		AmountSpecifiedIsInput: 1,
		AToB:                   0,
	})
	require.NoError(t, err)

	// sha256("global:swap")[:8]
	data := []byte{248, 198, 158, 145, 225, 117, 135, 200}
	return append(data, payload...)
}

func swapInstruction(t *testing.T) *core.Instruction {
	return &core.Instruction{
		Index:     3,
		TxHash:    "tx-swap",
		ProgramID: "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
		Data:      swapData(t),
		ParentIdx: -1,
		Accounts:  []string{"authority", "pool", "oracle", "ownerA", "extra"},
		Timestamp: 1700000000000,
	}
}

func TestDecode_Swap(t *testing.T) {
	res := Decode(loadIndex(t), swapInstruction(t), false)
	require.Equal(t, core.ResultDecoded, res.Kind, "err: %v", res.Err)

	ix := res.Instruction
	assert.Equal(t, "swap", ix.Name)
	assert.Equal(t, "tx-swap", ix.TxHash)
	assert.Equal(t, int64(1700000000000), ix.Timestamp)
	assert.Equal(t, -1, ix.ParentIndex)
	assert.Equal(t, 3, ix.Index)
	assert.False(t, ix.Err)
	assert.NotNil(t, ix.InnerInstructions)
	assert.Empty(t, ix.InnerInstructions)
	assert.Len(t, ix.Accounts, 5)

	assert.Equal(t, map[string]any{
		"amount":                 "1000",
		"otherAmountThreshold":   "0",
		"sqrtPriceLimit":         "4295048016",
		"amountSpecifiedIsInput": true,
		"aToB":                   false,
	}, ix.Args)

	// oracleGroup 为嵌套账户组，跳过但占位
	assert.Equal(t, []core.MappedAccount{
		{Name: "tokenAuthority", Pubkey: "authority", IsSigner: true},
		{Name: "whirlpool", Pubkey: "pool", IsMut: true},
		{Name: "tokenOwnerAccountA", Pubkey: "ownerA", IsMut: true},
	}, ix.MappedAccounts)
}

func TestDecode_TxErrorFlag(t *testing.T) {
	res := Decode(loadIndex(t), swapInstruction(t), true)
	require.True(t, res.IsDecoded())
	assert.True(t, res.Instruction.Err)
}

func TestDecode_StateMethod(t *testing.T) {
	d := discriminator.Sighash(discriminator.NamespaceState, "setFee")
	ix := &core.Instruction{
		Data:      append(d[:], 0x2c, 0x01),
		ParentIdx: -1,
		Accounts:  []string{"admin"},
	}
	res := Decode(loadIndex(t), ix, false)
	require.True(t, res.IsDecoded(), "err: %v", res.Err)
	assert.Equal(t, "setFee", res.Instruction.Name)
	assert.Equal(t, map[string]any{"fee": "300"}, res.Instruction.Args)
}

func TestDecode_ReservedDiscriminator(t *testing.T) {
	ix := swapInstruction(t)
	ix.Data = []byte{64, 244, 188, 120, 167, 233, 105, 10, 1, 2, 3}
	res := Decode(loadIndex(t), ix, false)
	assert.Equal(t, core.ResultNotAnchor, res.Kind)
	assert.True(t, res.Reserved)
	assert.Nil(t, res.Instruction)
	assert.NoError(t, res.Err)
}

func TestDecode_NotAnchor(t *testing.T) {
	index := loadIndex(t)

	ix := swapInstruction(t)
	ix.Data = []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	res := Decode(index, ix, false)
	assert.Equal(t, core.ResultNotAnchor, res.Kind)
	assert.False(t, res.Reserved)

	ix.Data = []byte{1, 2, 3}
	res = Decode(index, ix, false)
	assert.Equal(t, core.ResultNotAnchor, res.Kind)

	// 事件判别符不参与指令分派
	ev := discriminator.Event("SwapEvent")
	ix.Data = ev[:]
	assert.Equal(t, core.ResultNotAnchor, Decode(index, ix, false).Kind)
}

func TestDecode_Errors(t *testing.T) {
	index := loadIndex(t)

	ix := swapInstruction(t)
	ix.Data = ix.Data[:12]
	res := Decode(index, ix, false)
	assert.Equal(t, core.ResultError, res.Kind)
	assert.ErrorIs(t, res.Err, ErrDecodeArgs)
}

func TestDecode_FewerAccounts(t *testing.T) {
	ix := swapInstruction(t)
	ix.Accounts = ix.Accounts[:2]
	res := Decode(loadIndex(t), ix, false)
	require.Equal(t, core.ResultDecoded, res.Kind, "err: %v", res.Err)

	assert.Equal(t, []string{"authority", "pool"}, res.Instruction.Accounts)
	assert.Equal(t, []core.MappedAccount{
		{Name: "tokenAuthority", Pubkey: "authority", IsSigner: true},
		{Name: "whirlpool", Pubkey: "pool", IsMut: true},
		{Name: "tokenOwnerAccountA", Pubkey: "", IsMut: true},
	}, res.Instruction.MappedAccounts)
	assert.Equal(t, "1000", res.Instruction.Args["amount"])

	ix.Accounts = nil
	res = Decode(loadIndex(t), ix, false)
	require.True(t, res.IsDecoded(), "err: %v", res.Err)
	for _, acc := range res.Instruction.MappedAccounts {
		assert.Empty(t, acc.Pubkey, acc.Name)
	}
}

func TestDecode_MissingAccountMapping(t *testing.T) {
	x, err := idl.Parse([]byte(`{
		"name": "no_accounts",
		"instructions": [{"name": "ping", "args": [{"name": "n", "type": "u8"}]}]
	}`))
	require.NoError(t, err)
	index, _, err := discriminator.Build(x)
	require.NoError(t, err)

	d := discriminator.Sighash(discriminator.NamespaceGlobal, "ping")
	res := Decode(index, &core.Instruction{Data: append(d[:], 7)}, false)
	assert.Equal(t, core.ResultError, res.Kind)
	assert.ErrorIs(t, res.Err, ErrMissingAccountMapping)
}
