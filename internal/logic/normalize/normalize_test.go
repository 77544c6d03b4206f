package normalize

import (
	"math/big"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syoongy/sniffer/internal/types"
)

type corruptBigInt struct{}

func (corruptBigInt) BigInt() *big.Int {
	panic("corrupt limbs")
}

type wrappedBigInt struct{ n *big.Int }

func (w wrappedBigInt) BigInt() *big.Int { return w.n }

func TestNormalize_Rules(t *testing.T) {
	key := types.PubkeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	huge, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10)

	in := map[string]any{
		"amount":  uint64(18446744073709551615),
		"delta":   int32(-7),
		"price":   1.5,
		"sqrt":    huge,
		"wrapped": wrappedBigInt{n: big.NewInt(42)},
		"owner":   key,
		"label":   "hello",
		"flag":    true,
		"none":    nil,
		"ticks":   []any{uint16(1), uint16(64)},
		"seeds":   []byte{1, 2},
		"counts":  []uint64{3, 4},
		"reward": map[string]any{
			"mint":      key,
			"emissions": big.NewInt(-1),
		},
		"mode": map[string]any{"Fixed": []any{uint64(9)}},
	}

	out, ok := Normalize(in, 0).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "18446744073709551615", out["amount"])
	assert.Equal(t, "-7", out["delta"])
	assert.Equal(t, "1.5", out["price"])
	assert.Equal(t, "340282366920938463463374607431768211455", out["sqrt"])
	assert.Equal(t, "42", out["wrapped"])
	assert.Equal(t, "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc", out["owner"])
	assert.Equal(t, "hello", out["label"])
	assert.Equal(t, true, out["flag"])
	assert.Nil(t, out["none"])
	assert.Equal(t, []any{"1", "64"}, out["ticks"])
	assert.Equal(t, []any{"1", "2"}, out["seeds"])
	assert.Equal(t, []any{"3", "4"}, out["counts"])
	assert.Equal(t, map[string]any{
		"mint":      "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
		"emissions": "-1",
	}, out["reward"])
	assert.Equal(t, map[string]any{"Fixed": []any{"9"}}, out["mode"])
}

func TestNormalize_ZeroValues(t *testing.T) {
	out := Normalize(map[string]any{"a": uint64(0), "b": 0.0}, 0)
	assert.Equal(t, map[string]any{"a": "0", "b": "0"}, out)
}

func TestNormalize_BestEffort(t *testing.T) {
	bad := corruptBigInt{}
	in := map[string]any{
		"broken":  bad,
		"amount":  uint64(5),
		"nested":  []any{bad, uint8(1)},
		"pubkeys": []types.Pubkey{{1}},
	}

	out, ok := Normalize(in, 0).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, bad, out["broken"])
	assert.Equal(t, "5", out["amount"])
	assert.Equal(t, []any{bad, "1"}, out["nested"])
	assert.Equal(t, []any{types.Pubkey{1}.String()}, out["pubkeys"])

	assert.NotPanics(t, func() { Normalize(bad, 0) })
	assert.Equal(t, bad, Normalize(bad, 0))
}

func TestNormalize_DepthCap(t *testing.T) {
	// 顶层字段的容器位于 depth 0，levels[i] 位于 depth i
	levels := make([]map[string]any, 12)
	for i := range levels {
		levels[i] = map[string]any{"n": uint64(i)}
		if i > 0 {
			levels[i-1]["next"] = levels[i]
		}
	}
	args := map[string]any{"root": levels[0], "top": uint64(7)}

	assert.NotPanics(t, func() { Fields(args) })

	assert.Equal(t, "7", args["top"])
	for i := 0; i < MaxDepth; i++ {
		assert.Equal(t, strconv.Itoa(i), levels[i]["n"], "level %d should be converted", i)
	}
	assert.Equal(t, uint64(11), levels[11]["n"])

	deep := []any{uint64(1)}
	assert.Equal(t, []any{uint64(1)}, Normalize(deep, MaxDepth))
	assert.Equal(t, "1", Normalize(uint64(1), MaxDepth))
}

type positionFixture struct {
	Owner     types.Pubkey
	Liquidity *big.Int
	Ticks     [2]int32
	Reward    *rewardFixture
	Empty     *rewardFixture
	internal  uint64
}

type rewardFixture struct {
	Growth uint64
}

func TestNormalize_Struct(t *testing.T) {
	in := map[string]any{
		"position": positionFixture{
			Owner:     types.Pubkey{3},
			Liquidity: big.NewInt(500),
			Ticks:     [2]int32{-64, 64},
			Reward:    &rewardFixture{Growth: 9},
			internal:  1,
		},
	}

	Fields(in)
	assert.Equal(t, map[string]any{
		"Owner":     types.Pubkey{3}.String(),
		"Liquidity": "500",
		"Ticks":     []any{"-64", "64"},
		"Reward":    map[string]any{"Growth": "9"},
		"Empty":     (*rewardFixture)(nil),
	}, in["position"])
}

func TestNormalize_Idempotent(t *testing.T) {
	in := map[string]any{
		"amount": big.NewInt(100),
		"owner":  types.Pubkey{7},
		"list":   []any{uint32(1), map[string]any{"x": int64(-2)}},
		"bytes":  []byte{9},
	}
	once := Normalize(in, 0)
	snapshot := map[string]any{
		"amount": "100",
		"owner":  types.Pubkey{7}.String(),
		"list":   []any{"1", map[string]any{"x": "-2"}},
		"bytes":  []any{"9"},
	}
	assert.Equal(t, snapshot, once)
	assert.Equal(t, snapshot, Normalize(once, 0))
}
