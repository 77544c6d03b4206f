package discriminator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syoongy/sniffer/internal/idl"
)

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"swap":                     "swap",
		"initializeConfig":         "initialize_config",
		"swapV2":                   "swap_v2",
		"aToB":                     "a_to_b",
		"HTTPServer":               "http_server",
		"set_fee":                  "set_fee",
		"v2Swap":                   "v2_swap",
		"openPositionWithMetadata": "open_position_with_metadata",
	}
	for in, want := range cases {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}

func TestSighash_Known(t *testing.T) {
	// sha256("global:swap")[:8]
	assert.Equal(t, Discriminator{248, 198, 158, 145, 225, 117, 135, 200}, Sighash(NamespaceGlobal, "swap"))
	assert.Equal(t, "icSNZP7U1uh", Sighash(NamespaceGlobal, "swap").Base58())
	assert.Equal(t, "bsgEPARPhTs", Sighash(NamespaceGlobal, "initializeConfig").Base58())
	assert.Equal(t, "hFNDFCg2SWJ", Sighash(NamespaceState, "setFee").Base58())

	assert.Equal(t, Discriminator{64, 198, 205, 232, 38, 8, 113, 226}, Event("SwapEvent"))
	assert.Equal(t, "QMbN6CYIceI=", Event("SwapEvent").Base64())
}

func TestDiscriminator_Determinism(t *testing.T) {
	for _, name := range []string{"swap", "initializeConfig", "SwapEvent"} {
		assert.Equal(t, Sighash(NamespaceGlobal, name), Sighash(NamespaceGlobal, name))
		assert.Equal(t, Event(name), Event(name))
		assert.NotEqual(t, Sighash(NamespaceGlobal, name), Event(name), "instruction and event must differ for %s", name)
		assert.NotEqual(t, Sighash(NamespaceGlobal, name), Sighash(NamespaceState, name))
	}
}

func TestBuild(t *testing.T) {
	x, err := idl.Load(filepath.Join("..", "..", "idl", "testdata", "swap_program.json"))
	require.NoError(t, err)

	ixIndex, evIndex, err := Build(x)
	require.NoError(t, err)
	assert.Equal(t, 3, ixIndex.Len(), "2 global instructions + 1 state method")
	assert.Equal(t, 1, evIndex.Len())

	swap, ok := ixIndex.Lookup("icSNZP7U1uh")
	require.True(t, ok)
	assert.Equal(t, "swap", swap.Name)
	assert.Equal(t, NamespaceGlobal, swap.Namespace)
	assert.Len(t, swap.Accounts, 4)
	assert.Equal(t, []string{"amount", "otherAmountThreshold", "sqrtPriceLimit", "amountSpecifiedIsInput", "aToB"}, swap.Layout.FieldNames())

	setFee, ok := ixIndex.Lookup("hFNDFCg2SWJ")
	require.True(t, ok)
	assert.Equal(t, NamespaceState, setFee.Namespace)

	ev, ok := evIndex.Lookup("QMbN6CYIceI=")
	require.True(t, ok)
	assert.Equal(t, "SwapEvent", ev.Name)

	// 指令表与事件表互不可查
	_, ok = ixIndex.Lookup(Event("SwapEvent").Base58())
	assert.False(t, ok)
	_, ok = evIndex.Lookup(Sighash(NamespaceGlobal, "swap").Base64())
	assert.False(t, ok)

	_, ok = ixIndex.Lookup(ReservedIdlKey)
	assert.False(t, ok)
}

func TestKeyOf(t *testing.T) {
	ixIndex := &InstructionIndex{}
	d := Sighash(NamespaceGlobal, "swap")

	key, ok := ixIndex.KeyOf(append(d[:], 1, 2, 3))
	require.True(t, ok)
	assert.Equal(t, d.Base58(), key)

	_, ok = ixIndex.KeyOf([]byte{1, 2, 3})
	assert.False(t, ok)

	evIndex := &EventIndex{}
	e := Event("SwapEvent")
	key, ok = evIndex.KeyOf(e[:])
	require.True(t, ok)
	assert.Equal(t, e.Base64(), key)
}

func TestIsReserved(t *testing.T) {
	tag := []byte{64, 244, 188, 120, 167, 233, 105, 10}
	key, ok := (&InstructionIndex{}).KeyOf(tag)
	require.True(t, ok)
	assert.True(t, IsReserved(key))
	assert.False(t, IsReserved("icSNZP7U1uh"))
}
