package mq

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEncodeRecord(t *testing.T) {
	st := NewStruct(map[string]any{
		"name":   "swap",
		"index":  3,
		"err":    false,
		"args":   map[string]any{"amount": "1000", "path": []any{"1", "2"}},
		"parent": nil,
	})

	raw, err := EncodeRecord(RecordInstructions, st)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0}, raw[:4])

	kind, decoded, err := DecodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, RecordInstructions, kind)

	m := decoded.AsMap()
	assert.Equal(t, "swap", m["name"])
	assert.Equal(t, float64(3), m["index"])
	assert.Equal(t, false, m["err"])
	assert.Nil(t, m["parent"])
	assert.Equal(t, map[string]any{"amount": "1000", "path": []any{"1", "2"}}, m["args"])
}

func TestEncodeRecord_Deterministic(t *testing.T) {
	m := map[string]any{"a": "1", "b": "2", "c": map[string]any{"x": true, "y": false}}
	first, err := EncodeRecord(RecordEvents, NewStruct(m))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := EncodeRecord(RecordEvents, NewStruct(m))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecodeRecord_Short(t *testing.T) {
	_, _, err := DecodeRecord([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestNewValue(t *testing.T) {
	assert.Equal(t, "123", NewValue(big.NewInt(123)).GetStringValue())
	assert.Equal(t, []any{"a", "b"}, NewValue([]string{"a", "b"}).AsInterface())
	assert.Equal(t, "7", NewValue(uint8(7)).GetStringValue())
	assert.Equal(t, float64(1_700_000_000_000), NewValue(int64(1_700_000_000_000)).GetNumberValue())

	var nilBig *big.Int
	_, isNull := NewValue(nilBig).GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}

func TestRecordKind_String(t *testing.T) {
	assert.Equal(t, "instructions", RecordInstructions.String())
	assert.Equal(t, "events", RecordEvents.String())
	assert.Equal(t, "unknown(9)", RecordKind(9).String())
}
