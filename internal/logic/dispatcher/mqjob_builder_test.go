package dispatcher

import (
	"testing"

	"github.com/Syoongy/sniffer/internal/config"
	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/mq"
	"github.com/Syoongy/sniffer/pkg/utils"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sig(b byte) string {
	raw := make([]byte, 64)
	raw[0] = b
	raw[27] = b
	return base58.Encode(raw)
}

func sampleBatch() *processor.BatchResult {
	txA, txB := sig(1), sig(2)
	return &processor.BatchResult{Txs: []*processor.TxResult{
		{
			TxHash: txA,
			Slot:   100,
			Instructions: []*core.DecodedInstruction{
				{
					TxHash:         txA,
					Name:           "swap",
					ProgramID:      "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
					Accounts:       []string{"a", "b"},
					MappedAccounts: []core.MappedAccount{{Name: "tokenAuthority", Pubkey: "a", IsSigner: true}},
					Args:           map[string]any{"amount": "1000"},
					ParentIndex:    -1,
					Index:          0,
				},
				{TxHash: txA, Name: "swap", ParentIndex: 0, Index: 1, Args: map[string]any{}},
			},
			Events: []core.DecodedEvent{{TxHash: txA, Name: "SwapEvent", Data: map[string]any{"amountIn": "7"}}},
		},
		{TxHash: txB, Slot: 101, Err: assert.AnError},
	}}
}

func TestBuildInstructionKafkaJobs(t *testing.T) {
	batch := sampleBatch()
	jobs, err := BuildInstructionKafkaJobs(SourceRpc, "ix", 4, batch)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, "ix", job.Topic)
	assert.Equal(t, utils.PartitionBySignature(batch.Txs[0].TxHash, 4), job.Partition)
	assert.Equal(t, 2, job.Count)

	kind, st, err := mq.DecodeRecord(job.Value)
	require.NoError(t, err)
	assert.Equal(t, mq.RecordInstructions, kind)

	env := st.AsMap()
	assert.Equal(t, "rpc", env["source"])
	assert.Equal(t, float64(1), env["version"])
	records := env["records"].([]any)
	require.Len(t, records, 2)

	first := records[0].(map[string]any)
	assert.Equal(t, "swap", first["name"])
	assert.Equal(t, float64(100), first["slot"])
	assert.Equal(t, float64(-1), first["parentIndex"])
	assert.Equal(t, []any{"a", "b"}, first["accounts"])
	assert.Equal(t, map[string]any{"amount": "1000"}, first["args"])
	assert.Equal(t, []any{}, first["innerInstructions"])
	mapped := first["mappedAccounts"].([]any)
	assert.Equal(t, true, mapped[0].(map[string]any)["isSigner"])

	assert.Equal(t, float64(1), records[1].(map[string]any)["index"])
}

func TestBuildEventKafkaJobs(t *testing.T) {
	jobs, err := BuildEventKafkaJobs(SourceGrpc, "ev", 0, sampleBatch())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int32(0), jobs[0].Partition)

	kind, st, err := mq.DecodeRecord(jobs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, mq.RecordEvents, kind)
	rec := st.AsMap()["records"].([]any)[0].(map[string]any)
	assert.Equal(t, "SwapEvent", rec["name"])
	assert.Equal(t, map[string]any{"amountIn": "7"}, rec["data"])
}

func TestBuildAllKafkaJobs(t *testing.T) {
	var cfg config.KafkaProducerConfig
	cfg.Topics.Instruction = "ix"
	cfg.Topics.Event = "ev"
	cfg.Partitions.Instruction = 2
	cfg.Partitions.Event = 2

	jobs, err := BuildAllKafkaJobs(SourceRpc, sampleBatch(), cfg)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "ix", jobs[0].Topic)
	assert.Equal(t, "ev", jobs[1].Topic)

	jobs, err = BuildAllKafkaJobs(SourceRpc, &processor.BatchResult{}, cfg)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
