package dispatcher

import (
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/mq"
	"github.com/Syoongy/sniffer/pkg/utils"
)

// BuildInstructionKafkaJobs 构造解码指令的 KafkaJob。
// 按交易签名分区，同一交易的指令落在同一分区且保持重建顺序。
func BuildInstructionKafkaJobs(
	source string,
	topic string,
	partitions int,
	batch *processor.BatchResult,
) ([]*mq.KafkaJob, error) {
	if partitions <= 0 {
		partitions = 1
	}

	total := 0
	for _, tx := range batch.Txs {
		total += len(tx.Instructions)
	}
	if total == 0 {
		return nil, nil
	}

	buckets := make([][]any, partitions)
	capacity := utils.CalcCapPerPartition(total, partitions, 10)
	for i := range buckets {
		buckets[i] = make([]any, 0, capacity)
	}

	for _, tx := range batch.Txs {
		if len(tx.Instructions) == 0 {
			continue
		}
		pid := utils.PartitionBySignature(tx.TxHash, partitions)
		for _, ix := range tx.Instructions {
			buckets[pid] = append(buckets[pid], instructionRecord(tx.Slot, ix))
		}
	}
	return buildJobs(mq.RecordInstructions, topic, source, buckets)
}
