package dispatcher

import (
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/mq"
	"github.com/Syoongy/sniffer/pkg/utils"
)

// BuildEventKafkaJobs 构造日志事件的 KafkaJob，分区策略与指令一致
func BuildEventKafkaJobs(
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
		total += len(tx.Events)
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
		if len(tx.Events) == 0 {
			continue
		}
		pid := utils.PartitionBySignature(tx.TxHash, partitions)
		for i := range tx.Events {
			buckets[pid] = append(buckets[pid], eventRecord(tx.Slot, &tx.Events[i]))
		}
	}
	return buildJobs(mq.RecordEvents, topic, source, buckets)
}
