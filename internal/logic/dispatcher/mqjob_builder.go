package dispatcher

import (
	"github.com/Syoongy/sniffer/internal/config"
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/mq"
)

// 记录来源
const (
	SourceGrpc = "grpc"
	SourceRpc  = "rpc"
)

// BuildAllKafkaJobs 构建一批交易的全部 KafkaJob（指令 + 事件）。
// 构建后的 []*mq.KafkaJob 可直接传入 mq.SendKafkaJobs 发送。
func BuildAllKafkaJobs(source string, batch *processor.BatchResult, cfg config.KafkaProducerConfig) ([]*mq.KafkaJob, error) {
	ixJobs, err := BuildInstructionKafkaJobs(source, cfg.Topics.Instruction, cfg.Partitions.Instruction, batch)
	if err != nil {
		return nil, err
	}
	evJobs, err := BuildEventKafkaJobs(source, cfg.Topics.Event, cfg.Partitions.Event, batch)
	if err != nil {
		return nil, err
	}

	jobs := make([]*mq.KafkaJob, 0, len(ixJobs)+len(evJobs))
	jobs = append(jobs, ixJobs...)
	jobs = append(jobs, evJobs...)
	return jobs, nil
}

// buildJobs 将每个分区 bucket 中的记录封装为 KafkaJob，空 bucket 跳过
func buildJobs(kind mq.RecordKind, topic, source string, buckets [][]any) ([]*mq.KafkaJob, error) {
	jobs := make([]*mq.KafkaJob, 0, len(buckets))
	for pid, list := range buckets {
		if len(list) == 0 {
			continue
		}
		value, err := mq.EncodeRecord(kind, buildEnvelope(source, list))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &mq.KafkaJob{
			Topic:     topic,
			Partition: int32(pid),
			Value:     value,
			Count:     len(list),
		})
	}
	return jobs, nil
}
