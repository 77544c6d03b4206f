package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Syoongy/sniffer/internal/config"
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/metrics"
	"github.com/Syoongy/sniffer/internal/mq"
	"github.com/zeromicro/go-zero/core/logx"
)

const defaultSendTimeout = 3 * time.Second

// Dispatcher 将一批解码结果编码并投递到 Kafka
type Dispatcher struct {
	producer    mq.Producer
	cfg         config.KafkaProducerConfig
	sendTimeout time.Duration
	metrics     *metrics.Metrics
}

func NewDispatcher(producer mq.Producer, cfg config.KafkaProducerConfig, sendTimeoutMs int, m *metrics.Metrics) *Dispatcher {
	timeout := time.Duration(sendTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{
		producer:    producer,
		cfg:         cfg,
		sendTimeout: timeout,
		metrics:     m,
	}
}

// Dispatch 构建并发送 KafkaJob，任意一条失败即返回错误（调用方不应推进进度）
func (d *Dispatcher) Dispatch(ctx context.Context, source string, batch *processor.BatchResult) error {
	jobs, err := BuildAllKafkaJobs(source, batch, d.cfg)
	if err != nil {
		return fmt.Errorf("build kafka jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	_, failed := mq.SendKafkaJobs(ctx, d.producer, jobs, d.sendTimeout)
	if len(failed) == 0 {
		logx.WithContext(ctx).Debugf("[dispatcher::Dispatch] sent %d jobs", len(jobs))
		return nil
	}

	errs := make([]error, 0, len(failed))
	for _, f := range failed {
		d.metrics.PublishFailed()
		errs = append(errs, fmt.Errorf("topic=%s partition=%d: %w", f.Job.Topic, f.Job.Partition, f.Err))
	}
	logx.WithContext(ctx).Errorf("[dispatcher::Dispatch] %d/%d jobs failed", len(failed), len(jobs))
	return errors.Join(errs...)
}
