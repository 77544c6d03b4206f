package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/dispatcher"
	"github.com/Syoongy/sniffer/internal/logic/progress"
	"github.com/Syoongy/sniffer/internal/logic/txadapter"
	"github.com/Syoongy/sniffer/internal/svc"
	"github.com/Syoongy/sniffer/internal/types"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	defaultBatchSize    = 64
	defaultBatchFlushMs = 400
)

// TxProcessor 从 txChan 攒批，解码后投递 Kafka 并记录进度
type TxProcessor struct {
	sc         *svc.ServiceContext
	txChan     <-chan *TxUpdate
	batchSize  int
	flushEvery time.Duration
	ctx        context.Context
	cancel     func(err error)
	logx.Logger
}

func NewTxProcessor(sc *svc.ServiceContext, txChan <-chan *TxUpdate) *TxProcessor {
	ctx, cancel := context.WithCancelCause(context.Background())
	batchSize := sc.Config.Grpc.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushMs := sc.Config.Grpc.BatchFlushMs
	if flushMs <= 0 {
		flushMs = defaultBatchFlushMs
	}
	return &TxProcessor{
		sc:         sc,
		txChan:     txChan,
		batchSize:  batchSize,
		flushEvery: time.Duration(flushMs) * time.Millisecond,
		Logger:     logx.WithContext(ctx).WithFields(logx.Field("service", "tx_processor")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *TxProcessor) Start() {
	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	pending := make([]*TxUpdate, 0, p.batchSize)
	for {
		select {
		case <-p.ctx.Done():
			if len(pending) > 0 {
				// 退出前把已收到的交易处理完
				p.procBatch(context.Background(), pending)
			}
			return
		case u := <-p.txChan:
			pending = append(pending, u)
			if len(pending) >= p.batchSize {
				p.procBatch(p.ctx, pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				p.procBatch(p.ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

func (p *TxProcessor) Stop() {
	p.cancel(errors.New("service stop"))
}

func (p *TxProcessor) procBatch(ctx context.Context, updates []*TxUpdate) {
	startTime := time.Now()

	// 1. 过滤并转换合法交易
	txs := make([]*core.RawTransaction, 0, len(updates))
	for _, u := range updates {
		if !IsValidGrpcTx(u.Tx) {
			continue
		}
		tx, err := txadapter.FromGrpc(u.Slot, nil, u.Tx)
		if err != nil {
			p.Errorf("[grpc::procBatch] adapt tx at slot %d failed: %v", u.Slot, err)
			continue
		}
		txs = append(txs, tx)
	}
	if len(txs) == 0 {
		return
	}

	// 2. 并发解码，推送不带 blockTime，统一使用接收时间
	batch := p.sc.Processor.ProcessTransactions(ctx, txs, updates[len(updates)-1].ReceivedAt.UnixMilli())
	if p.sc.Accumulator != nil {
		p.sc.Accumulator.Add(batch)
	}

	// 3. 投递 Kafka
	if p.sc.Dispatcher != nil {
		dctx := ctx
		if ms := p.sc.Config.TimeConf.BatchDispatchTimeoutMs; ms > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
			defer cancel()
		}
		if err := p.sc.Dispatcher.Dispatch(dctx, dispatcher.SourceGrpc, batch); err != nil {
			p.Errorf("[grpc::procBatch] dispatch failed, %d txs not marked: %v", len(txs), err)
			return
		}
	}

	// 4. 记录进度
	if p.sc.ProgressManager != nil {
		records := progress.RecordsFromBatch(batch, progress.SourceGrpc)
		if err := p.sc.ProgressManager.MarkSignatures(ctx, records); err != nil {
			p.Errorf("[grpc::procBatch] mark progress failed: %v", err)
		}
	}

	p.Infof("[grpc::procBatch] txs=%d decoded=%d notAnchor=%d failed=%d events=%d cost=%v",
		batch.Stats.Transactions, batch.Stats.Decoded, batch.Stats.NotAnchor,
		batch.Stats.Failed, batch.Stats.Events, time.Since(startTime))
}

// IsValidGrpcTx 过滤结构不完整的推送；失败交易保留（解码时 Err=true）
func IsValidGrpcTx(tx *pb.SubscribeUpdateTransactionInfo) bool {
	if tx == nil || // - nil transaction info
		tx.Transaction == nil || // - missing Transaction field
		tx.Transaction.Message == nil || // - missing Message field in transaction
		len(tx.Transaction.Signatures) == 0 || // - missing transaction signature
		len(tx.Transaction.Signatures[0]) != types.SignatureSize || // - invalid transaction signature length
		tx.IsVote || // - vote transaction skipped
		tx.Meta == nil { // - missing transaction meta data
		return false
	}
	return true
}
