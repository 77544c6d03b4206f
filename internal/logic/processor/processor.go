package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Syoongy/sniffer/internal/consts"
	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/eventparser"
	"github.com/Syoongy/sniffer/internal/logic/ixdecoder"
	"github.com/Syoongy/sniffer/internal/logic/txadapter"
	"github.com/Syoongy/sniffer/internal/metrics"
	"github.com/Syoongy/sniffer/pkg/logger"
	"github.com/Syoongy/sniffer/pkg/utils"
)

// InstructionFailure 命中 schema 但解码失败的指令
type InstructionFailure struct {
	ProgramID string
	Index     int
	ParentIdx int
	Err       error
}

// TxResult 单笔交易的解码结果。
// Err 非空表示交易本身不合法（无签名、账户下标越界），其余字段为空；
// LogErr 非空表示日志扫描被中止，不影响已解码的指令。
type TxResult struct {
	TxHash       string
	Slot         uint64
	BlockTime    int64 // Unix 秒，未知为 0
	HasErrored   bool
	Instructions []*core.DecodedInstruction
	Events       []core.DecodedEvent
	NotAnchor    int
	Failures     []InstructionFailure
	LogErr       error
	Err          error
}

// Stats 批次统计
type Stats struct {
	Transactions int
	Rejected     int
	Decoded      int
	NotAnchor    int
	Failed       int
	Events       int
	LogFailures  int
}

// BatchResult 一批交易的结果，Txs 与输入顺序一致
type BatchResult struct {
	Txs   []*TxResult
	Stats Stats
}

// Hashes 含解码成功指令的交易哈希，按发现顺序
func (b *BatchResult) Hashes() []string {
	hashes := make([]string, 0, len(b.Txs))
	for _, tx := range b.Txs {
		if len(tx.Instructions) > 0 {
			hashes = append(hashes, tx.TxHash)
		}
	}
	return hashes
}

// Grouped txHash → 解码成功的指令（交易内保持重建顺序）
func (b *BatchResult) Grouped() map[string][]*core.DecodedInstruction {
	out := make(map[string][]*core.DecodedInstruction, len(b.Txs))
	for _, tx := range b.Txs {
		if len(tx.Instructions) == 0 {
			continue
		}
		out[tx.TxHash] = append(out[tx.TxHash], tx.Instructions...)
	}
	return out
}

// Processor 对一批交易执行：指令树重建 → 指令解码 → 日志事件扫描。
// 只读共享 Registry，可被多个 goroutine 同时使用。
type Processor struct {
	registry *Registry
	workers  int
	metrics  *metrics.Metrics
}

func NewProcessor(registry *Registry, workers int, m *metrics.Metrics) *Processor {
	if workers <= 0 {
		workers = consts.CpuCount + 2
	}
	return &Processor{registry: registry, workers: workers, metrics: m}
}

func (p *Processor) Registry() *Registry {
	return p.registry
}

// ProcessTransactions 并发处理一批交易，单笔交易失败不影响其他交易。
// timestampMs > 0 时所有指令使用该时间戳，否则取各交易的 blockTime。
func (p *Processor) ProcessTransactions(ctx context.Context, txs []*core.RawTransaction, timestampMs int64) *BatchResult {
	start := time.Now()
	results := utils.ParallelMap(txs, p.workers, func(tx *core.RawTransaction) *TxResult {
		if err := ctx.Err(); err != nil {
			return &TxResult{Err: err}
		}
		return p.ProcessTransaction(tx, timestampMs)
	})

	batch := &BatchResult{Txs: results}
	for _, r := range results {
		batch.Stats.add(r)
	}
	p.metrics.ObserveBatch(time.Since(start).Seconds())
	return batch
}

func (s *Stats) add(r *TxResult) {
	s.Transactions++
	if r.Err != nil {
		s.Rejected++
		return
	}
	s.Decoded += len(r.Instructions)
	s.NotAnchor += r.NotAnchor
	s.Failed += len(r.Failures)
	s.Events += len(r.Events)
	if r.LogErr != nil {
		s.LogFailures++
	}
}

// ProcessTransaction 处理单笔交易
func (p *Processor) ProcessTransaction(tx *core.RawTransaction, timestampMs int64) *TxResult {
	res := &TxResult{Slot: tx.Slot, HasErrored: tx.HasErrored()}
	if tx.BlockTime != nil {
		res.BlockTime = *tx.BlockTime
	}

	hash, err := tx.Hash()
	if err != nil {
		logger.Errorf("[processor::ProcessTransaction] slot=%d: %v", tx.Slot, err)
		p.metrics.TxRejected()
		res.Err = err
		return res
	}
	res.TxHash = hash

	if timestampMs <= 0 {
		timestampMs = tx.BlockTimeMs()
	}

	ixs, err := txadapter.ReconstructTracked(tx, p.registry.Tracked(), p.registry.Whitelist(), timestampMs)
	if err != nil {
		logger.Errorf("[processor::ProcessTransaction] tx=%s reconstruct failed: %v", hash, err)
		p.metrics.TxRejected()
		res.Err = fmt.Errorf("reconstruct %s: %w", hash, err)
		return res
	}

	for _, ix := range ixs {
		p.decodeInstruction(res, ix)
	}
	p.scanLogs(res, tx.Logs())

	p.metrics.TxProcessed()
	p.metrics.EventsDecoded(len(res.Events))
	return res
}

func (p *Processor) decodeInstruction(res *TxResult, ix *core.Instruction) {
	prog, ok := p.registry.Get(ix.ProgramID)
	if !ok {
		// 白名单中但未注册 IDL 的 inner 程序
		res.NotAnchor++
		p.metrics.Instruction(core.ResultNotAnchor.String())
		return
	}

	r := ixdecoder.Decode(prog.Instructions, ix, res.HasErrored)
	p.metrics.Instruction(r.Kind.String())
	switch r.Kind {
	case core.ResultDecoded:
		res.Instructions = append(res.Instructions, r.Instruction)
	case core.ResultNotAnchor:
		res.NotAnchor++
	case core.ResultError:
		logger.Warnf("[processor::decodeInstruction] tx=%s program=%s parent=%d index=%d: %v",
			res.TxHash, ix.ProgramID, ix.ParentIdx, ix.Index, r.Err)
		res.Failures = append(res.Failures, InstructionFailure{
			ProgramID: ix.ProgramID,
			Index:     ix.Index,
			ParentIdx: ix.ParentIdx,
			Err:       r.Err,
		})
	}
}

// scanLogs 每个已注册程序各自扫描一遍日志，各自维护调用栈
func (p *Processor) scanLogs(res *TxResult, logs []string) {
	if len(logs) == 0 {
		return
	}
	var errs []error
	for _, prog := range p.registry.Programs() {
		events, err := eventparser.ExtractEventsFromTx(res.TxHash, prog.ID, prog.Events, logs)
		if err != nil {
			logger.Warnf("[processor::scanLogs] tx=%s program=%s: %v", res.TxHash, prog.ID, err)
			errs = append(errs, err)
			continue
		}
		res.Events = append(res.Events, events...)
	}
	if len(errs) > 0 {
		res.LogErr = errors.Join(errs...)
		p.metrics.LogScanFailed()
	}
}
