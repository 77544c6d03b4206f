package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Syoongy/sniffer/internal/config"
	"github.com/Syoongy/sniffer/internal/consts"
	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/dispatcher"
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/logic/progress"
	"github.com/Syoongy/sniffer/pkg/utils"
	"github.com/zeromicro/go-zero/core/logx"
)

var ErrTransactionUnavailable = errors.New("transaction still null after retries")

// Sink 解码结果的下游（Kafka 投递）
type Sink interface {
	Dispatch(ctx context.Context, source string, batch *processor.BatchResult) error
}

// Progress 签名判重与游标持久化
type Progress interface {
	FilterUnprocessed(ctx context.Context, sigs []string) ([]string, error)
	MarkSignatures(ctx context.Context, records []*progress.SignatureRecord) error
	Cursor(ctx context.Context, name string) (string, error)
	SaveCursor(ctx context.Context, name, cursor string) error
}

// Options 回填参数
type Options struct {
	PageLimit       int
	FetchRetries    int
	RetryBackoff    time.Duration
	MaxPages        int
	StartBefore     string
	ResumeFromStore bool
	Workers         int
}

func OptionsFromConfig(c config.RpcConfig, workers int) Options {
	return Options{
		PageLimit:       c.PageLimit,
		FetchRetries:    c.FetchRetries,
		RetryBackoff:    time.Duration(c.RetryBackoffMs) * time.Millisecond,
		MaxPages:        c.MaxPages,
		StartBefore:     c.StartBefore,
		ResumeFromStore: c.ResumeFromStore,
		Workers:         workers,
	}
}

func (o *Options) normalize() {
	if o.PageLimit <= 0 || o.PageLimit > 1000 {
		o.PageLimit = consts.DefaultSignaturePageLimit
	}
	if o.FetchRetries <= 0 {
		o.FetchRetries = consts.DefaultFetchRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.Workers <= 0 {
		o.Workers = consts.CpuCount * 2
	}
}

// PageReport 单页处理结果
type PageReport struct {
	Before     string
	Oldest     string
	Signatures int
	Skipped    int // 已处理过的签名
	Missing    int // 重试后仍为 null 的交易
	Stats      processor.Stats
}

// Manager 按程序地址分页回填历史交易：
// 拉取签名 → 过滤已处理 → 拉取交易 → 解码 → 投递 → 标记进度 → 推进游标
type Manager struct {
	fetcher  Fetcher
	proc     *processor.Processor
	sink     Sink
	progress Progress
	acc      *processor.Accumulator
	opts     Options
}

// NewManager sink、progress 可为 nil（只解码不投递 / 不做判重）
func NewManager(fetcher Fetcher, proc *processor.Processor, sink Sink, prog Progress, acc *processor.Accumulator, opts Options) *Manager {
	opts.normalize()
	return &Manager{
		fetcher:  fetcher,
		proc:     proc,
		sink:     sink,
		progress: prog,
		acc:      acc,
		opts:     opts,
	}
}

func cursorName(programID string) string {
	return "backfill:" + programID
}

// Run 依次回填所有注册程序，ctx 取消时返回 ctx.Err()
func (m *Manager) Run(ctx context.Context) error {
	for _, id := range m.proc.Registry().IDs() {
		if err := m.RunProgram(ctx, id); err != nil {
			return fmt.Errorf("backfill %s: %w", id, err)
		}
	}
	return nil
}

// RunProgram 回填单个程序，直到签名页为空、游标重复或达到 MaxPages
func (m *Manager) RunProgram(ctx context.Context, programID string) error {
	logger := logx.WithContext(ctx).WithFields(logx.Field("program", programID))

	before, err := m.startCursor(ctx, programID)
	if err != nil {
		return err
	}
	logger.Infof("[backfill::RunProgram] start, before=%q", before)

	for page := 0; m.opts.MaxPages <= 0 || page < m.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		report, done, err := m.processPage(ctx, programID, before)
		if err != nil {
			return err
		}
		if done {
			logger.Infof("[backfill::RunProgram] finished after %d pages", page)
			return nil
		}
		logger.Infof("[backfill::RunProgram] page=%d sigs=%d skipped=%d missing=%d decoded=%d events=%d oldest=%s",
			page, report.Signatures, report.Skipped, report.Missing, report.Stats.Decoded, report.Stats.Events, report.Oldest)
		before = report.Oldest
	}
	logger.Infof("[backfill::RunProgram] reached max pages %d", m.opts.MaxPages)
	return nil
}

func (m *Manager) startCursor(ctx context.Context, programID string) (string, error) {
	if m.opts.StartBefore != "" || !m.opts.ResumeFromStore || m.progress == nil {
		return m.opts.StartBefore, nil
	}
	return m.progress.Cursor(ctx, cursorName(programID))
}

// processPage 处理一页签名；done=true 表示已没有更早的签名
func (m *Manager) processPage(ctx context.Context, programID, before string) (*PageReport, bool, error) {
	infos, err := m.fetcher.SignaturesForAddress(ctx, programID, before, m.opts.PageLimit)
	if err != nil {
		return nil, false, err
	}
	if len(infos) == 0 {
		return nil, true, nil
	}
	oldest := infos[len(infos)-1].Signature
	if oldest == before {
		return nil, true, nil
	}

	report := &PageReport{Before: before, Oldest: oldest, Signatures: len(infos)}

	sigs := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Signature != before {
			sigs = append(sigs, info.Signature)
		}
	}
	if m.progress != nil {
		fresh, err := m.progress.FilterUnprocessed(ctx, sigs)
		if err != nil {
			return nil, false, err
		}
		report.Skipped = len(sigs) - len(fresh)
		sigs = fresh
	}

	txs := m.fetchAll(ctx, sigs)
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	present := txs[:0]
	for _, tx := range txs {
		if tx != nil {
			present = append(present, tx)
		}
	}
	report.Missing = len(txs) - len(present)

	batch := m.proc.ProcessTransactions(ctx, present, 0)
	report.Stats = batch.Stats
	if m.acc != nil {
		m.acc.Add(batch)
	}

	if m.sink != nil {
		if err := m.sink.Dispatch(ctx, dispatcher.SourceRpc, batch); err != nil {
			return nil, false, fmt.Errorf("dispatch page before %q: %w", before, err)
		}
	}

	if m.progress != nil {
		if err := m.progress.MarkSignatures(ctx, progress.RecordsFromBatch(batch, progress.SourceRpc)); err != nil {
			return nil, false, err
		}
		if report.Missing == 0 {
			if err := m.progress.SaveCursor(ctx, cursorName(programID), oldest); err != nil {
				return nil, false, err
			}
		}
	}
	return report, false, nil
}

// fetchAll 并发拉取交易，结果与 sigs 顺序一致，拉取失败的位置为 nil
func (m *Manager) fetchAll(ctx context.Context, sigs []string) []*core.RawTransaction {
	return utils.ParallelMap(sigs, m.opts.Workers, func(sig string) *core.RawTransaction {
		tx, err := m.fetchWithRetry(ctx, sig)
		if err != nil {
			logx.WithContext(ctx).Errorf("[backfill::fetchAll] %s: %v", sig, err)
			return nil
		}
		return tx
	})
}

// fetchWithRetry 节点返回 null 或请求失败时有限次重试
func (m *Manager) fetchWithRetry(ctx context.Context, sig string) (*core.RawTransaction, error) {
	var lastErr error
	for attempt := 0; attempt < m.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.opts.RetryBackoff):
			}
		}
		tx, err := m.fetcher.Transaction(ctx, sig)
		if err != nil {
			lastErr = err
			continue
		}
		if tx != nil {
			return tx, nil
		}
		lastErr = ErrTransactionUnavailable
	}
	return nil, lastErr
}
