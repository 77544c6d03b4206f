package progress

import (
	"context"
	"time"

	"github.com/Syoongy/sniffer/pkg/logger"
)

// StatusCache 签名状态与游标的高速缓存，生产环境为 RedisProgressStore
type StatusCache interface {
	Statuses(ctx context.Context, sigs []string) ([]SigStatus, error)
	MarkSignatures(ctx context.Context, sigs []string, status SigStatus) error
	GetCursor(ctx context.Context, name string) (string, error)
	SetCursor(ctx context.Context, name, cursor string) error
}

// ProgressManager 统一封装 Redis + DB + 缓冲，控制签名判重与进度写入。
// cache 为 nil 时直接走 DB。
type ProgressManager struct {
	cache  StatusCache
	db     *DBProgressStore
	buffer *sigBuffer
}

func NewProgressManager(cache StatusCache, db *DBProgressStore) *ProgressManager {
	return &ProgressManager{
		cache:  cache,
		db:     db,
		buffer: newSigBuffer(),
	}
}

// FilterUnprocessed 过滤掉已处理（或已判定非法）的签名，保持输入顺序。
// 先查缓存，未命中的再查 DB；DB 命中的回写缓存。
func (pm *ProgressManager) FilterUnprocessed(ctx context.Context, sigs []string) ([]string, error) {
	if len(sigs) == 0 {
		return nil, nil
	}

	unknown := sigs
	if pm.cache != nil {
		statuses, err := pm.cache.Statuses(ctx, sigs)
		if err != nil {
			return nil, err
		}
		unknown = make([]string, 0, len(sigs))
		for i, st := range statuses {
			if st != SigProcessed && st != SigInvalid {
				unknown = append(unknown, sigs[i])
			}
		}
	}
	if len(unknown) == 0 || pm.db == nil {
		return unknown, nil
	}

	// 还在缓冲里、尚未落库的也算已处理
	pending := pm.bufferedSet()

	found, err := pm.db.ExistingSignatures(ctx, unknown)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(unknown))
	var backfill []string
	for _, s := range unknown {
		if _, ok := pending[s]; ok {
			continue
		}
		if st, ok := found[s]; ok && (st == SigProcessed || st == SigInvalid) {
			backfill = append(backfill, s)
			continue
		}
		out = append(out, s)
	}
	if pm.cache != nil && len(backfill) > 0 {
		if err := pm.cache.MarkSignatures(ctx, backfill, SigProcessed); err != nil {
			logger.Warnf("[progress::FilterUnprocessed] cache backfill failed: %v", err)
		}
	}
	return out, nil
}

func (pm *ProgressManager) bufferedSet() map[string]struct{} {
	pm.buffer.mu.Lock()
	defer pm.buffer.mu.Unlock()
	set := make(map[string]struct{}, len(pm.buffer.buffer))
	for _, r := range pm.buffer.buffer {
		set[r.Signature] = struct{}{}
	}
	return set
}

// MarkSignatures 标记签名处理状态，同时写缓存与缓冲（供后续批量写入 DB）。
// SigUnknown / SigPending 只写缓存。
func (pm *ProgressManager) MarkSignatures(ctx context.Context, records []*SignatureRecord) error {
	if len(records) == 0 {
		return nil
	}

	byStatus := make(map[SigStatus][]string, 2)
	for _, r := range records {
		byStatus[r.Status] = append(byStatus[r.Status], r.Signature)
	}
	if pm.cache != nil {
		for st, sigs := range byStatus {
			if err := pm.cache.MarkSignatures(ctx, sigs, st); err != nil {
				return err
			}
		}
	}

	for _, r := range records {
		if r.Status == SigProcessed || r.Status == SigInvalid {
			pm.buffer.Add(r)
		}
	}
	return nil
}

// Flush 将缓冲写入 DB，失败的记录放回缓冲
func (pm *ProgressManager) Flush(ctx context.Context) error {
	if pm.db == nil {
		pm.buffer.Flush()
		return nil
	}
	list := pm.buffer.Flush()
	if len(list) == 0 {
		return nil
	}
	if err := pm.db.BatchInsertSignatures(ctx, list); err != nil {
		pm.buffer.Requeue(list)
		return err
	}
	return nil
}

// Cursor 读取回填游标：缓存优先，缓存缺失时读 DB
func (pm *ProgressManager) Cursor(ctx context.Context, name string) (string, error) {
	if pm.cache != nil {
		c, err := pm.cache.GetCursor(ctx, name)
		if err != nil {
			logger.Warnf("[progress::Cursor] cache read failed, fallback to db: %v", err)
		} else if c != "" {
			return c, nil
		}
	}
	if pm.db == nil {
		return "", nil
	}
	return pm.db.LoadCursor(ctx, name)
}

// SaveCursor 同时写缓存与 DB
func (pm *ProgressManager) SaveCursor(ctx context.Context, name, cursor string) error {
	if pm.cache != nil {
		if err := pm.cache.SetCursor(ctx, name, cursor); err != nil {
			return err
		}
	}
	if pm.db == nil {
		return nil
	}
	return pm.db.SaveCursor(ctx, name, cursor)
}

// StartFlushLoop 启动后台定时 flush，ctx 结束时做最后一次 flush
func (pm *ProgressManager) StartFlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := pm.Flush(final); err != nil {
				logger.Errorf("[progress::StartFlushLoop] final flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := pm.Flush(ctx); err != nil {
				logger.Errorf("[progress::StartFlushLoop] flush failed, %d records requeued: %v", pm.buffer.Len(), err)
			}
		}
	}
}

// StartGCLoop 启动后台 GC 清理，只保留最近 keepSlots 个 slot 内的签名记录
func (pm *ProgressManager) StartGCLoop(ctx context.Context, interval time.Duration, keepSlots uint64) {
	if pm.db == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := pm.db.DeleteOldSignatures(ctx, keepSlots); err != nil {
					logger.Warnf("[progress::StartGCLoop] %v", err)
				}
			}
		}
	}()
}
