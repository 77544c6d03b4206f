package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Syoongy/sniffer/pkg/logger"
	_ "modernc.org/sqlite"
)

// DBProgressStore 管理签名处理记录与回填游标的 sqlite 存储。
// 写入用于持久记录进度，服务恢复后可用；高频判重走 Redis，这里只做 fallback。
type DBProgressStore struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS progress_signature (
	signature  TEXT PRIMARY KEY,
	slot       INTEGER NOT NULL,
	source     INTEGER NOT NULL,
	block_time INTEGER NOT NULL,
	status     INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_signature_slot ON progress_signature (slot)`,
	`CREATE TABLE IF NOT EXISTS progress_cursor (
	name       TEXT PRIMARY KEY,
	cursor     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

// OpenSqlite 打开（必要时创建）sqlite 文件并建表
func OpenSqlite(ctx context.Context, path string) (*DBProgressStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	store := NewDBProgressStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewDBProgressStore(db *sql.DB) *DBProgressStore {
	return &DBProgressStore{db: db}
}

func (d *DBProgressStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate progress tables: %w", err)
		}
	}
	return nil
}

func (d *DBProgressStore) Close() error {
	return d.db.Close()
}

// ExistingSignatures 返回 sigs 中已存在于 DB 的签名集合
func (d *DBProgressStore) ExistingSignatures(ctx context.Context, sigs []string) (map[string]SigStatus, error) {
	found := make(map[string]SigStatus, len(sigs))
	const batchLimit = 500
	for i := 0; i < len(sigs); i += batchLimit {
		end := min(i+batchLimit, len(sigs))
		chunk := sigs[i:end]

		query := `SELECT signature, status FROM progress_signature WHERE signature IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + `)`
		args := make([]any, len(chunk))
		for j, s := range chunk {
			args[j] = s
		}

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query signatures error: %w", err)
		}
		for rows.Next() {
			var (
				sig    string
				status int
			)
			if err := rows.Scan(&sig, &status); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan signature error: %w", err)
			}
			found[sig] = SigStatus(status)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// BatchInsertSignatures 批量写入签名记录，按 batchLimit 分批。
// 签名冲突时只更新 status 和 updated_at。
func (d *DBProgressStore) BatchInsertSignatures(ctx context.Context, records []*SignatureRecord) error {
	if len(records) == 0 {
		return nil
	}

	const batchLimit = 200 // 5 个参数一行，远低于 sqlite 变量上限
	for i := 0; i < len(records); i += batchLimit {
		end := min(i+batchLimit, len(records))
		if err := d.insertChunk(ctx, records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *DBProgressStore) insertChunk(ctx context.Context, records []*SignatureRecord) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO progress_signature (signature, slot, source, block_time, status) VALUES `)
	args := make([]any, 0, len(records)*5)
	for i, r := range records {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, r.Signature, int64(r.Slot), r.Source, r.BlockTime, int(r.Status))
	}
	sb.WriteString(` ON CONFLICT (signature) DO UPDATE SET status = excluded.status, updated_at = CURRENT_TIMESTAMP`)

	if _, err := d.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert %d signatures failed: %w", len(records), err)
	}
	return nil
}

// LoadCursor 读取回填游标，不存在时返回空串
func (d *DBProgressStore) LoadCursor(ctx context.Context, name string) (string, error) {
	var cursor string
	err := d.db.QueryRowContext(ctx, `SELECT cursor FROM progress_cursor WHERE name = ?`, name).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load cursor %s: %w", name, err)
	}
	return cursor, nil
}

func (d *DBProgressStore) SaveCursor(ctx context.Context, name, cursor string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO progress_cursor (name, cursor) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET cursor = excluded.cursor, updated_at = CURRENT_TIMESTAMP`,
		name, cursor,
	)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	return nil
}

// DeleteOldSignatures 删除早于 latest - keepSlots 的签名记录（进度 GC）。
// 分批删除（每批最多 1000 条），避免长事务。
func (d *DBProgressStore) DeleteOldSignatures(ctx context.Context, keepSlots uint64) (int64, error) {
	var latest sql.NullInt64
	if err := d.db.QueryRowContext(ctx, `SELECT MAX(slot) FROM progress_signature`).Scan(&latest); err != nil {
		return 0, fmt.Errorf("fetch latest slot failed: %w", err)
	}
	if !latest.Valid || uint64(latest.Int64) <= keepSlots {
		return 0, nil
	}
	safeSlot := uint64(latest.Int64) - keepSlots

	var total int64
	for {
		res, err := d.db.ExecContext(ctx,
			`DELETE FROM progress_signature WHERE rowid IN (
				SELECT rowid FROM progress_signature WHERE slot < ? LIMIT 1000)`,
			int64(safeSlot),
		)
		if err != nil {
			return total, fmt.Errorf("delete old signatures failed: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			break
		}
		total += n
		logger.Infof("[progress::DeleteOldSignatures] deleted %d rows below slot %d", n, safeSlot)
	}
	return total, nil
}
