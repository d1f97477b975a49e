// Package manifest は分割結果を SQLite に記録する
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	seed        INTEGER NOT NULL,
	ratio       REAL NOT NULL,
	mode        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS assignments (
	image_id TEXT PRIMARY KEY,
	file     TEXT NOT NULL,
	split    TEXT NOT NULL,
	label    TEXT NOT NULL,
	path     TEXT NOT NULL,
	run_id   TEXT NOT NULL REFERENCES runs(id)
);
`

// Run は1回の実行
type Run struct {
	ID        string
	StartedAt time.Time
	Seed      int64
	Ratio     float64
	Mode      string // "multiclass" または "binary:<class>"
}

// NewRun は新しいIDを持つ Run を返す
func NewRun(seed int64, ratio float64, mode string) Run {
	return Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Seed:      seed,
		Ratio:     ratio,
		Mode:      mode,
	}
}

// Entry は1枚の画像の割り当て
type Entry struct {
	ImageID string
	File    string
	Split   string
	Label   string
	Path    string
	RunID   string
}

// Store は SQLite のマニフェスト
type Store struct {
	db *sql.DB
}

// Open はマニフェストを開き、必要ならテーブルを作成する
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("マニフェストを開けません: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマの作成に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベースを閉じる
func (s *Store) Close() error {
	return s.db.Close()
}

// Record は run と entries を1トランザクションで書き込む。
// 同じ画像IDの割り当ては上書きされる。
func (s *Store) Record(ctx context.Context, run Run, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, seed, ratio, mode) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.Seed, run.Ratio, run.Mode,
	); err != nil {
		return fmt.Errorf("runの記録に失敗: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO assignments (image_id, file, split, label, path, run_id) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ImageID, e.File, e.Split, e.Label, e.Path, run.ID); err != nil {
			return fmt.Errorf("%s の記録に失敗: %w", e.File, err)
		}
	}

	return tx.Commit()
}

// Assignments は全ての割り当てを画像ID順に返す
func (s *Store) Assignments(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT image_id, file, split, label, path, run_id FROM assignments ORDER BY image_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ImageID, &e.File, &e.Split, &e.Label, &e.Path, &e.RunID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Runs は記録された実行を開始時刻順に返す
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, seed, ratio, mode FROM runs ORDER BY started_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Seed, &r.Ratio, &r.Mode); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
