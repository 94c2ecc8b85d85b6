package flow

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql
var migrationsFS embed.FS

// DefaultMaxFileSize is the JSONL rotation threshold (§6 "Persisted
// state").
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultRetentionDays is how long rotated JSONL files are kept.
const DefaultRetentionDays = 7

// indexRecord is one row of the SQLite flow index, mirroring the schema
// named in spec.md §6.
type indexRecord struct {
	ID               string
	Timestamp        int64
	Provider         string
	Model            string
	State            string
	LatencyMS        int64
	PromptTokens     int
	CompletionTokens int
}

// FileStore is the durable, append-only JSONL log plus SQLite index and
// FTS5 full-text search described in spec.md §6. A single background
// writer goroutine serializes all disk mutation, per §5's "Single writer"
// row; FileStore.Persist (the EvictionSink contract) only enqueues.
type FileStore struct {
	dir         string
	maxFileSize int64
	retention   time.Duration
	logger      *zap.Logger

	db *sql.DB

	mu           sync.Mutex
	current      *os.File
	currentDate  string
	currentSize  int64
	currentIndex int

	queue  chan *LLMFlow
	done   chan struct{}
	closed bool
}

// NewFileStore opens (creating if absent) the JSONL directory and SQLite
// index at dir, running embedded migrations, and starts the single-writer
// goroutine.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flow: create store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "flow_index.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("flow: open sqlite index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline

	if err := runMigrations(db, dbPath); err != nil {
		return nil, err
	}

	fs := &FileStore{
		dir:         dir,
		maxFileSize: DefaultMaxFileSize,
		retention:   DefaultRetentionDays * 24 * time.Hour,
		logger:      logger,
		db:          db,
		queue:       make(chan *LLMFlow, 256),
		done:        make(chan struct{}),
	}
	go fs.writeLoop()
	return fs, nil
}

func runMigrations(db *sql.DB, dbPath string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("flow: sqlite migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("flow: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("flow: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("flow: migrate up: %w", err)
	}
	return nil
}

// Persist implements EvictionSink: it enqueues f for the background
// writer. If the queue is full, the flow is dropped and a warning logged
// rather than blocking the evicting caller.
func (fs *FileStore) Persist(f *LLMFlow) {
	select {
	case fs.queue <- f:
	default:
		fs.logger.Warn("flow file store queue full, dropping flow", zap.String("flow_id", f.ID.String()))
	}
}

// Close drains the queue and closes the underlying files.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}
	fs.closed = true
	fs.mu.Unlock()
	close(fs.queue)
	<-fs.done
	if fs.current != nil {
		_ = fs.current.Close()
	}
	return fs.db.Close()
}

func (fs *FileStore) writeLoop() {
	defer close(fs.done)
	for f := range fs.queue {
		if err := fs.appendJSONL(f); err != nil {
			fs.logger.Warn("flow jsonl append failed", zap.Error(err))
		}
		if err := fs.upsertIndex(f); err != nil {
			fs.logger.Warn("flow index upsert failed", zap.Error(err))
		}
	}
}

func (fs *FileStore) appendJSONL(f *LLMFlow) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if fs.current == nil || fs.currentDate != today || fs.currentSize >= fs.maxFileSize {
		if err := fs.rotateLocked(today); err != nil {
			return err
		}
	}

	line, err := json.Marshal(flowJSONView(f))
	if err != nil {
		return err
	}
	line = append(line, '\n')
	n, err := fs.current.Write(line)
	if err != nil {
		return err
	}
	fs.currentSize += int64(n)
	return nil
}

func (fs *FileStore) rotateLocked(date string) error {
	if fs.current != nil {
		_ = fs.current.Close()
	}
	if fs.currentDate != date {
		fs.currentIndex = 0
	} else {
		fs.currentIndex++
	}
	fs.currentDate = date

	name := fmt.Sprintf("requests_%s.jsonl", date)
	if fs.currentIndex > 0 {
		name = fmt.Sprintf("requests_%s_%d.jsonl", date, fs.currentIndex)
	}

	f, err := os.OpenFile(filepath.Join(fs.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	fs.current = f
	fs.currentSize = stat.Size()
	return nil
}

func flowJSONView(f *LLMFlow) map[string]any {
	return map[string]any{
		"id":       f.ID.String(),
		"state":    string(f.State),
		"type":     string(f.Type),
		"provider": string(f.Routing.Provider),
		"model":    f.Routing.ResolvedModel,
		"created":  f.Timestamps.Created,
		"completed": f.Timestamps.Completed,
		"usage":    f.Response.Usage,
		"error":    f.Error,
		"starred":  f.Annotations.Starred,
		"tags":     f.Annotations.Tags,
	}
}

func (fs *FileStore) upsertIndex(f *LLMFlow) error {
	return upsertIndexRow(fs.db, f)
}

// upsertIndexRow writes f's index row and FTS entry through db. Split out
// from FileStore.upsertIndex so the statements can be exercised against a
// sqlmock.Sqlmock double without a real SQLite file.
func upsertIndexRow(db *sql.DB, f *LLMFlow) error {
	rec := indexRecord{
		ID:               f.ID.String(),
		Timestamp:        f.Timestamps.Created.Unix(),
		Provider:         string(f.Routing.Provider),
		Model:            f.Routing.ResolvedModel,
		State:            string(f.State),
		LatencyMS:        f.LatencyMillis(),
		PromptTokens:     f.Response.Usage.PromptTokens,
		CompletionTokens: f.Response.Usage.CompletionTokens,
	}
	_, err := db.Exec(
		`INSERT INTO flow_index (id, timestamp, provider, model, state, latency_ms, prompt_tokens, completion_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state=excluded.state, latency_ms=excluded.latency_ms,
		   prompt_tokens=excluded.prompt_tokens, completion_tokens=excluded.completion_tokens`,
		rec.ID, rec.Timestamp, rec.Provider, rec.Model, rec.State, rec.LatencyMS, rec.PromptTokens, rec.CompletionTokens,
	)
	if err != nil {
		return err
	}

	reqText, respText := bodyText(f)
	_, err = db.Exec(`INSERT INTO flow_fts (id, request_text, response_text) VALUES (?, ?, ?)`, rec.ID, reqText, respText)
	return err
}

func bodyText(f *LLMFlow) (string, string) {
	var req, resp string
	for _, m := range f.ResolvedRequest.Messages {
		req += flattenText(m)
	}
	resp = flattenText(f.Response.Message)
	return req, resp
}

// FTSSearch runs a full-text query against the request/response index and
// returns matching flow ids ordered by relevance.
func (fs *FileStore) FTSSearch(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := fs.db.Query(
		`SELECT id FROM flow_fts WHERE flow_fts MATCH ? ORDER BY rank LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Cleanup deletes rotated JSONL files older than the configured retention.
func (fs *FileStore) Cleanup() (int, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-fs.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("requests_*.jsonl", e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(fs.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
