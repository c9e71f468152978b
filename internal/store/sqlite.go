package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

// SQLiteStore persists threads and documents in a local SQLite database.
// It implements Dispatcher and DocumentStore.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteStore initializes the database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		chunks TEXT,
		embeddings TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS app_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Dispatch applies one thread action.
func (s *SQLiteStore) Dispatch(ctx context.Context, action ThreadAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch action.Type {
	case ActionAdd, ActionUpdate:
		if action.Thread == nil {
			return fmt.Errorf("%s action requires a thread", action.Type)
		}
		return s.upsertThread(ctx, *action.Thread)

	case ActionUpdateMessages:
		return s.updateMessages(ctx, action.ThreadID, action.Messages)

	case ActionSetCurrent:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO app_state (key, value) VALUES ('current_thread', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			action.ThreadID)
		return err

	case ActionDelete:
		_, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", action.ThreadID)
		return err

	case ActionClearAll:
		_, err := s.db.ExecContext(ctx, "DELETE FROM threads")
		return err

	default:
		return fmt.Errorf("unknown thread action: %s", action.Type)
	}
}

func (s *SQLiteStore) upsertThread(ctx context.Context, thread chat.Thread) error {
	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, data = excluded.data,
		 updated_at = CURRENT_TIMESTAMP`,
		thread.ID, thread.Title, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) updateMessages(ctx context.Context, threadID string, messages []chat.Message) error {
	thread, err := s.getThreadLocked(ctx, threadID)
	if err != nil {
		return err
	}
	thread.Messages = messages
	return s.upsertThread(ctx, *thread)
}

// GetThread loads one thread by id.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*chat.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getThreadLocked(ctx, id)
}

func (s *SQLiteStore) getThreadLocked(ctx context.Context, id string) (*chat.Thread, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM threads WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	var thread chat.Thread
	if err := json.Unmarshal([]byte(data), &thread); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread: %w", err)
	}
	return &thread, nil
}

// ListThreads returns all threads, most recently updated first.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]chat.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT data FROM threads ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var threads []chat.Thread
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var thread chat.Thread
		if err := json.Unmarshal([]byte(data), &thread); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thread: %w", err)
		}
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

// PutDocument stores a document with its chunks and any precomputed
// chunk embeddings.
func (s *SQLiteStore) PutDocument(ctx context.Context, doc chat.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, err := json.Marshal(doc.Chunks)
	if err != nil {
		return fmt.Errorf("failed to marshal chunks: %w", err)
	}
	embeddings, err := json.Marshal(doc.Embeddings)
	if err != nil {
		return fmt.Errorf("failed to marshal embeddings: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, type, chunks, embeddings) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, type = excluded.type,
		 chunks = excluded.chunks, embeddings = excluded.embeddings`,
		doc.ID, doc.Name, doc.Type, string(chunks), string(embeddings))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// Documents lists all stored documents.
func (s *SQLiteStore) Documents(ctx context.Context) ([]chat.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, type, chunks, embeddings FROM documents")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []chat.Document
	for rows.Next() {
		var doc chat.Document
		var chunks, embeddings sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Type, &chunks, &embeddings); err != nil {
			return nil, err
		}
		if chunks.Valid && chunks.String != "" {
			if err := json.Unmarshal([]byte(chunks.String), &doc.Chunks); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunks for %s: %w", doc.ID, err)
			}
		}
		if embeddings.Valid && embeddings.String != "" {
			if err := json.Unmarshal([]byte(embeddings.String), &doc.Embeddings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embeddings for %s: %w", doc.ID, err)
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
