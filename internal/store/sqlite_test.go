package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_ThreadLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	thread := chat.Thread{
		ID:    "t1",
		Title: "New Thread",
		Messages: []chat.Message{
			{Content: "hello", IsUser: true},
		},
		SelectedModel: &chat.Model{ID: "m1", Provider: chat.Provider{ID: "p1"}},
	}

	require.NoError(t, s.Dispatch(ctx, ThreadAction{Type: ActionAdd, Thread: &thread}))

	got, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "New Thread", got.Title)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "m1", got.SelectedModel.ID)

	thread.Title = "Paris Question"
	require.NoError(t, s.Dispatch(ctx, ThreadAction{Type: ActionUpdate, Thread: &thread}))

	got, err = s.GetThread(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "Paris Question", got.Title)

	require.NoError(t, s.Dispatch(ctx, ThreadAction{Type: ActionDelete, ThreadID: "t1"}))
	_, err = s.GetThread(ctx, "t1")
	require.Error(t, err)
}

func TestSQLiteStore_UpdateMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	thread := chat.Thread{ID: "t1", Title: "x", Messages: []chat.Message{{Content: "q", IsUser: true}, {}}}
	require.NoError(t, s.Dispatch(ctx, ThreadAction{Type: ActionAdd, Thread: &thread}))

	require.NoError(t, s.Dispatch(ctx, ThreadAction{
		Type:     ActionUpdateMessages,
		ThreadID: "t1",
		Messages: []chat.Message{{Content: "q", IsUser: true}, {Content: "streamed so far"}},
	}))

	got, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "streamed so far", got.Messages[1].Content)
	// Everything but the message list survives the update.
	require.Equal(t, "x", got.Title)
}

func TestSQLiteStore_UpdateMessagesUnknownThread(t *testing.T) {
	s := newTestStore(t)
	err := s.Dispatch(context.Background(), ThreadAction{
		Type:     ActionUpdateMessages,
		ThreadID: "missing",
		Messages: []chat.Message{{Content: "x"}},
	})
	require.Error(t, err)
}

func TestSQLiteStore_Documents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := chat.Document{
		ID:         "d1",
		Name:       "travel notes",
		Type:       "note",
		Chunks:     []string{"paris facts", "rome facts"},
		Embeddings: [][]float32{{1, 0}, {0, 1}},
	}
	require.NoError(t, s.PutDocument(ctx, doc))

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, doc.Chunks, docs[0].Chunks)
	require.Equal(t, doc.Embeddings, docs[0].Embeddings)

	// Upsert replaces in place.
	doc.Chunks = []string{"updated"}
	require.NoError(t, s.PutDocument(ctx, doc))
	docs, err = s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, []string{"updated"}, docs[0].Chunks)
}

func TestSQLiteStore_ClearAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.Dispatch(ctx, ThreadAction{Type: ActionAdd, Thread: &chat.Thread{ID: id, Title: id}}))
	}
	require.NoError(t, s.Dispatch(ctx, ThreadAction{Type: ActionClearAll}))

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Empty(t, threads)
}
