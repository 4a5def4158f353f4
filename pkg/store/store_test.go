package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/council/pkg/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation()
	require.NoError(t, err)
	assert.True(t, models.IsGenericTitle(conv.Title))

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, conv.Title, got.Title)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessagePreservesOrder(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation()
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(conv.ID, models.Message{Role: models.RoleUser, Content: "one"}))
	require.NoError(t, s.AppendMessage(conv.ID, models.Message{Role: models.RoleAssistant, Content: "two"}))

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "one", got.Messages[0].Content)
	assert.Equal(t, "two", got.Messages[1].Content)
}

func TestUpdateTitle(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation()
	require.NoError(t, err)

	require.NoError(t, s.UpdateTitle(conv.ID, "Docker Install Help"))
	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Docker Install Help", got.Title)
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation()
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(conv.ID))
	first, err := s.Get(conv.ID)
	require.NoError(t, err)
	require.True(t, first.Deleted)
	require.NotNil(t, first.DeletedAt)

	// A second delete leaves the record exactly as the first left it.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.SoftDelete(conv.ID))
	second, err := s.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, first.DeletedAt.UnixNano(), second.DeletedAt.UnixNano())
}

func TestRestoreReturnsPriorVisibleState(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation()
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(conv.ID, models.Message{Role: models.RoleUser, Content: "kept"}))

	before, err := s.Get(conv.ID)
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(conv.ID))
	require.NoError(t, s.Restore(conv.ID))

	after, err := s.Get(conv.ID)
	require.NoError(t, err)
	assert.False(t, after.Deleted)
	assert.Nil(t, after.DeletedAt)
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.Title, after.Title)
}

func TestListActiveAndDeleted(t *testing.T) {
	s := newTestStore(t)
	a, err := s.CreateConversation()
	require.NoError(t, err)
	b, err := s.CreateConversation()
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(a.ID))

	active, err := s.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)

	deleted, err := s.ListDeleted()
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, a.ID, deleted[0].ID)
}

func TestListSortsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		conv, err := s.CreateConversation()
		require.NoError(t, err)
		// Space creation times apart so the sort is observable.
		require.NoError(t, overwriteCreatedAt(s, conv.ID, time.Now().UTC().Add(time.Duration(i)*time.Minute)))
		ids = append(ids, conv.ID)
	}

	active, err := s.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, ids[2], active[0].ID)
	assert.Equal(t, ids[0], active[2].ID)
}

// overwriteCreatedAt rewrites a record's created_at for sort testing.
func overwriteCreatedAt(s *FileStore, id string, at time.Time) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.CreatedAt = at
	})
}

func TestHardDelete(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation()
	require.NoError(t, err)

	require.NoError(t, s.HardDelete(conv.ID))
	_, err = s.Get(conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.HardDelete(conv.ID), ErrNotFound)
}

func TestPathTraversalRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("../escape")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("a/b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	conv, err := s.CreateConversation()
	require.NoError(t, err)
	require.NoError(t, s.UpdateTitle(conv.ID, "t"))

	entries, err := os.ReadDir(filepath.Join(dir, "conversations"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, ".json", filepath.Ext(e.Name()))
	}
}
