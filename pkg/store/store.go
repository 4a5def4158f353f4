// Package store persists conversations as one JSON record per conversation
// under the data directory. Writes are atomic per conversation (temp file +
// rename), so readers never observe a half-written record.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quorumlabs/council/pkg/models"
)

// ErrNotFound indicates the conversation id has no record.
var ErrNotFound = errors.New("conversation not found")

// FileStore is the file-per-conversation persistence adapter.
type FileStore struct {
	dir string
	// mu serializes read-modify-write cycles. Ordering across conversations
	// is not required, but a single conversation's record must never be
	// updated from two racing writers.
	mu sync.Mutex
}

// New creates (if needed) the conversations directory and returns a store.
func New(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "conversations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// CreateConversation allocates a new conversation with a placeholder title
// and persists it.
func (s *FileStore) CreateConversation() (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := models.NewConversation()
	if err := s.write(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get returns the conversation for id, or ErrNotFound.
func (s *FileStore) Get(id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// ListActive returns all non-deleted conversations, newest first.
func (s *FileStore) ListActive() ([]*models.Conversation, error) {
	return s.list(false)
}

// ListDeleted returns all soft-deleted conversations, newest first.
func (s *FileStore) ListDeleted() ([]*models.Conversation, error) {
	return s.list(true)
}

// AppendMessage appends a message to the conversation's ordered sequence.
func (s *FileStore) AppendMessage(id string, msg models.Message) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Messages = append(conv.Messages, msg)
	})
}

// UpdateTitle replaces the conversation title.
func (s *FileStore) UpdateTitle(id, title string) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Title = title
	})
}

// SoftDelete marks the conversation deleted. Deleting an already-deleted
// conversation leaves the record unchanged.
func (s *FileStore) SoftDelete(id string) error {
	return s.update(id, func(conv *models.Conversation) {
		if conv.Deleted {
			return
		}
		now := time.Now().UTC()
		conv.Deleted = true
		conv.DeletedAt = &now
	})
}

// Restore returns a soft-deleted conversation to its prior visible state.
func (s *FileStore) Restore(id string) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Deleted = false
		conv.DeletedAt = nil
	})
}

// HardDelete removes the conversation record permanently.
func (s *FileStore) HardDelete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// --- internals ---

func (s *FileStore) update(id string, mutate func(*models.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.read(id)
	if err != nil {
		return err
	}
	mutate(conv)
	return s.write(conv)
}

func (s *FileStore) list(deleted bool) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	var convs []*models.Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// A record that fails to decode shouldn't hide the rest.
			slog.Warn("Skipping unreadable conversation record",
				"file", entry.Name(), "error", err)
			continue
		}
		if conv.Deleted == deleted {
			convs = append(convs, conv)
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}

func (s *FileStore) read(id string) (*models.Conversation, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decoding conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (s *FileStore) write(conv *models.Conversation) error {
	path, err := s.path(conv.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation %s: %w", conv.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, conv.ID+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// path validates the id (defense against traversal through API-supplied
// ids) and returns the record path.
func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: invalid conversation id %q", ErrNotFound, id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}
