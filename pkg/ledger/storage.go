package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"vault-zap/pkg/types"
)

const (
	DefaultStorageFileName = ".vault-zap-notifications.json"
)

// ErrNotFound is returned for unknown notification IDs
var ErrNotFound = errors.New("notification not found")

// Storage persists notifications to a JSON file. Every mutation reloads the
// file first so several processes can share it.
type Storage struct {
	filePath      string
	mu            sync.RWMutex
	nextID        int64
	notifications map[int64]types.Notification
}

// NotificationStorage represents the JSON structure for storage
type NotificationStorage struct {
	NextID        int64                        `json:"nextId"`
	Notifications map[int64]types.Notification `json:"notifications"`
}

// NewStorage creates a storage backed by filePath, defaulting to the home directory
func NewStorage(filePath string) (*Storage, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	s := &Storage{
		filePath:      filePath,
		nextID:        1,
		notifications: make(map[int64]types.Notification),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	return s, nil
}

// load reads the storage file. A missing file is an empty ledger. Must be
// called with the lock held.
func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var stored NotificationStorage
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal notifications: %w", err)
	}

	s.notifications = stored.Notifications
	if s.notifications == nil {
		s.notifications = make(map[int64]types.Notification)
	}
	s.nextID = stored.NextID
	for id := range s.notifications {
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	if s.nextID < 1 {
		s.nextID = 1
	}
	return nil
}

// save writes the storage file atomically. Must be called with the lock held.
func (s *Storage) save() error {
	data, err := json.MarshalIndent(NotificationStorage{
		NextID:        s.nextID,
		Notifications: s.notifications,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write notifications: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Reload picks up changes written by other processes
func (s *Storage) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Insert stores n under a fresh ID and returns the stored copy. When another
// entry already carries n.Key, that entry is returned and created is false.
func (s *Storage) Insert(n types.Notification) (stored types.Notification, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return types.Notification{}, false, err
	}
	if n.Key != "" {
		for _, existing := range s.notifications {
			if existing.Key == n.Key {
				return existing, false, nil
			}
		}
	}
	n.ID = s.nextID
	s.nextID++
	s.notifications[n.ID] = n
	if err := s.save(); err != nil {
		return types.Notification{}, false, err
	}
	return n, true, nil
}

// Get returns a notification by ID
func (s *Storage) Get(id int64) (types.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return types.Notification{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return n, nil
}

// Modify applies fn to a stored notification and persists the result
func (s *Storage) Modify(id int64, fn func(*types.Notification) error) (types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return types.Notification{}, err
	}
	n, ok := s.notifications[id]
	if !ok {
		return types.Notification{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err := fn(&n); err != nil {
		return types.Notification{}, err
	}
	n.ID = id
	s.notifications[id] = n
	if err := s.save(); err != nil {
		return types.Notification{}, err
	}
	return n, nil
}

// Delete removes a notification and returns it
func (s *Storage) Delete(id int64) (types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return types.Notification{}, err
	}
	n, ok := s.notifications[id]
	if !ok {
		return types.Notification{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(s.notifications, id)
	if err := s.save(); err != nil {
		return types.Notification{}, err
	}
	return n, nil
}

// List returns all notifications ordered by ID
func (s *Storage) List() []types.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notifications := make([]types.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		notifications = append(notifications, n)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].ID < notifications[j].ID
	})
	return notifications
}

// Count returns the number of stored notifications
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

// FilePath returns the storage file path
func (s *Storage) FilePath() string {
	return s.filePath
}
