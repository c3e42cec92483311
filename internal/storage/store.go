package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reels/internal/logging"
)

type Watch struct {
	ItemID    string `json:"item_id"`
	Title     string `json:"title,omitempty"`
	Percent   int    `json:"percent"`
	Completed int    `json:"completed,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type Data struct {
	Server   string           `json:"server"`
	UserID   string           `json:"user_id"`
	Token    string           `json:"token"`
	DeviceID string           `json:"device_id,omitempty"`
	LastItem string           `json:"last_item,omitempty"`
	Muted    bool             `json:"muted,omitempty"`
	Watches  map[string]Watch `json:"watches,omitempty"`
}

type Store struct {
	mu   sync.Mutex
	path string
	data Data
}

// DefaultPath is ~/.reels/data.json.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".reels", "data.json")
}

func New(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		logging.Warn("store corrupted, starting fresh", "path", s.path, "err", err)
		s.data = Data{}
	}
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) GetToken(server string) (userID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Server == server {
		return s.data.UserID, s.data.Token
	}
	return "", ""
}

func (s *Store) SetToken(server, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Server = server
	s.data.UserID = userID
	s.data.Token = token
	return s.save()
}

// DeviceID returns the persisted device id, storing gen() the first time.
func (s *Store) DeviceID(gen func() string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.DeviceID == "" {
		s.data.DeviceID = gen()
		if err := s.save(); err != nil {
			logging.Warn("save device id", "err", err)
		}
	}
	return s.data.DeviceID
}

func (s *Store) LastItem() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LastItem
}

func (s *Store) SetLastItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.LastItem == id {
		return nil
	}
	s.data.LastItem = id
	return s.save()
}

func (s *Store) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Muted
}

func (s *Store) SetMuted(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Muted = v
	return s.save()
}

func (s *Store) UpdateWatch(itemID, title string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Watches == nil {
		s.data.Watches = make(map[string]Watch)
	}
	w := s.data.Watches[itemID]
	w.ItemID = itemID
	if title != "" {
		w.Title = title
	}
	w.Percent = percent
	w.UpdatedAt = time.Now().Format(time.RFC3339)
	s.data.Watches[itemID] = w
	return s.save()
}

// MarkCompleted bumps the loop count for itemID and resets its progress.
func (s *Store) MarkCompleted(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Watches == nil {
		s.data.Watches = make(map[string]Watch)
	}
	w := s.data.Watches[itemID]
	w.ItemID = itemID
	w.Completed++
	w.Percent = 0
	w.UpdatedAt = time.Now().Format(time.RFC3339)
	s.data.Watches[itemID] = w
	return s.save()
}

func (s *Store) Watch(itemID string) (Watch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.data.Watches[itemID]
	return w, ok
}
