package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"botsim/pkg/engine"
	"botsim/pkg/logger"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is one entry of a bot conversation.
type Message struct {
	Sender  string              `json:"sender"`
	Text    string              `json:"text"`
	Buttons engine.ButtonLayout `json:"buttons,omitempty"`
	Time    time.Time           `json:"time"`
}

type Session struct {
	Key      string    `json:"key"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	mu       sync.RWMutex
}

// SessionManager holds one transcript per bot. With a storage directory
// every message is also appended to <storage>/<key>.jsonl.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	storage  string
	maxItems int
}

// NewSessionManager keeps at most maxItems messages per transcript in memory;
// zero means unlimited. Stored transcripts are read on first use of their key.
func NewSessionManager(storage string, maxItems int) *SessionManager {
	sm := &SessionManager{
		sessions: make(map[string]*Session),
		storage:  storage,
		maxItems: maxItems,
	}

	if storage != "" {
		if err := os.MkdirAll(storage, 0755); err != nil {
			logger.ErrorCF("session", "Failed to create session storage", map[string]interface{}{
				"storage":         storage,
				logger.FieldError: err.Error(),
			})
		}
	}

	return sm
}

func (sm *SessionManager) GetOrCreate(key string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[key]
	sm.mu.RUnlock()

	if ok {
		return session
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, ok = sm.sessions[key]; ok {
		return session
	}

	now := time.Now()
	session = &Session{
		Key:      key,
		Messages: []Message{},
		Created:  now,
		Updated:  now,
	}
	sm.loadSession(session)
	sm.sessions[key] = session

	return session
}

// lookup returns the transcript of key when it is in memory or stored on
// disk, without creating an empty one.
func (sm *SessionManager) lookup(key string) (*Session, bool) {
	sm.mu.RLock()
	session, ok := sm.sessions[key]
	sm.mu.RUnlock()
	if ok {
		return session, true
	}
	if sm.storage == "" {
		return nil, false
	}
	if _, err := os.Stat(sm.sessionPath(key)); err != nil {
		return nil, false
	}
	return sm.GetOrCreate(key), true
}

// AddMessage appends a message and persists it. A zero Time is set to now.
func (sm *SessionManager) AddMessage(key string, msg Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}
	session := sm.GetOrCreate(key)

	session.mu.Lock()
	session.Messages = append(session.Messages, msg)
	if sm.maxItems > 0 && len(session.Messages) > sm.maxItems {
		session.Messages = session.Messages[len(session.Messages)-sm.maxItems:]
	}
	session.Updated = time.Now()
	session.mu.Unlock()

	if err := sm.appendMessage(key, msg); err != nil {
		logger.ErrorCF("session", "Failed to persist session message", map[string]interface{}{
			logger.FieldBotID: key,
			logger.FieldError: err.Error(),
		})
	}
}

func (sm *SessionManager) GetHistory(key string) []Message {
	session, ok := sm.lookup(key)
	if !ok {
		return []Message{}
	}

	session.mu.RLock()
	defer session.mu.RUnlock()

	history := make([]Message, len(session.Messages))
	copy(history, session.Messages)
	return history
}

// LastWithButtons returns the most recent bot message carrying a layout.
func (sm *SessionManager) LastWithButtons(key string) (Message, bool) {
	history := sm.GetHistory(key)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender == SenderBot && len(history[i].Buttons) > 0 {
			return history[i], true
		}
	}
	return Message{}, false
}

func (sm *SessionManager) MessageCount(key string) int {
	session, ok := sm.lookup(key)
	if !ok {
		return 0
	}

	session.mu.RLock()
	defer session.mu.RUnlock()
	return len(session.Messages)
}

// Clear empties a transcript in memory and on disk.
func (sm *SessionManager) Clear(key string) {
	sm.mu.RLock()
	session, ok := sm.sessions[key]
	sm.mu.RUnlock()

	if ok {
		session.mu.Lock()
		session.Messages = []Message{}
		session.Updated = time.Now()
		session.mu.Unlock()
	}

	if err := sm.rewriteHistory(key, nil); err != nil {
		logger.WarnCF("session", "Failed to clear stored transcript", map[string]interface{}{
			logger.FieldBotID: key,
			logger.FieldError: err.Error(),
		})
	}
}

// Delete forgets a transcript and removes its file.
func (sm *SessionManager) Delete(key string) {
	sm.mu.Lock()
	delete(sm.sessions, key)
	sm.mu.Unlock()

	if sm.storage == "" {
		return
	}
	if err := os.Remove(sm.sessionPath(key)); err != nil && !os.IsNotExist(err) {
		logger.WarnCF("session", "Failed to remove stored transcript", map[string]interface{}{
			logger.FieldBotID: key,
			logger.FieldError: err.Error(),
		})
	}
}

// ListSessionKeys returns the keys held in memory plus those stored on disk.
// Stored transcripts are not loaded.
func (sm *SessionManager) ListSessionKeys() []string {
	seen := make(map[string]struct{})
	sm.mu.RLock()
	for k := range sm.sessions {
		seen[k] = struct{}{}
	}
	sm.mu.RUnlock()

	if sm.storage != "" {
		files, err := os.ReadDir(sm.storage)
		if err != nil && !os.IsNotExist(err) {
			logger.WarnCF("session", "Failed to list stored transcripts", map[string]interface{}{
				"storage":         sm.storage,
				logger.FieldError: err.Error(),
			})
		}
		for _, file := range files {
			if file.IsDir() || filepath.Ext(file.Name()) != ".jsonl" {
				continue
			}
			seen[strings.TrimSuffix(file.Name(), ".jsonl")] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loaded reports how many transcripts are held in memory.
func (sm *SessionManager) loaded() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) sessionPath(key string) string {
	return filepath.Join(sm.storage, key+".jsonl")
}

func (sm *SessionManager) appendMessage(key string, msg Message) error {
	if sm.storage == "" {
		return nil
	}

	f, err := os.OpenFile(sm.sessionPath(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = f.Write(append(data, '\n'))
	return err
}

func (sm *SessionManager) rewriteHistory(key string, messages []Message) error {
	if sm.storage == "" {
		return nil
	}

	path := sm.sessionPath(key)
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	for _, msg := range messages {
		if err := enc.Encode(msg); err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
			return err
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// loadSession fills a new, unpublished session from its stored transcript.
func (sm *SessionManager) loadSession(session *Session) {
	if sm.storage == "" {
		return
	}
	f, err := os.Open(sm.sessionPath(session.Key))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("session", "Failed to open stored transcript", map[string]interface{}{
				logger.FieldBotID: session.Key,
				logger.FieldError: err.Error(),
			})
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err == nil {
			session.Messages = append(session.Messages, msg)
		}
	}
	if sm.maxItems > 0 && len(session.Messages) > sm.maxItems {
		session.Messages = session.Messages[len(session.Messages)-sm.maxItems:]
	}
	if n := len(session.Messages); n > 0 {
		session.Created = session.Messages[0].Time
		session.Updated = session.Messages[n-1].Time
	}
	if err := scanner.Err(); err != nil {
		logger.WarnCF("session", "Error while scanning session history", map[string]interface{}{
			logger.FieldBotID: session.Key,
			logger.FieldError: err.Error(),
		})
	}
}
