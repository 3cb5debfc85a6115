package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Session токен и пользователь, от имени которого работает устройство
type Session struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// Credentials хранит сессию в файле и сообщает об истечении токена.
// Пустой path означает хранение только в памяти.
type Credentials struct {
	mu      sync.RWMutex
	path    string
	session Session
	expired chan struct{}
}

// LoadCredentials читает сессию из файла; отсутствие файла не ошибка.
func LoadCredentials(path string) (*Credentials, error) {
	c := &Credentials{path: path, expired: make(chan struct{}, 1)}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &c.session); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return c, nil
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Token
}

func (c *Credentials) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Save запоминает сессию и сохраняет ее на диск с правами 0600.
func (c *Credentials) Save(s Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = s
	if c.path == "" {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Invalidate сбрасывает токен и отправляет сигнал в AuthExpired.
// Пользователь сохраняется, чтобы его неотправленные записи оставались доступны.
func (c *Credentials) Invalidate() {
	c.mu.Lock()
	c.session.Token = ""
	if c.path != "" {
		if data, err := json.Marshal(c.session); err == nil {
			_ = os.WriteFile(c.path, data, 0o600)
		}
	}
	c.mu.Unlock()

	select {
	case c.expired <- struct{}{}:
	default:
	}
}

// AuthExpired канал сигналов об истекшей авторизации. Сигналы не накапливаются.
func (c *Credentials) AuthExpired() <-chan struct{} {
	return c.expired
}
