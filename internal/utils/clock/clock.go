package clock

import (
	"sync"
	"time"
)

// Clock источник текущего времени; в тестах подменяется на Manual
type Clock interface {
	Now() time.Time
}

// Real системные часы
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Manual часы, которые двигаются только вручную.
// Безопасны для конкурентного использования.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual создает часы, остановленные на start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set переставляет часы на t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance сдвигает часы вперед на d и возвращает новое время.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
