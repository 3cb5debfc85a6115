package network

import (
	"context"
	"sync"
	"time"

	"fieldsync/internal/utils/clock"

	"golang.org/x/exp/slog"
)

const defaultHeartbeat = 30 * time.Second

// State снимок состояния сети
type State struct {
	Connected  bool      `json:"is_connected"`
	LastOnline time.Time `json:"last_online_timestamp"`
}

// Prober проверяет доступность сервера; ошибка означает, что результат неизвестен
type Prober interface {
	Probe(ctx context.Context) (bool, error)
}

// ProbeFunc адаптер функции к Prober
type ProbeFunc func(ctx context.Context) (bool, error)

func (f ProbeFunc) Probe(ctx context.Context) (bool, error) { return f(ctx) }

// Monitor наблюдаемая ячейка состояния сети.
// Подписчики вызываются вне блокировки, в порядке подписки.
type Monitor struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	order  []int
	nextID int

	prober    Prober
	heartbeat time.Duration
	clock     clock.Clock
	log       *slog.Logger
}

type Option func(*Monitor)

// WithProber включает heartbeat-проверку в Run.
func WithProber(p Prober, interval time.Duration) Option {
	return func(m *Monitor) {
		m.prober = p
		if interval > 0 {
			m.heartbeat = interval
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// NewMonitor создает монитор в состоянии "нет сети".
func NewMonitor(log *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		subs:      make(map[int]func(State)),
		heartbeat: defaultHeartbeat,
		clock:     clock.Real{},
		log:       log.With("component", "network"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Connected
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set записывает новое состояние; подписчики уведомляются только при изменении.
func (m *Monitor) Set(connected bool) {
	m.mu.Lock()
	if m.state.Connected == connected {
		if connected {
			m.state.LastOnline = m.clock.Now()
		}
		m.mu.Unlock()
		return
	}

	m.state.Connected = connected
	if connected {
		m.state.LastOnline = m.clock.Now()
	}
	state := m.state
	callbacks := make([]func(State), 0, len(m.order))
	for _, id := range m.order {
		callbacks = append(callbacks, m.subs[id])
	}
	m.mu.Unlock()

	m.log.Info("network state changed", "connected", connected)
	for _, cb := range callbacks {
		cb(state)
	}
}

// Subscribe регистрирует обработчик изменений и возвращает функцию отписки.
func (m *Monitor) Subscribe(cb func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = cb
	m.order = append(m.order, id)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

// OnOnline вызывает cb только при переходе из offline в online.
func (m *Monitor) OnOnline(cb func()) (unsubscribe func()) {
	return m.Subscribe(func(s State) {
		if s.Connected {
			cb()
		}
	})
}

// Run опрашивает Prober с интервалом heartbeat до отмены ctx.
// Ошибка проверки оставляет последнее известное состояние.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil {
		m.log.Debug("heartbeat disabled, no prober configured")
		<-ctx.Done()
		return
	}

	m.log.Info("heartbeat started", "interval", m.heartbeat)
	m.probe(ctx)

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("heartbeat stopped")
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.heartbeat)
	defer cancel()

	online, err := m.prober.Probe(probeCtx)
	if err != nil {
		m.log.Warn("network probe failed, keeping last state", "error", err, "connected", m.Online())
		return
	}
	m.Set(online)
}
