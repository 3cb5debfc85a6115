package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/exp/slog"

	"fieldsync/internal/app/client/config"
	"fieldsync/internal/app/client/guard"
	"fieldsync/internal/app/client/network"
	"fieldsync/internal/app/client/optimistic"
	"fieldsync/internal/app/client/reconcile"
	"fieldsync/internal/app/client/remote"
	"fieldsync/internal/app/client/resource"
	"fieldsync/internal/app/client/store"
	"fieldsync/internal/app/client/submission"
	"fieldsync/internal/domain/record"
	"fieldsync/internal/utils/clock"
)

var ErrNotAuthenticated = errors.New("not authenticated, run: fieldsync auth login")

// App собирает компоненты движка синхронизации и запускает фоновые циклы
type App struct {
	config     *config.Config
	log        *slog.Logger
	store      store.Store
	remote     *remote.Client
	network    *network.Monitor
	resources  *resource.Orchestrator
	submission *submission.Manager
	reconciler *reconcile.Reconciler
	posts      *optimistic.Posts

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	s, err := store.NewSQLite(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}

	app, err := NewWithStore(cfg, s, log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return app, nil
}

// NewWithStore собирает приложение поверх готового хранилища.
func NewWithStore(cfg *config.Config, s store.Store, log *slog.Logger) (*App, error) {
	creds, err := remote.LoadCredentials(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки учетных данных: %w", err)
	}

	rc := remote.New(remote.Config{
		BaseURL: cfg.BaseURL(),
		Timeout: cfg.RequestTimeout(),
	}, creds, log)

	monitor := network.NewMonitor(log, network.WithProber(rc, cfg.HeartbeatEvery()))

	descriptors := make([]resource.Descriptor, 0, len(cfg.Engine.Resources))
	for _, dc := range cfg.Engine.Resources {
		descriptors = append(descriptors, dc.Build(rc))
	}
	orchestrator := resource.New(s, log, descriptors, resource.WithFetchTimeout(cfg.RequestTimeout()))

	manager := submission.NewManager(
		s,
		record.NewRegistry(cfg.Engine.Schemas...),
		guard.New(s, cfg.Engine.NaturalKeys, log),
		rc,
		monitor,
		clock.Real{},
		submission.Config{
			DeviceID:        cfg.DeviceID,
			DeliveryTimeout: cfg.RequestTimeout(),
			DefaultPolicy:   cfg.Engine.Retry,
			Policies:        cfg.Engine.Policies,
			References:      cfg.Engine.References,
		},
		log,
	)

	reconciler := reconcile.New(s, manager, monitor, clock.Real{}, reconcile.Config{
		Actor:    func() int64 { return creds.Session().UserID },
		Interval: cfg.SyncEvery(),
	}, log)

	app := &App{
		config:     cfg,
		log:        log,
		store:      s,
		remote:     rc,
		network:    monitor,
		resources:  orchestrator,
		submission: manager,
		reconciler: reconciler,
	}

	postsKey := record.KindSocialPost.Resource()
	app.posts = optimistic.NewPosts(
		optimistic.NewMutator(s, cfg.RequestTimeout(), log),
		rc,
		func(ctx context.Context) error {
			if _, err := orchestrator.Refresh(ctx, postsKey, true); err != nil && !errors.Is(err, resource.ErrUnknownResource) {
				return err
			}
			return nil
		},
	)

	return app, nil
}

// Run запускает фоновые циклы и блокируется до сигнала завершения.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.handleSignals()

	unsubscribe := a.network.OnOnline(func() {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.refreshResources(ctx, false)
		}()
	})
	defer unsubscribe()

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.network.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.reconciler.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.watchAuth(ctx)
	}()

	a.log.Info("client started",
		"server", a.config.BaseURL(),
		"env", a.config.Env,
		"device", a.config.DeviceID,
	)

	a.wg.Wait()
	return nil
}

func (a *App) refreshResources(ctx context.Context, force bool) {
	for key, err := range a.resources.RefreshAll(ctx, force) {
		if err != nil {
			a.log.Warn("resource refresh failed", "resource", key, "error", err)
		}
	}
}

// watchAuth только сообщает об истекшей сессии; повторный вход выполняет пользователь.
func (a *App) watchAuth(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.remote.Credentials().AuthExpired():
			a.log.Warn("session expired, login required")
		}
	}
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigChan
	a.log.Info("shutdown signal received", "signal", sig.String())

	if a.cancel != nil {
		a.cancel()
	}
}

// Shutdown останавливает фоновые циклы и закрывает хранилище.
func (a *App) Shutdown() {
	a.log.Info("shutting down client")

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.Close(); err != nil {
		a.log.Error("failed to close store", "error", err)
	}
	a.log.Info("client stopped")
}

// Close закрывает локальное хранилище.
func (a *App) Close() error {
	return a.store.Close()
}

// Connect проверяет доступность сервера и обновляет состояние сети.
func (a *App) Connect(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout())
	defer cancel()

	online, err := a.remote.Probe(ctx)
	if err != nil {
		a.log.Warn("connectivity probe failed", "error", err)
		return a.network.Online()
	}
	a.network.Set(online)
	return online
}

func (a *App) Online() bool {
	return a.network.Online()
}

func (a *App) IsAuthenticated() bool {
	return a.remote.Credentials().Token() != ""
}

func (a *App) Session() remote.Session {
	return a.remote.Credentials().Session()
}

func (a *App) Register(ctx context.Context, login, password string) error {
	if err := a.remote.Register(ctx, login, password); err != nil {
		return err
	}
	a.log.Info("user registered", "login", login)
	return nil
}

func (a *App) Login(ctx context.Context, login, password string) (remote.Session, error) {
	session, err := a.remote.Login(ctx, login, password)
	if err != nil {
		return remote.Session{}, err
	}
	a.network.Set(true)
	a.log.Info("logged in", "login", login, "user_id", session.UserID)
	return session, nil
}

// Submit сохраняет запись от имени текущего пользователя и пытается ее отправить.
func (a *App) Submit(ctx context.Context, env record.Envelope) (submission.Outcome, error) {
	session := a.Session()
	if session.UserID == 0 {
		return submission.Outcome{}, ErrNotAuthenticated
	}
	return a.submission.Submit(ctx, env, session.UserID)
}

// Records возвращает записи коллекции; pendingOnly оставляет только неотправленные.
func (a *App) Records(ctx context.Context, resourceName string, pendingOnly bool) ([]record.Record, error) {
	if !pendingOnly {
		return a.store.GetAll(ctx, resourceName)
	}
	unsynced := false
	return a.store.GetByQuery(ctx, resourceName, store.Query{SyncStatus: &unsynced})
}

func (a *App) View(ctx context.Context, key string) (resource.View, error) {
	return a.resources.View(ctx, key)
}

func (a *App) Refresh(ctx context.Context, force bool, keys ...string) map[string]error {
	if len(keys) == 0 {
		return a.resources.RefreshAll(ctx, force)
	}
	out := make(map[string]error, len(keys))
	for _, key := range keys {
		_, err := a.resources.Refresh(ctx, key, force)
		out[key] = err
	}
	return out
}

func (a *App) ResourceKeys() []string {
	return a.resources.Keys()
}

// SyncNow выполняет проход фонового синхронизатора в текущей горутине.
func (a *App) SyncNow(ctx context.Context) (reconcile.Result, error) {
	if a.Session().UserID == 0 {
		return reconcile.Result{}, ErrNotAuthenticated
	}
	return a.reconciler.Reconcile(ctx)
}

func (a *App) SyncStats() reconcile.Stats {
	return a.reconciler.Stats()
}

func (a *App) LikePost(ctx context.Context, postID int64) (record.Record, error) {
	return a.posts.Like(ctx, postID, a.Session().UserID)
}

func (a *App) UnlikePost(ctx context.Context, postID int64) (record.Record, error) {
	return a.posts.Unlike(ctx, postID, a.Session().UserID)
}

func (a *App) DeletePost(ctx context.Context, postID int64) error {
	return a.posts.Delete(ctx, postID)
}
