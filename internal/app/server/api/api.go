// Package api собирает HTTP API сервера синхронизации.
//
//	GET    /api/v1/health                 # Проверка доступности (публичный)
//	POST   /api/v1/user/register          # Регистрация (публичный)
//	POST   /api/v1/user/login             # Логин (публичный)
//	GET    /api/v1/resources/{name}       # Массовая выборка справочника (auth)
//	POST   /api/v1/submissions/{kind}     # Отправка записи, Idempotency-Key (auth)
//	POST   /api/v1/posts/{id}/like        # Лайк (auth)
//	DELETE /api/v1/posts/{id}/like        # Снять лайк (auth)
//	DELETE /api/v1/posts/{id}             # Удалить публикацию (auth)
package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	healthAPI "fieldsync/internal/app/server/api/http/health"
	"fieldsync/internal/app/server/api/http/middleware"
	"fieldsync/internal/app/server/api/http/middleware/auth"
	"fieldsync/internal/app/server/api/http/middleware/logger"
	postAPI "fieldsync/internal/app/server/api/http/post"
	resourceAPI "fieldsync/internal/app/server/api/http/resource"
	submissionAPI "fieldsync/internal/app/server/api/http/submission"
	userAPI "fieldsync/internal/app/server/api/http/user"
	"fieldsync/internal/app/server/config"
	"fieldsync/internal/domain/post"
	"fieldsync/internal/domain/resource"
	"fieldsync/internal/domain/session"
	"fieldsync/internal/domain/submission"
	"fieldsync/internal/domain/user"
	"fieldsync/internal/infrastructure/storage/postgres"
)

// PostsResource имя справочника публикаций
const PostsResource = "posts"

type Handlers struct {
	Health     *healthAPI.Handler
	User       *userAPI.Handler
	Resource   *resourceAPI.Handler
	Submission *submissionAPI.Handler
	Post       *postAPI.Handler
}

// Services доменные сервисы, из которых собираются обработчики
type Services struct {
	User       user.Servicer
	Session    session.Servicer
	Resource   resource.Servicer
	Submission submission.Servicer
	Post       post.Servicer
}

// New создает *chi.Mux со всеми операциями поверх PostgreSQL
func New(storage *postgres.Storage, cfg *config.Config, log *slog.Logger) *chi.Mux {
	return NewWithServices(services(storage, cfg, log), log)
}

// NewWithServices регистрирует операции поверх готовых сервисов
func NewWithServices(s Services, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(chimw.RequestID, chimw.Recoverer)

	humaConfig := huma.DefaultConfig("fieldsync API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, humaConfig)

	h := handlers(s, log)
	h.Health.SetupRoutes(API)
	h.User.SetupRoutes(API)
	h.Resource.SetupRoutes(API)
	h.Submission.SetupRoutes(API)
	h.Post.SetupRoutes(API)

	return mux
}

func services(storage *postgres.Storage, cfg *config.Config, log *slog.Logger) Services {
	postService := post.NewService(postgres.NewPostRepository(storage, log), log)

	return Services{
		User:       user.NewService(postgres.NewUserRepository(storage, log), nil, log),
		Session:    session.NewService(postgres.NewSessionRepository(storage, log), cfg.Session.TTL, log),
		Submission: submission.NewService(postgres.NewSubmissionRepository(storage, log), nil, log),
		Post:       postService,
		Resource: resource.NewService(
			postgres.NewResourceRepository(storage, log),
			resource.DefaultNames(),
			log,
			resource.WithSource(PostsResource, PostRows(postService)),
		),
	}
}

// PostRows отдает ленту публикаций как справочник.
func PostRows(svc post.Servicer) resource.Source {
	return resource.SourceFunc(func(ctx context.Context) ([]map[string]any, error) {
		posts, err := svc.List(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(posts))
		for _, p := range posts {
			rows = append(rows, p.Row())
		}
		return rows, nil
	})
}

func handlers(s Services, log *slog.Logger) *Handlers {
	authMW := auth.New(s.Session, log)
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	middlewares.Add(loggerMW.Middleware())
	healthHandler := healthAPI.NewHandler(log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	userHandler := userAPI.NewHandler(s.User, s.Session, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Middleware())
	resourceHandler := resourceAPI.NewHandler(s.Resource, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Middleware())
	submissionHandler := submissionAPI.NewHandler(s.Submission, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Middleware())
	postHandler := postAPI.NewHandler(s.Post, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health:     healthHandler,
		User:       userHandler,
		Resource:   resourceHandler,
		Submission: submissionHandler,
		Post:       postHandler,
	}
}
