package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nadajinny/GROO/internal/admin"
	"github.com/nadajinny/GROO/internal/auth"
	"github.com/nadajinny/GROO/internal/authz"
	"github.com/nadajinny/GROO/internal/db"
	"github.com/nadajinny/GROO/internal/group"
	"github.com/nadajinny/GROO/internal/httpx"
	"github.com/nadajinny/GROO/internal/observability"
	"github.com/nadajinny/GROO/internal/project"
	"github.com/nadajinny/GROO/internal/ratelimit"
	"github.com/nadajinny/GROO/internal/revocation"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations forces migrations on; RUN_MIGRATIONS_ON_STARTUP can also
	// enable them.
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  Config
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	database.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations || cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient, err := openRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	deps, err := wire(ctx, cfg, database, redisClient, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	if err := deps.authService.BootstrapAdmin(ctx, deps.authRepo, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	return &Runtime{
		Handler: deps.handler,
		Config:  cfg,
		Close: func() error {
			observability.FlushSentry()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return database.Close()
		},
	}, nil
}

// openRedis returns nil when url is empty. An unreachable server is logged,
// not fatal: the revocation cache and the limiter both fail open.
func openRedis(ctx context.Context, url string, logger *observability.Logger) (redis.UniversalClient, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis_ping_failed", map[string]any{"error": err.Error()})
	}
	return client, nil
}

type dependencies struct {
	handler     http.Handler
	authRepo    *auth.Repository
	authService *auth.Service
}

func wire(ctx context.Context, cfg Config, database *sql.DB, redisClient redis.UniversalClient, logger *observability.Logger) (*dependencies, error) {
	observability.InitMetrics()

	codec, err := auth.NewCodec(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	var store revocation.Store
	if redisClient != nil {
		store = revocation.NewRedisStore(redisClient)
	} else {
		store = revocation.NewMemoryStore(cfg.AccessTTL)
	}
	blacklist := revocation.NewCache(store, logger)
	if cfg.RevocationFailClosed {
		blacklist = blacklist.WithFailClosed()
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, authRepo, codec, blacklist, logger)
	authService.WithMergePolicy(auth.ParseMergePolicy(cfg.SocialMergePolicy))

	if cfg.GoogleClientID != "" {
		verifier, err := auth.NewGoogleVerifier(ctx, cfg.GoogleClientID)
		if err != nil {
			logger.Warn("google_verifier_unavailable", map[string]any{"error": err.Error()})
		} else {
			authService.WithSocialVerifier(auth.ProviderGoogle, verifier)
		}
	}
	if cfg.FirebaseProjectID != "" {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID)
		if err != nil {
			logger.Warn("firebase_verifier_unavailable", map[string]any{"error": err.Error()})
		} else {
			authService.WithSocialVerifier(auth.ProviderFirebase, verifier)
		}
	}

	authenticator := auth.NewAuthenticator(codec, blacklist, authRepo, logger)

	groupRepo := group.NewRepository(database)
	projectRepo := project.NewRepository(database)
	gate := authz.NewGate(groupRepo, projectRepo)

	authHandler := auth.NewHandler(authService)
	groupHandler := group.NewHandler(group.NewService(groupRepo, authRepo, gate, logger))
	projectHandler := project.NewHandler(project.NewService(projectRepo, groupRepo, gate, logger))
	adminHandler := admin.NewHandler(authRepo, logger)

	var limiter ratelimit.Limiter
	switch {
	case cfg.RateLimitBackend == RateLimitBackendRedis && redisClient != nil:
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit)
	case cfg.RateLimitBackend == RateLimitBackendRedis:
		logger.Warn("rate_limit_redis_unconfigured", map[string]any{"fallback": RateLimitBackendMemory})
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
	default:
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
	}

	authed := func(h http.HandlerFunc) http.Handler {
		return authenticator.Middleware(h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return authenticator.Middleware(auth.RequireAdmin(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.Handle("GET /metrics", observability.MetricsHandler())

	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("POST /api/auth/google", authHandler.LoginWithGoogle)
	mux.HandleFunc("POST /api/auth/firebase", authHandler.LoginWithFirebase)
	mux.Handle("GET /api/users/me", authed(authHandler.Me))

	mux.Handle("GET /api/groups", authed(groupHandler.ListGroups))
	mux.Handle("POST /api/groups", authed(groupHandler.CreateGroup))
	mux.Handle("POST /api/groups/join", authed(groupHandler.Join))
	mux.Handle("GET /api/groups/{groupId}", authed(groupHandler.GetGroup))
	mux.Handle("PUT /api/groups/{groupId}", authed(groupHandler.UpdateGroup))
	mux.Handle("GET /api/groups/{groupId}/members", authed(groupHandler.ListMembers))
	mux.Handle("POST /api/groups/{groupId}/members", authed(groupHandler.AddMember))
	mux.Handle("DELETE /api/groups/{groupId}/members/{membershipId}", authed(groupHandler.RemoveMember))
	mux.Handle("POST /api/groups/{groupId}/invitation", authed(groupHandler.RegenerateInvitation))

	mux.Handle("GET /api/groups/{groupId}/projects", authed(projectHandler.ListProjects))
	mux.Handle("POST /api/projects", authed(projectHandler.CreateProject))
	mux.Handle("GET /api/projects/{projectId}/tasks", authed(projectHandler.ListTasks))
	mux.Handle("POST /api/tasks", authed(projectHandler.CreateTask))
	mux.Handle("GET /api/tasks/{taskId}", authed(projectHandler.GetTask))

	mux.Handle("GET /api/admin/users", adminOnly(adminHandler.ListUsers))
	mux.Handle("GET /api/admin/users/stats", adminOnly(adminHandler.UserStats))
	mux.Handle("PATCH /api/admin/users/{id}/role", adminOnly(adminHandler.UpdateRole))
	mux.Handle("POST /api/admin/users/{id}/deactivate", adminOnly(adminHandler.Deactivate))

	var handler http.Handler = mux
	handler = ratelimit.Middleware(limiter, ratelimit.ClientIPKey(cfg.TrustProxy), logger, handler)
	handler = httpx.CORS(cfg.CORSAllowedOrigins, handler)
	handler = observability.Instrument(handler)
	handler = observability.RequestLoggingMiddleware(logger, cfg.TrustProxy, handler)
	handler = observability.RecoverMiddleware(logger, handler)

	return &dependencies{handler: handler, authRepo: authRepo, authService: authService}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
