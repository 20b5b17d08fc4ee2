// Package api implements the points API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianswap/points-middleware/pkg/admin"
	apphttp "github.com/meridianswap/points-middleware/pkg/app/http"
	"github.com/meridianswap/points-middleware/pkg/auth"
	"github.com/meridianswap/points-middleware/pkg/broadcast"
	"github.com/meridianswap/points-middleware/pkg/config"
	"github.com/meridianswap/points-middleware/pkg/leaderboard"
	"github.com/meridianswap/points-middleware/pkg/ledger"
	"github.com/meridianswap/points-middleware/pkg/pgutil"
	"github.com/meridianswap/points-middleware/pkg/points"
	"github.com/meridianswap/points-middleware/pkg/reconciler"
	"github.com/meridianswap/points-middleware/pkg/tracker"
	"github.com/meridianswap/points-middleware/pkg/txstore"
	"github.com/meridianswap/points-middleware/pkg/userstore"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run wires the full service graph and serves until interrupted.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting points API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	policy, err := policyFromConfig(&cfg.Points)
	if err != nil {
		return fmt.Errorf("invalid points policy: %w", err)
	}

	dbBun, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = dbBun.Close() }()

	rawDB, err := pgutil.OpenFallbackDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = rawDB.Close() }()

	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	userStore := userstore.NewStore(dbBun)
	txStore := txstore.NewStore(dbBun, rawDB, logger)

	hub := broadcast.NewHub(logger)
	defer hub.Close()

	lgr := ledger.New(userStore, hub, logger)
	engine := reconciler.New(txStore, userStore, hub, policy, logger)

	trackerSvc := tracker.New(userStore, txStore, lgr, engine, policy, logger,
		tracker.WithSettleDelay(cfg.Points.SettleDelay))
	leaderboardSvc := leaderboard.New(userStore, logger)
	adminSvc := admin.New(userStore, txStore, lgr, engine, hub, cfg.Points.DemoAddress, logger)

	validator := auth.NewAdminValidator(cfg.Auth.AdminJWTSecret, cfg.Auth.AdminJWTIssuer, logger)
	if !validator.Enabled() {
		logger.Warn("Admin routes are unauthenticated: no admin_jwt_secret configured")
	}

	router := s.setupRouter(trackerSvc, leaderboardSvc, adminSvc, hub, validator)
	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func (s *Server) setupRouter(
	trackerSvc *tracker.Service,
	leaderboardSvc *leaderboard.Service,
	adminSvc *admin.Service,
	hub *broadcast.Hub,
	validator *auth.AdminValidator,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Live updates
	r.Get("/ws", hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		tracker.NewHandler(trackerSvc).Routes(r)
		leaderboard.NewHandler(leaderboardSvc).Routes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(validator.Middleware)
			admin.NewHandler(adminSvc).Routes(r)
		})
	})

	return r
}

// policyFromConfig builds the reward policy from configuration. The config is
// the single source of truth for the cap and per-swap award.
func policyFromConfig(cfg *config.PointsConfig) (points.Policy, error) {
	perSwap, err := decimal.NewFromString(cfg.PointsPerSwap)
	if err != nil {
		return points.Policy{}, fmt.Errorf("points_per_swap %q: %w", cfg.PointsPerSwap, err)
	}
	quizReward, err := decimal.NewFromString(cfg.QuizReward)
	if err != nil {
		return points.Policy{}, fmt.Errorf("quiz_reward %q: %w", cfg.QuizReward, err)
	}
	return points.Policy{
		DailyCap:      cfg.DailyCap,
		PointsPerSwap: perSwap,
		QuizReward:    quizReward,
	}, nil
}
