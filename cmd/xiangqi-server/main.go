package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/xiangqi-server/internal/adapter/xqpresenter"
	appcfg "github.com/park285/xiangqi-server/internal/config"
	"github.com/park285/xiangqi-server/internal/msgcat"
	"github.com/park285/xiangqi-server/internal/notify"
	"github.com/park285/xiangqi-server/internal/obslog"
	"github.com/park285/xiangqi-server/internal/registry"
	"github.com/park285/xiangqi-server/internal/render"
	"github.com/park285/xiangqi-server/internal/results"
	"github.com/park285/xiangqi-server/internal/roomstore"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/wshub"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := roomstore.NewClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_init_error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()
	store := roomstore.NewStore(rdb, cfg.WaitingRoomTTL)

	repo, closeRepo := openResults(ctx, cfg.DatabaseURL, logger)
	defer closeRepo()

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_init_error", zap.Error(err))
	}
	presenter := xqpresenter.NewPresenter(render.NewSVGBoardRenderer())

	sinks := session.Fanout{results.NewRecorder(repo, 5*time.Second)}
	if cfg.NotifyURL != "" {
		n := notify.NewNotifier(notify.NewClient(cfg.NotifyURL, notify.WithToken(cfg.NotifyToken)), presenter, 256)
		go n.Run(ctx)
		sinks = append(sinks, n)
	}

	// the hub is both a sink of the registry and a client of it
	var hub *wshub.Hub
	sinks = append(sinks, session.SinkFunc(func(ev session.Event) { hub.Publish(ev) }))

	reg := registry.New(registry.Config{
		Defaults: session.Options{
			UndoEnabled: cfg.UndoEnabled,
			UndoBudget:  cfg.MaxUndo,
			Clock:       cfg.Clock,
		},
		Source: store,
		Sink:   sinks,
	})
	hub = wshub.NewHub(wshub.Config{
		Registry:  reg,
		Rooms:     store,
		Presenter: presenter,
		Messages:  catalog,
		Defaults: roomstore.Settings{
			UndoEnabled:  cfg.UndoEnabled,
			MaxUndo:      cfg.MaxUndo,
			ClockSeconds: int(cfg.Clock / time.Second),
		},
		AllowedOrigins: cfg.AllowedOrigins,
	})

	sweeper := &registry.Sweeper{Registry: reg, Waiting: store, Interval: cfg.SweepInterval, IdleTimeout: cfg.IdleTimeout}
	go func() { _ = sweeper.Run(ctx) }()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		hctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(hctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server_shutdown", zap.Int("connections", hub.Connections()), zap.Strings("rooms", reg.Rooms()))
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("server_shutdown_error", zap.Error(err))
	}
}

// openResults connects to Postgres when configured and falls back to the
// in-memory repository otherwise.
func openResults(ctx context.Context, databaseURL string, logger *zap.Logger) (results.Repository, func()) {
	if databaseURL == "" {
		logger.Info("results_memory_repository")
		return results.NewMemoryRepository(), func() {}
	}
	pg, err := results.NewRepository(databaseURL)
	if err != nil {
		logger.Fatal("results_repo_init_error", zap.Error(err))
	}
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(sctx); err != nil {
		logger.Fatal("results_schema_error", zap.Error(err))
	}
	return pg, func() { _ = pg.Close() }
}
