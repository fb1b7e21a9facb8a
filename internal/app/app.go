package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/drstein77/groceryweb/internal/archive"
	"github.com/drstein77/groceryweb/internal/auth"
	"github.com/drstein77/groceryweb/internal/config"
	"github.com/drstein77/groceryweb/internal/controllers"
	"github.com/drstein77/groceryweb/internal/dbkeeper"
	"github.com/drstein77/groceryweb/internal/events"
	"github.com/drstein77/groceryweb/internal/logger"
	"github.com/drstein77/groceryweb/internal/middleware"
	"github.com/drstein77/groceryweb/internal/storage"
	"github.com/drstein77/groceryweb/internal/theme"
	"github.com/go-chi/chi"
	chimw "github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

type Server struct {
	mx        sync.Mutex
	srv       *http.Server
	ctx       context.Context
	option    *config.Options
	keeper    storage.Keeper
	publisher events.Publisher
	Log       *logger.Logger
}

// NewServer resolves the configuration and builds the logger. args are
// the command line arguments without the program name.
func NewServer(ctx context.Context, args []string) (*Server, error) {
	option := config.NewOptions()
	if err := option.ParseFlags(args); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	nLogger, err := logger.NewLogger(option.LogLevel())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &Server{
		ctx:       ctx,
		option:    option,
		publisher: events.Nop{},
		Log:       nLogger,
	}, nil
}

// Serve wires the application together and blocks until the server is
// shut down and the root context is cancelled.
func (server *Server) Serve() error {
	option := server.option
	for _, note := range option.Notes() {
		server.Log.Info(note)
	}

	keeper, err := server.newKeeper()
	if err != nil {
		return err
	}

	archiver, err := server.newArchiver()
	if err != nil {
		return err
	}

	themes, err := theme.NewStore(option.Theme(), option.ThemeFile())
	if err != nil {
		return err
	}

	sessions, err := auth.NewService(auth.Config{
		Username:     option.AdminUsername(),
		Password:     option.AdminPassword(),
		PasswordHash: option.AdminPasswordHash(),
		Secret:       option.SessionSecret(),
	})
	if err != nil {
		return err
	}
	if !sessions.Enabled() {
		server.Log.Warn("Admin login is disabled, set ADMIN_PASSWORD or ADMIN_PASSWORD_HASH to enable it")
	}

	store := storage.NewStorage(keeper, server.Log,
		storage.WithArchiver(archiver),
		storage.WithPublisher(server.newPublisher()),
		storage.WithSearchLimit(option.SearchLimit()),
		storage.WithMaxFileSize(option.MaxUploadBytes()),
	)

	basecontr := controllers.NewBaseController(store, sessions, server.Log)
	pagecontr, err := controllers.NewPageController(store, sessions, themes, server.Log)
	if err != nil {
		return err
	}

	// create router and mount routes
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(server.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.MaxBodySize(option.MaxUploadBytes()))
	r.Use(chimw.Compress(5))

	r.Get("/healthz", basecontr.Health)
	r.Mount("/api/v0", basecontr.Route())
	r.Mount("/", pagecontr.Route())

	// configure and start the server
	srv := startServer(r, option.RunAddr())
	server.mx.Lock()
	server.srv = srv
	server.mx.Unlock()

	server.Log.Info("Starting server", zap.String("address", option.RunAddr()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}

	<-server.ctx.Done()
	return nil
}

// Shutdown stops accepting requests, waits up to timeout for active
// ones and releases the database and broker connections.
func (server *Server) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	server.mx.Lock()
	srv, keeper, publisher := server.srv, server.keeper, server.publisher
	server.mx.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			server.Log.Error("Server shutdown error", zap.Error(err))
		}
	}
	if keeper != nil {
		keeper.Close()
	}
	if err := publisher.Close(); err != nil {
		server.Log.Error("Failed to close event publisher", zap.Error(err))
	}

	server.Log.Info("Server has shut down")
	server.Log.Sync()
}

// newKeeper connects to Postgres, or falls back to process memory when
// no database is configured.
func (server *Server) newKeeper() (storage.Keeper, error) {
	var keeper storage.Keeper
	if server.option.DataBaseDSN() == "" {
		server.Log.Warn("DATABASE_URI is not set, products are kept in memory only")
		keeper = storage.NewMemoryKeeper()
	} else {
		kp, err := dbkeeper.NewDBKeeper(server.ctx, server.option.DataBaseDSN, server.option.MigrationsPath(), server.Log)
		if err != nil {
			return nil, err
		}
		keeper = kp
	}

	server.mx.Lock()
	server.keeper = keeper
	server.mx.Unlock()
	return keeper, nil
}

func (server *Server) newArchiver() (archive.Archiver, error) {
	if server.option.S3Bucket() == "" {
		return archive.Nop{}, nil
	}

	arch, err := archive.NewS3Archiver(server.ctx, archive.S3Config{
		Bucket:    server.option.S3Bucket(),
		Region:    server.option.S3Region(),
		Prefix:    server.option.S3Prefix(),
		AccessKey: server.option.AWSAccessKey(),
		SecretKey: server.option.AWSSecretKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure S3 archive: %w", err)
	}
	server.Log.Info("Archiving uploads to S3", zap.String("bucket", server.option.S3Bucket()))
	return arch, nil
}

// newPublisher dials the broker. The service runs without events when
// the broker is unreachable.
func (server *Server) newPublisher() events.Publisher {
	if server.option.AMQPURL() == "" {
		return events.Nop{}
	}

	pub, err := events.NewAMQPPublisher(server.option.AMQPURL(), server.option.AMQPQueue())
	if err != nil {
		server.Log.Error("Failed to connect to message broker, import events are disabled", zap.Error(err))
		return events.Nop{}
	}

	server.mx.Lock()
	server.publisher = pub
	server.mx.Unlock()
	server.Log.Info("Publishing import events", zap.String("queue", server.option.AMQPQueue()))
	return pub
}

func startServer(router chi.Router, address string) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
