package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codocs/config"
	"codocs/config/database"
	"codocs/internal/autosave"
	docHandler "codocs/internal/document"
	docrepo "codocs/internal/document/repository"
	docservice "codocs/internal/document/service"
	"codocs/internal/user/namegen"
	userrepo "codocs/internal/user/repository"
	userservice "codocs/internal/user/service"
	"codocs/pkg/logger"
	"codocs/router"
	"codocs/socket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Sugar.Errorf("Server exited: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	users, docs, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	userService := userservice.NewUserService(users, namegen.NewClient(cfg.NamegenURL, cfg.NamegenTimeout))
	docService := docservice.NewDocumentService(docs, userService)
	saver := autosave.New(docService, cfg.AutosaveDelay)

	// The hub owns every room; it runs until ctx is cancelled.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := socket.NewHub(docService, saver)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Setup(docHandler.NewDocumentHandler(docService), hub, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("Go Backend listening on %s (store=%s)", cfg.Addr, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Sugar.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			stopHub()
			<-hubDone
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Warnf("HTTP shutdown: %v", err)
	}
	stopHub()
	<-hubDone

	// Pending edits are written before the store goes away.
	if err := saver.Close(shutdownCtx); err != nil {
		logger.Sugar.Warnf("Autosave flush incomplete: %v", err)
	}
	return nil
}

// openStore builds the user and document repositories for the configured backend.
func openStore(ctx context.Context, cfg *config.Config) (userservice.Repository, docservice.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := database.Connect(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return userrepo.NewPostgresRepository(db), docrepo.NewPostgresRepository(db), func() { db.Close() }, nil

	case config.StoreMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Sugar.Warnf("Mongo disconnect: %v", err)
			}
		}
		return userrepo.NewMongoRepository(db), docrepo.NewMongoRepository(db), disconnect, nil

	default:
		logger.Sugar.Warn("Using in-memory store; documents are lost on restart")
		return userrepo.NewMemoryRepository(), docrepo.NewMemoryRepository(), func() {}, nil
	}
}
