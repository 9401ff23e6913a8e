package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chatserver/internal/config"
	"chatserver/internal/domain"
	"chatserver/internal/httpserver"
	"chatserver/internal/security"
	mongostore "chatserver/internal/store/mongo"
	"chatserver/internal/store/sqlite"
	"chatserver/internal/ws"

	"chatserver/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, messages, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer closeStore()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	hub := ws.NewHub()

	authSvc := service.NewAuthService(users, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(users)
	chatSvc := service.NewChatService(users, messages, hub, cfg.MaxAttachmentBytes())
	historySvc := service.NewHistoryService(users, messages, hub)
	uploadSvc := service.NewUploadService(chatSvc, cfg.TempUploadDir, cfg.UploadSessionTTL)
	uploadSvc.StartReaper(ctx)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := authSvc.SeedAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("failed to seed admin user")
		}
	} else {
		log.Warn().Msg("ADMIN_EMAIL/ADMIN_PASSWORD not set; no admin will be seeded")
	}

	router := httpserver.NewRouter(cfg, users, hub, tokenSvc, authSvc, userSvc, chatSvc, historySvc, uploadSvc)

	srv := &http.Server{
		Addr:        cfg.HTTPAddr(),
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore selects the persistence backend: MongoDB as the primary
// document store, SQLite for development without one.
func openStore(ctx context.Context, cfg *config.Config) (domain.UserRepository, domain.MessageRepository, func(), error) {
	if cfg.StoreBackend == "sqlite" {
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return sqlite.NewUserRepo(db), sqlite.NewMessageRepo(db), func() { db.Close() }, nil
	}

	db, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, nil, err
	}
	closer := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongostore.Close(closeCtx, db); err != nil {
			log.Error().Err(err).Msg("disconnect mongo")
		}
	}
	return mongostore.NewUserRepo(db), mongostore.NewMessageRepo(db), closer, nil
}
