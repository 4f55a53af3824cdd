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

	"commons/api/internal/app"
	"commons/api/internal/authpw"
	"commons/api/internal/config"
	"commons/api/internal/email"
	"commons/api/internal/export"
	"commons/api/internal/media"
	"commons/api/internal/mirror"
	"commons/api/internal/search"
	"commons/api/internal/session"
	"commons/api/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	pg := store.NewPostgres(db)

	// Refresh sessions live in Redis when available, Postgres otherwise.
	var sessions session.Store
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		sessions = redisStore
		log.Printf("sessions: using redis")
	} else {
		sessions = session.NewPGStore(db)
		log.Printf("sessions: using postgres")
	}
	defer sessions.Close()

	var meili *search.Meili
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchSvc := search.NewService(meili, search.NewPgFTS(db))

	var mediaSvc *media.Service
	if cfg.MediaEndpoint != "" {
		mediaSvc, err = media.NewService(ctx, media.Config{
			Endpoint:  cfg.MediaEndpoint,
			AccessKey: cfg.MediaAccessKey,
			SecretKey: cfg.MediaSecretKey,
			Bucket:    cfg.MediaBucket,
			UseSSL:    cfg.MediaUseSSL,
			PublicURL: cfg.MediaPublicURL,
		})
		if err != nil {
			log.Fatalf("connect media storage: %v", err)
		}
	} else {
		log.Printf("media: no endpoint configured, featured-image uploads disabled")
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("email: SMTP not configured, verification tokens are returned in responses")
	}

	svc := app.NewService(app.ServiceConfig{
		Store:      pg,
		Sessions:   sessions,
		Accounts:   authpw.NewService(pg),
		Mailer:     mailer,
		Search:     searchSvc,
		Mirror:     mirror.New(cfg.MirrorDir),
		Media:      mediaSvc,
		Exporter:   export.NewService(pg),
		JWTSecret:  cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		BaseURL:    cfg.BaseURL,
	})

	if err := svc.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	go svc.ReindexSearch(ctx)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(svc, cfg.CORSOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Exports render through headless Chromium and can take a while.
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
