package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"moodpad/db"
	"moodpad/internal/app"
	"moodpad/internal/auth"
	"moodpad/internal/config"
	"moodpad/internal/discovery"
	"moodpad/internal/export"
	"moodpad/internal/gitrepo"
	"moodpad/internal/rewrite"
	"moodpad/internal/search"
	"moodpad/internal/session"
	"moodpad/internal/storage"
	"moodpad/internal/store"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		log.Printf("Relay fan-out through Redis enabled")
	}

	var (
		sqlDB *sql.DB
		deps  app.Deps
	)
	switch cfg.Store {
	case "postgres":
		sqlDB, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer sqlDB.Close()
		var migrations fs.FS = db.Migrations
		dir := "migrations"
		if cfg.MigrationsDir != "" {
			migrations, dir = os.DirFS(cfg.MigrationsDir), "."
		}
		if err := store.ApplyMigrations(ctx, sqlDB, migrations, dir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		pg := store.NewPostgresStore(sqlDB)
		deps.Slot, deps.Revoker, deps.Ping = pg, pg, sqlDB.PingContext
	case "redis":
		slot := storage.NewRedisSlotWithClient(redisClient)
		deps.Slot, deps.Ping = slot, slot.Ping
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o755); err != nil {
			log.Fatalf("failed to create data dir: %v", err)
		}
		slot, err := storage.OpenBolt(cfg.BoltPath)
		if err != nil {
			log.Fatalf("bolt open failed: %v", err)
		}
		defer slot.Close()
		deps.Slot = slot
	default:
		deps.Slot = storage.NewMemory()
	}
	if deps.Revoker == nil && redisClient != nil {
		deps.Revoker = session.NewRedisStoreWithClient(redisClient)
	}
	log.Printf("Using %s document store", cfg.Store)

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}
	deps.Versions = gitrepo.New(cfg.ReposDir)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	var pgfts *search.PgFTS
	if sqlDB != nil {
		pgfts = search.NewPgFTS(sqlDB)
	}
	deps.Search = search.NewService(meiliClient, pgfts)

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archive, err := export.NewArchive(ctx, export.ArchiveConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: export archive disabled: %v", err)
		} else {
			deps.Archive = archive
		}
	}

	if strings.TrimSpace(cfg.OpenAIKey) != "" {
		deps.Rewriter = rewrite.NewOpenAI(rewrite.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.RewriteTimeout,
		})
	} else {
		log.Printf("WARNING: OPENAI_API_KEY not set, /api/rewrite will fail")
	}
	deps.Issuer = auth.NewIssuer(cfg.RoomSecret, cfg.RoomTokenTTL)

	service := app.New(deps)
	if n, err := service.Reindex(ctx); err != nil {
		log.Printf("WARNING: reindex failed: %v", err)
	} else if n > 0 {
		log.Printf("Indexed %d stored documents", n)
	}
	go deps.Search.ReindexAllFromPG(ctx, service.EnrichRecord)

	relay := app.NewRelay(redisClient)
	httpServer := app.NewHTTPServer(service, relay, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.Advertise {
		port, err := discovery.PortOf(cfg.Addr)
		if err != nil {
			log.Printf("WARNING: mdns disabled: %v", err)
		} else if announcer, err := discovery.Announce(cfg.InstanceName, port, version); err != nil {
			log.Printf("WARNING: mdns disabled: %v", err)
		} else {
			defer announcer.Close()
		}
	}

	go func() {
		log.Printf("Moodpad API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	relay.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
