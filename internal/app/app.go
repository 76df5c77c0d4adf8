// Package app wires configuration into a ready weekly campaign service. The
// server and worker binaries share it so both run the same state machine
// against the same store.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/weekly-campaign/internal/config"
	"github.com/ignite/weekly-campaign/internal/content"
	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/mailer"
	"github.com/ignite/weekly-campaign/internal/pkg/logger"
	"github.com/ignite/weekly-campaign/internal/render"
	"github.com/ignite/weekly-campaign/internal/repository/memory"
	"github.com/ignite/weekly-campaign/internal/repository/postgres"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

// App holds the service and the connections it owns.
type App struct {
	Config  *config.Config
	Service *weekly.Service
	DB      *sql.DB       // nil when running on the memory store
	Redis   *redis.Client // nil when REDIS_URL is unset
}

// New validates cfg and builds the service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	a := &App{Config: cfg}

	var repo weekly.Repository
	if cfg.Database.URL != "" {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		repo = postgres.NewWeeklyRepo(db)
		log.Printf("[app] using postgres at %s", hostOf(cfg.Database.URL))
	} else {
		store := memory.New()
		_, replyTo := cfg.MailIdentity()
		store.PutContact(domain.Contact{ID: "dev-contact", Email: replyTo, FirstName: "Dev", LastName: "Contact"})
		repo = store
		log.Printf("[app] DATABASE_URL not set, using in-memory store (dev only)")
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			log.Printf("[app] redis ping failed, continuing without it: %v", err)
			a.Redis.Close()
			a.Redis = nil
		}
	}

	provider, err := content.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("content provider: %w", err)
	}
	transport, err := mailer.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("mail transport: %w", err)
	}
	layout, err := render.Load(cfg.Render.TemplatePath, render.Options{
		CTAURL:          cfg.Render.CTAURL,
		UnsubscribeURL:  cfg.Render.UnsubscribeURL,
		ManagePrefsURL:  cfg.Render.ManagePrefsURL,
		AssetLibraryURL: cfg.Render.AssetLibraryURL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Settings.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	sender, replyTo := cfg.MailIdentity()
	a.Service, err = weekly.NewService(repo, provider, transport, layout, weekly.Options{
		Location: loc,
		Schedule: weekly.Schedule{
			Generate: cfg.Settings.Schedule.Generate,
			Lock:     cfg.Settings.Schedule.Lock,
			Send:     cfg.Settings.Schedule.Send,
		},
		Identity:       weekly.MailIdentity{Sender: sender, ReplyTo: replyTo},
		Constraints:    domain.ContentConstraints{NoEmojis: true, NoEmdash: true, NeverDiscussPricing: true},
		ContentTimeout: cfg.Content.Timeout(),
		MailTimeout:    cfg.Mail.Timeout(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Printf("[app] timezone=%s generate=%s lock=%s send=%s transport=%s provider=%s",
		loc, cfg.Settings.Schedule.Generate, cfg.Settings.Schedule.Lock, cfg.Settings.Schedule.Send,
		cfg.Mail.Transport, cfg.Content.Provider)
	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func openDB(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// hostOf returns the host part of a DSN for logging without credentials.
func hostOf(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}
