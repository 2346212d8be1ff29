// Package app wires configuration, stores and services into one client core.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"ddpcore/internal/config"
	"ddpcore/internal/database"
	"ddpcore/internal/observable"
	"ddpcore/internal/prefs"
	"ddpcore/internal/realtime"
	"ddpcore/internal/redis"
	"ddpcore/internal/repository"
	"ddpcore/internal/service"
)

// App is the assembled client core. Screens talk to the exported services.
type App struct {
	Config  *config.Config
	Prefs   prefs.Store
	Latest  *observable.Value[string]
	Session *service.SessionManager

	Feed          *service.FeedProvider
	Follows       *service.FollowGraph
	Notifications *service.NotificationFeed
	Photos        *service.PhotoService
	Theme         *service.ThemeStore

	photoRepo repository.PhotoRepository
	media     service.MediaStore

	db        *sqlx.DB
	firestore *firestore.Client
	redis     *redis.Client
	redisBus  *realtime.RedisBus
}

// New connects the stores named by cfg, selects the session backend and
// restores any persisted session.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Latest: observable.New("")}

	store, err := prefs.OpenFile(cfg.PrefsPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.PrefsPath).Msg("Preferences unreadable, using memory store")
		a.Prefs = prefs.NewMemoryStore()
	} else {
		a.Prefs = store
	}

	var bus realtime.Bus = realtime.NewLocalBus()
	var ledger service.ViewLedger
	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using in-process change bus")
		} else {
			a.redis = client
			a.redisBus = realtime.NewRedisBus(client.Client)
			a.redisBus.Start(ctx)
			bus = a.redisBus
			ledger = redis.NewViewLedger(client.Client)
		}
	}

	var (
		users         repository.UserRepository
		notifications repository.NotificationRepository
		accounts      repository.AccountRepository
	)
	switch cfg.DocStore {
	case config.DocStoreFirestore:
		client, err := database.ConnectFirestore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to firestore: %w", err)
		}
		a.firestore = client
		users = repository.NewFirestoreUserRepository(client)
		a.photoRepo = repository.NewFirestorePhotoRepository(client)
		notifications = repository.NewFirestoreNotificationRepository(client)
	default:
		db, err := database.Connect(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
		if err := database.EnsureSchema(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		users = repository.NewUserRepository(db, bus)
		a.photoRepo = repository.NewPhotoRepository(db, bus)
		notifications = repository.NewNotificationRepository(db, bus)
		accounts = repository.NewAccountRepository(db)
	}

	if cfg.ArchiveEnabled() {
		media, err := service.NewS3MediaStore(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Photo archive disabled")
		} else {
			a.media = media
		}
	}

	var primary, fallback service.SessionBackend
	if accounts != nil && cfg.JWTSecret != "" {
		maxAge := time.Duration(cfg.SessionMaxAge) * time.Second
		primary = service.NewPasswordBackend(accounts, a.Prefs, cfg.JWTSecret, maxAge)
	}
	if cfg.AuthRESTURL != "" && cfg.AuthAPIKey != "" {
		fallback = service.NewRESTBackend(cfg.AuthRESTURL, cfg.AuthAPIKey, nil, prefs.NewMemoryStore())
	}
	backend, err := service.SelectBackend(ctx, cfg.AuthMode, primary, fallback)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("no session backend: %w", err)
	}

	a.Session = service.NewSessionManager(backend, users)
	a.Theme = service.NewThemeStore(a.Prefs)
	a.Follows = service.NewFollowGraph(users, a.photoRepo, notifications, a.Session)
	a.Notifications = service.NewNotificationFeed(notifications, a.Session)
	a.Photos = service.NewPhotoService(a.photoRepo, a.media, ledger, a.Session, a.Latest)

	feedOpts := []service.FeedOption{service.WithRefreshDelay(cfg.FeedRefreshDelay)}
	if ledger != nil {
		feedOpts = append(feedOpts, service.WithViewLedger(ledger))
	}
	a.Feed = service.NewFeedProvider(a.photoRepo, users, a.Session, a.Latest, feedOpts...)

	if err := a.Session.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	log.Info().
		Str("docstore", cfg.DocStore).
		Str("backend", backend.Name()).
		Bool("redis", a.redis != nil).
		Bool("archive", a.media != nil).
		Msg("Client core ready")
	return a, nil
}

// CaptureFlow binds the capture flow to the host's camera and review screen.
func (a *App) CaptureFlow(camera service.Camera, reviewer service.Reviewer) *service.CaptureFlow {
	return service.NewCaptureFlow(camera, reviewer, a.photoRepo, a.media, a.Session, a.Latest)
}

// Close stops the listeners and releases every connection.
func (a *App) Close() {
	if a.Feed != nil {
		a.Feed.Close()
	}
	if a.Notifications != nil {
		a.Notifications.Close()
	}
	if a.redisBus != nil {
		a.redisBus.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis")
		}
	}
	if a.firestore != nil {
		if err := a.firestore.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close firestore")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
