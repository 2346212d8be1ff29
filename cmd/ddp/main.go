package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ddpcore/internal/app"
	"ddpcore/internal/config"
	"ddpcore/internal/model"
	"ddpcore/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Client core failed")
	}
}

// run boots the core headless: it restores the session, then logs the photo
// of the moment and incoming notifications until interrupted.
func run(ctx context.Context, cfg *config.Config) error {
	core, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	if err := core.Session.Wait(ctx); err != nil {
		return err
	}

	state := core.Session.State()
	log.Info().Str("status", string(state.Status)).Bool("dark", core.Theme.IsDark()).Msg("Session resolved")

	core.Feed.Subscribe(func(v service.FeedView) {
		switch {
		case v.Empty:
			log.Info().Msg("No photos yet")
		case v.FromLatest:
			log.Info().Msg("Showing latest local capture")
		case v.Photo != nil && v.Owner != nil:
			log.Info().Str("photo_id", v.Photo.ID).Str("owner", v.Owner.DisplayName()).
				Int64("views", v.Photo.ViewCount).Msg("Photo of the moment")
		}
	})
	core.Feed.Start(ctx)

	if state.Status == model.SessionAuthenticated {
		core.Notifications.Subscribe(func(items []model.Notification) {
			log.Info().Int("total", len(items)).Int("unread", core.Notifications.UnreadCount()).Msg("Notifications updated")
		})
		if err := core.Notifications.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Notifications unavailable")
		}
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	return nil
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
