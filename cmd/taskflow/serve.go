package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"taskflow/internal/api"
	"taskflow/internal/auth"
	"taskflow/internal/bot"
)

func serveCmd(envDir *string) *cobra.Command {
	var keepAlive time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the periodic jobs and the optional Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(*envDir)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSecret(); err != nil {
				return err
			}

			return a.serve(ctx, keepAlive)
		},
	}
	cmd.Flags().DurationVar(&keepAlive, "keepalive", 25*time.Second, "ping interval on notification streams")
	return cmd
}

func (a *app) serve(ctx context.Context, keepAlive time.Duration) error {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	locker, closeLocker, err := a.locker(ctx)
	if err != nil {
		return err
	}
	defer closeLocker()

	scheduler := a.scheduler(locker)
	if err := scheduler.Register(a.recurrence, a.cfg.RecurrenceInterval); err != nil {
		return err
	}
	if err := scheduler.Register(a.reminders, a.cfg.ReminderInterval); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	tokens := auth.NewTokens(a.cfg.JWTSecret)
	router := api.NewRouter(api.Deps{
		Tasks:         a.tasks,
		Notifications: a.notifications,
		Sessions:      a.registry,
		Tokens:        tokens,
		Log:           a.log,
		KeepAlive:     keepAlive,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The first component to stop takes the others down with it.
	errCh := make(chan error, 2)
	running := 1
	go func() {
		errCh <- api.Serve(ctx, a.cfg.HTTPAddr, router, a.log)
	}()

	if a.cfg.TelegramToken != "" {
		telegramBot, err := bot.New(a.cfg.TelegramToken, bot.Deps{
			Users:         a.users,
			Notifications: a.notifications,
			Sessions:      a.registry,
			Tokens:        tokens,
			Log:           a.log,
		})
		if err != nil {
			cancel()
			<-errCh
			return err
		}
		running++
		go func() {
			errCh <- telegramBot.Start(ctx)
		}()
	} else {
		a.log.Info("TELEGRAM_TOKEN not set, telegram delivery disabled")
	}

	a.log.Infow("taskflow started", "addr", a.cfg.HTTPAddr, "version", Version)

	var firstErr error
	for ; running > 0; running-- {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	if firstErr != nil {
		return firstErr
	}
	a.log.Info("shutdown complete")
	return nil
}
