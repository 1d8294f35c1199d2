package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SiMista/Onskone-sub000/internal/config"
	"github.com/SiMista/Onskone-sub000/internal/game"
	"github.com/SiMista/Onskone-sub000/internal/httpapi"
	"github.com/SiMista/Onskone-sub000/internal/lobby"
	"github.com/SiMista/Onskone-sub000/internal/resilience"
	"github.com/SiMista/Onskone-sub000/internal/session"
	"github.com/SiMista/Onskone-sub000/internal/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	deck, err := game.LoadDeck(rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		log.Fatal("load question deck", zap.Error(err))
	}

	reg := lobby.NewRegistry()
	res := resilience.NewManager(resilience.Delays{
		DisconnectGrace: cfg.DisconnectGrace,
		InactiveAfter:   cfg.InactiveAfter,
		LeaderSkip:      cfg.LeaderSkip,
		KickBlock:       cfg.KickBlock,
	}, log)
	hub := ws.NewHub(log)
	coord := session.NewCoordinator(reg, res, deck, session.Timers{
		Selection: cfg.SelectionTimer,
		Answering: cfg.AnswerTimer,
		Guessing:  cfg.GuessTimer,
	}, hub, log)

	handler := httpapi.SetupRoutes(ws.Handler(hub, coord, cfg.CORSOrigins, log), reg, cfg.PublicURL)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
