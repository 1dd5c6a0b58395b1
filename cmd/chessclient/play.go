package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/nochess-client/internal/chessbuilder"
	"github.com/park285/nochess-client/internal/obslog"
	"github.com/park285/nochess-client/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	flagNoStart bool

	playCmd = &cobra.Command{
		Use:   "play",
		Short: "Open the terminal board and start a game",
		Args:  cobra.NoArgs,
		RunE:  runPlay,
	}
)

func init() {
	playCmd.Flags().BoolVar(&flagNoStart, "no-start", false, "open the board without starting a game")
}

func runPlay(cmd *cobra.Command, _ []string) error {
	// the board owns the terminal, so logs only go to the file sink
	if err := initLogging(false); err != nil {
		return err
	}
	logger := obslog.L()

	deps, err := chessbuilder.New(cfg, logger)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Controller.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		if !flagNoStart {
			if err := deps.Controller.StartSession(gctx, cfg.Mode); err != nil {
				logger.Warn("auto_start_failed", zap.Error(err))
			}
		}
		return tui.Run(gctx, deps.Controller, deps.Messages, cfg.Mode)
	})

	runErr := g.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	if err := deps.Close(closeCtx); err != nil {
		logger.Warn("close_failed", zap.Error(err))
	}
	if runErr != nil {
		return fmt.Errorf("play: %w", runErr)
	}
	return nil
}
