package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/park285/nochess-client/internal/chessbuilder"
	"github.com/park285/nochess-client/internal/obslog"
	"github.com/park285/nochess-client/internal/render"
	"github.com/park285/nochess-client/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	flagOut      string
	flagSquare   int
	flagWait     time.Duration
	flagAnalysis bool

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Start a game and write the opening board to a PNG",
		Args:  cobra.NoArgs,
		RunE:  runSnapshot,
	}
)

func init() {
	f := snapshotCmd.Flags()
	f.StringVarP(&flagOut, "out", "o", "snapshot.png", "output file")
	f.IntVar(&flagSquare, "square", 64, "square size in pixels")
	f.DurationVar(&flagWait, "wait", 0, "wait this long for a live evaluation before drawing")
	f.BoolVar(&flagAnalysis, "analysis", false, "request the analysis overlay before drawing")
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	if err := initLogging(true); err != nil {
		return err
	}
	logger := obslog.L()

	deps, err := chessbuilder.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Warn("close_failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var png []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Controller.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		v, err := prepareSnapshot(gctx, deps.Controller)
		if err != nil {
			return err
		}
		renderer := deps.Renderer
		if cmd.Flags().Changed("square") {
			ropts := []render.Option{render.WithMessages(deps.Messages), render.WithSquareSize(flagSquare)}
			if cfg.PieceDir != "" {
				ropts = append(ropts, render.WithPieceDir(cfg.PieceDir))
			}
			renderer = render.New(ropts...)
		}
		png, err = renderer.RenderPNG(gctx, v)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := os.WriteFile(flagOut, png, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", flagOut, err)
	}
	logger.Info("snapshot_written", zap.String("path", flagOut), zap.Int("bytes", len(png)))
	fmt.Fprintln(cmd.OutOrStdout(), flagOut)
	return nil
}

// prepareSnapshot starts a game and waits for the view the image should show.
func prepareSnapshot(ctx context.Context, ctrl *session.Controller) (session.View, error) {
	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout*2)
	defer cancel()
	if err := ctrl.StartSession(reqCtx, cfg.Mode); err != nil {
		return session.View{}, err
	}
	v, err := waitForView(reqCtx, ctrl, func(v session.View) bool { return !v.Busy })
	if err != nil {
		return v, err
	}
	if !v.HasSession() {
		return v, fmt.Errorf("start game: %s", v.Notice.Text)
	}
	if v.Session.GameOver {
		return v, nil
	}

	if flagAnalysis {
		if err := ctrl.ToggleAnalysis(reqCtx); err != nil {
			return v, err
		}
		v, err = waitForView(reqCtx, ctrl, func(v session.View) bool {
			return v.PendingToggle == session.OverlayNone
		})
		if err != nil {
			return v, err
		}
	}

	if flagWait > 0 {
		waitCtx, waitCancel := context.WithTimeout(ctx, flagWait)
		defer waitCancel()
		live, err := waitForView(waitCtx, ctrl, func(v session.View) bool {
			return v.EvaluationSource == session.SourceStream
		})
		switch {
		case err == nil:
			v = live
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// draw whatever is there
			v, err = ctrl.View(ctx)
			if err != nil {
				return v, err
			}
		default:
			return v, err
		}
	}
	return v, nil
}

// waitForView polls the controller until ready accepts a snapshot.
func waitForView(ctx context.Context, ctrl *session.Controller, ready func(session.View) bool) (session.View, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		v, err := ctrl.View(ctx)
		if err != nil {
			return v, err
		}
		if ready(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}
