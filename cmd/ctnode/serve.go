package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mockmonero/internal/api"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transaction API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		n, err := openNode(cfg, false)
		if err != nil {
			return err
		}
		defer n.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limiter := api.NewClientLimiter(cfg.RateLimit, cfg.RateBurst)
		go pruneLoop(ctx, limiter, n)

		srv := api.NewServer(n.g, n.seq, n.health, n.metrics, limiter, n.log)
		err = srv.ListenAndServe(ctx, cfg.ListenAddr)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		n.log.Info("shutting down")
		return err
	},
}

func pruneLoop(ctx context.Context, l *api.ClientLimiter, n *node) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if k := l.Prune(); k > 0 {
				n.log.Debug("pruned idle rate limiters", zap.Int("count", k))
			}
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "override listen_addr from the configuration")
}
