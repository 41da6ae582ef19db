package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	dcaauth "github.com/opengovern/dca-auth-go"
	"github.com/opengovern/dca-auth-go/emitter"
	"github.com/opengovern/dca-auth-go/realtime"
)

var (
	listenFilter string
	metricsAddr  string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream realtime events",
	Long: `Connect to the realtime channel and print every event until interrupted.

Examples:
  # Print everything
  dca-auth listen

  # Only license events, exposing client metrics for scraping
  dca-auth listen --filter license. --metrics-addr :9090`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenFilter, "filter", "", "Only print events with this prefix")
	listenCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	client, err := newClient(func(cfg *dcaauth.Config) {
		cfg.Metrics = dcaauth.NewMetrics(reg)
	})
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
		defer srv.Close()
	}

	lost := make(chan realtime.DisconnectEvent, 1)
	client.On(realtime.EventDisconnected, func(_ string, payload any) {
		if ev, ok := payload.(realtime.DisconnectEvent); ok && !ev.Requested {
			select {
			case lost <- ev:
			default:
			}
		}
	})
	client.On(emitter.Wildcard, func(event string, payload any) {
		if listenFilter != "" && !strings.HasPrefix(event, listenFilter) {
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s %v\n", time.Now().Format("15:04:05"), event, payload)
	})

	if err := client.ConnectRealtime(ctx); err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Listening for events... (Press Ctrl+C to stop)")

	select {
	case <-ctx.Done():
		return client.DisconnectRealtime()
	case ev := <-lost:
		return fmt.Errorf("realtime connection lost: %d %s", ev.Code, ev.Reason)
	}
}
