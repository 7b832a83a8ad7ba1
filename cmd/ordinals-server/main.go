// Command ordinals-server runs the priced Ordinals HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ordkit/ordinals-x402/pkg/facilitator"
	"github.com/ordkit/ordinals-x402/pkg/gate"
	"github.com/ordkit/ordinals-x402/pkg/journal"
	"github.com/ordkit/ordinals-x402/pkg/logger"
	"github.com/ordkit/ordinals-x402/pkg/metrics"
	"github.com/ordkit/ordinals-x402/pkg/ordinals"
	"github.com/ordkit/ordinals-x402/pkg/server"
)

func main() {
	root := &cobra.Command{
		Use:          "ordinals-server",
		Short:        "x402-gated Bitcoin Ordinals API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "unsettled",
		Short: "List executed-but-unsettled payments awaiting reconciliation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listUnsettled(cmd.Context())
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	log := logger.NewZapLogger(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewPrometheusRecorder(registry)

	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer store.Close()

	facClient := facilitator.NewClient(&facilitator.Config{
		URL:     cfg.FacilitatorURL,
		Timeout: 30 * time.Second,
	})

	g := gate.NewGate(facClient,
		gate.WithLogger(log),
		gate.WithMetrics(recorder),
		gate.WithReplayStore(store),
		gate.WithJournal(store),
	)

	var provider ordinals.Provider
	if cfg.MempoolURL != "" {
		provider = ordinals.NewClient(cfg.MempoolURL, cfg.BitcoinNetwork, 10*time.Second)
	} else {
		log.Warn("no mempool API configured, serving static data", nil)
		provider = ordinals.NewStaticProvider(cfg.BitcoinNetwork)
	}

	srv := server.New(cfg, g, provider, ordinals.NewMockBroadcaster(), log, registry)
	return srv.Run(ctx)
}

func listUnsettled(ctx context.Context) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListUnsettled(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no unsettled payments")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %s  %s  payer=%s  amount=%s %s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.ID, rec.Resource, rec.Payer, rec.Amount, rec.Network)
	}
	return nil
}
