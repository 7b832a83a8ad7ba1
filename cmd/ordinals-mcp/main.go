// Command ordinals-mcp bridges MCP tool calls over stdio into the priced
// Ordinals API, paying challenges with the configured credential. All
// logging goes to stderr; stdout carries the MCP protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ordkit/ordinals-x402/pkg/bridge"
	"github.com/ordkit/ordinals-x402/pkg/logger"
	"github.com/ordkit/ordinals-x402/pkg/signer"
)

func main() {
	root := &cobra.Command{
		Use:          "ordinals-mcp",
		Short:        "MCP stdio bridge into the x402-gated Ordinals API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	apiURL := os.Getenv("ORDINALS_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	privateKey := os.Getenv("ORDINALS_PRIVATE_KEY")
	if privateKey == "" {
		return fmt.Errorf("ORDINALS_PRIVATE_KEY environment variable is required")
	}
	logLevel := os.Getenv("ORDINALS_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	log := logger.NewStderrLogger(logLevel)

	credential, err := signer.NewCredentialFromHex(privateKey)
	if err != nil {
		return err
	}
	log.Info("bridge credential loaded", map[string]any{"payer": credential.Address(), "api": apiURL})

	client := bridge.NewPayingClient(apiURL, credential, log)
	srv, err := bridge.NewMCPServer(client, log)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
