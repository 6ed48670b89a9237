package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/howdo/internal/api"
	"github.com/kalambet/howdo/internal/config"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the document tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr.
	logger := setupLogging(cfg.Log.Level)

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	deps := api.MCPDeps{
		Store:    svc.store,
		Renderer: svc.renderer,
		Metrics:  svc.metrics,
		Logger:   logger,
		Version:  version,
	}
	if svc.sqlite != nil {
		deps.Renditions = svc.sqlite
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
	logger.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
