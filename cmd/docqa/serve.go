package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"docqa/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Index every corpus and serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cache, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()
	if err := svc.Init(ctx); err != nil {
		return err
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(server.Config{
		Addr:           addr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
	}, svc)
	return srv.Run(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
