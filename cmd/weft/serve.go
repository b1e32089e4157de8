package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weft-db/weft/internal/config"
	"github.com/weft-db/weft/internal/db"
	"github.com/weft-db/weft/internal/schema"
	"github.com/weft-db/weft/internal/stitch"
	"github.com/weft-db/weft/internal/web"
)

var (
	servePort   int
	serveSchema string
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to run the server on (overrides config)")
	serveCmd.Flags().StringVar(&serveSchema, "schema", "", "Path to the schema file (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query server",
	Long:  "Load the relation schema, connect to the database, and serve entity queries over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if serveSchema != "" {
			cfg.Engine.SchemaFile = serveSchema
		}

		logger, err := buildLogger(cfg.Engine.Debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()

		graph, err := schema.LoadFile(cfg.Engine.SchemaFile)
		if err != nil {
			return fmt.Errorf("failed to load schema: %w", err)
		}
		logger.Info("schema loaded",
			zap.String("file", cfg.Engine.SchemaFile),
			zap.Int("entities", len(graph.Entities())))

		dbURL := cfg.Database.URL
		if url := os.Getenv("DATABASE_URL"); url != "" {
			dbURL = url
		}
		if dbURL == "" {
			return fmt.Errorf("no database URL configured (set database.url or DATABASE_URL)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := db.Open(ctx, db.Config{
			URL:             dbURL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		stitcher := stitch.NewStitcher(conn, graph,
			stitch.WithLogger(logger),
			stitch.WithFanout(cfg.Engine.Fanout))
		controller := stitch.NewController(stitcher, stitch.ControllerConfig{
			Strict: cfg.Engine.StrictIncludes,
			Debug:  cfg.Engine.Debug,
			Logger: logger,
		})
		handler := web.NewHandler(web.HandlerConfig{
			Graph:      graph,
			Querier:    conn,
			Controller: controller,
			MaxDepth:   cfg.Engine.MaxIncludeDepth,
			Logger:     logger,
		})

		address := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		serverCfg := web.DefaultServerConfig(address, handler.Routes())
		serverCfg.Logger = logger
		server, err := web.NewServer(serverCfg)
		if err != nil {
			return err
		}

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.ListenAndServe()
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errChan:
			return err
		case sig := <-sigChan:
			logger.Info("signal received", zap.String("signal", sig.String()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	},
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
