package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsentry/docsentry/internal/chunker"
	"github.com/docsentry/docsentry/internal/composer"
	"github.com/docsentry/docsentry/internal/dashboard"
	"github.com/docsentry/docsentry/internal/db"
	"github.com/docsentry/docsentry/internal/identity"
	"github.com/docsentry/docsentry/internal/ingest"
	"github.com/docsentry/docsentry/internal/retriever"
	"github.com/docsentry/docsentry/internal/server"
	"github.com/docsentry/docsentry/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docsentry server",
	Long:  `Starts the docsentry HTTP server with the document API, role-gated chat, and the browser dashboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		embedder, err := createEmbedderFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		llmProvider, err := createLLMProviderFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("creating LLM provider: %w", err)
		}

		dbPath := filepath.Join(cfg.DataDir, "docsentry.db")
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		idx, err := createIndexFromConfig(cfg, database, embedder)
		if err != nil {
			return fmt.Errorf("creating index: %w", err)
		}

		ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
		if err != nil {
			return fmt.Errorf("creating chunker: %w", err)
		}

		users := identity.NewStore(database)
		sessions := session.NewStore(database)

		ret, err := retriever.New(embedder, idx, cfg.TopK)
		if err != nil {
			return fmt.Errorf("creating retriever: %w", err)
		}

		ingestSvc := ingest.NewService(database, ch, embedder, idx, users)
		composeSvc := composer.NewService(users, ret, sessions, llmProvider, composer.Options{
			Temperature:   cfg.Temperature,
			HistoryBudget: cfg.HistoryBudget,
			Timeout:       time.Duration(cfg.GenerateTimeoutSec) * time.Second,
			Retries:       cfg.GenerateRetries,
		})

		srv := server.New(server.Config{
			Port:     cfg.Server.Port,
			DataDir:  cfg.DataDir,
			AllowAll: cfg.Server.AllowAll,
		}, database)

		r := srv.Router()
		ingest.RegisterRoutes(r, ingestSvc)
		composer.RegisterRoutes(r, composeSvc, sessions)
		dashboard.New(composeSvc, sessions).RegisterRoutes(r)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		chunkCount, _ := idx.Count(context.Background())
		fmt.Fprintf(os.Stderr, "docsentry v%s starting on port %d\n", Version, cfg.Server.Port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  Chunks indexed: %d\n", chunkCount)

		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
