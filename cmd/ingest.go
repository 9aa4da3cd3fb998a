package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/chunker"
	"github.com/docsentry/docsentry/internal/db"
	"github.com/docsentry/docsentry/internal/extract"
	"github.com/docsentry/docsentry/internal/identity"
	"github.com/docsentry/docsentry/internal/ingest"
	"github.com/docsentry/docsentry/internal/progress"
)

var (
	ingestTier string
	ingestUser string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Ingest documents from a directory",
	Long: `Walks a directory, extracts text from every matching document, and
indexes it under the given confidentiality tier. Include and exclude glob
patterns come from the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		tier, err := access.ParseTier(ingestTier)
		if err != nil {
			return err
		}
		if ingestUser == "" {
			return fmt.Errorf("--user is required")
		}

		embedder, err := createEmbedderFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}

		database, err := db.Open(filepath.Join(cfg.DataDir, "docsentry.db"))
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

		service := ingest.NewService(database, ch, embedder, idx, identity.NewStore(database))

		paths, err := collectFiles(args[0], cfg.Include, cfg.Exclude)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Fprintln(os.Stderr, "No matching documents found.")
			return nil
		}

		reporter := progress.NewReporter()
		reporter.Start(len(paths))
		defer reporter.Finish()

		ctx := context.Background()
		var ingested, failed int
		for i, path := range paths {
			reporter.Update(i, filepath.Base(path))

			data, err := os.ReadFile(path)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
				continue
			}
			text, err := extract.Text(path, data)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
				continue
			}

			title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if _, err := service.Ingest(ctx, ingestUser, title, tier, text); err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
				continue
			}
			ingested++
		}
		reporter.Update(len(paths), "done")

		fmt.Fprintf(os.Stderr, "Ingested %d documents at tier %s (%d failed)\n", ingested, tier, failed)
		return nil
	},
}

// collectFiles walks root and returns the files matching the include globs
// and not matching the exclude globs.
func collectFiles(root string, include, exclude []string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if matchesAny(exclude, rel) {
			return nil
		}
		if len(include) > 0 && !matchesAny(include, rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return paths, nil
}

// matchesAny reports whether the path matches any of the glob patterns,
// by full relative path or by basename.
func matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.PathMatch(pattern, rel); err == nil && matched {
			return true
		}
		if matched, err := doublestar.PathMatch(pattern, filepath.Base(rel)); err == nil && matched {
			return true
		}
	}
	return false
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTier, "tier", "Low", "confidentiality tier for the ingested documents")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "user id performing the ingestion")
	rootCmd.AddCommand(ingestCmd)
}
