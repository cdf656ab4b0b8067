// Package main is the producttrack binary: an HTTP server plus a couple of
// offline helpers for working with inventory spreadsheets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/M21ATS/ProductTrack-Pro/internal/ai"
	"github.com/M21ATS/ProductTrack-Pro/internal/config"
	"github.com/M21ATS/ProductTrack-Pro/internal/grid"
	"github.com/M21ATS/ProductTrack-Pro/internal/imagesearch"
	"github.com/M21ATS/ProductTrack-Pro/internal/ingest"
	"github.com/M21ATS/ProductTrack-Pro/internal/metrics"
	"github.com/M21ATS/ProductTrack-Pro/internal/metrics/datadog"
	"github.com/M21ATS/ProductTrack-Pro/internal/server"
	"github.com/M21ATS/ProductTrack-Pro/internal/store"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "github.com/M21ATS/ProductTrack-Pro/internal/store/all"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "producttrack",
		Short: "Inventory spreadsheet viewer",
		Long: `producttrack serves uploaded inventory spreadsheets as a filterable,
groupable grid. Column roles (display name, group-by) are inferred from
headers and data, never declared.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config JSON path (default: built-in standalone config)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newInferCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when given, otherwise the standalone
// default. Validation issues print to stderr; error-severity issues abort.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return config.Config{}, err
		}
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		return config.Config{}, fmt.Errorf("configuration is invalid")
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if validate {
				log.Printf("configuration is valid")
				return nil
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "validate the configuration and exit")
	return cmd
}

func runServe(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics backend: datadog or nop.
	switch cfg.Metrics.Backend {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(cfg.Metrics.Tags)
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    cfg.Job,
			Tags:       extraTags,
			FlushEvery: time.Duration(cfg.Metrics.FlushSeconds) * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=datadog job_name=%v tags=%v", cfg.Job, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	default:
		// metrics disabled; nop backend remains
	}

	st, err := store.New(ctx, store.Config{Kind: cfg.Store.Kind, DSN: cfg.Store.DSN})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	opts := server.Options{
		Store:         st,
		IngestMaxRows: cfg.Ingest.MaxRows,
	}
	if cfg.AI.Endpoint != "" {
		c, err := ai.NewClient(cfg.AI.Endpoint, time.Duration(cfg.AI.TimeoutSeconds)*time.Second)
		if err != nil {
			return fmt.Errorf("ai client: %w", err)
		}
		opts.AI = c
	}
	if cfg.ImageSearch.Endpoint != "" {
		c, err := imagesearch.NewClient(cfg.ImageSearch.Endpoint, 15*time.Second,
			imagesearch.WithMaxResults(cfg.ImageSearch.MaxResults))
		if err != nil {
			return fmt.Errorf("image search client: %w", err)
		}
		opts.Images = c
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (store=%s)", cfg.Listen, cfg.Store.Kind)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newIngestCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "ingest [file.csv|file.xlsx]",
		Short: "Decode a spreadsheet and save it to the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg, args[0], name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "dataset name (default: file base name)")
	return cmd
}

func runIngest(ctx context.Context, cfg config.Config, path, name string) error {
	skipped := 0
	ds, err := ingest.Decode(path, ingest.Options{
		Name:    name,
		MaxRows: cfg.Ingest.MaxRows,
		OnError: func(line int, err error) {
			skipped++
			log.Printf("skipped line %d: %v", line, err)
		},
	})
	if err != nil {
		return err
	}

	st, err := store.New(ctx, store.Config{Kind: cfg.Store.Kind, DSN: cfg.Store.DSN})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if err := st.SaveDataset(ctx, ds); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}

	log.Printf("saved dataset %q: %d rows, %d columns, %d skipped", ds.Name, len(ds.Records), len(ds.Headers), skipped)
	return nil
}

func newInferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer [file.csv|file.xlsx]",
		Short: "Show column inference for a spreadsheet without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(args[0])
		},
	}
	return cmd
}

// runInfer prints the name-column score breakdown, the group-by choice, and
// the resulting tag histogram for a file. Useful when a dataset picks a
// surprising column and you want to see why.
func runInfer(path string) error {
	ds, err := ingest.Decode(path, ingest.Options{})
	if err != nil {
		return err
	}

	scores := grid.ScoreNameColumns(ds.Headers, ds.Records)
	chosen := grid.InferNameColumn(ds.Headers, ds.Records)
	fmt.Print(grid.FormatInferenceReport(scores, chosen))

	groupCol := grid.DefaultGroupColumn(ds.Headers)
	if groupCol == "" {
		fmt.Println("group-by: none (no header matched)")
		return nil
	}

	fmt.Printf("group-by: %s\n", groupCol)
	for _, tag := range grid.DeriveTags(ds.Records, groupCol) {
		fmt.Printf("  %-24s %d\n", tag.Name, tag.Count)
	}
	return nil
}
