// Command medinet serves the spreadsheet upload and record search API.
//
// Configuration comes from an optional JSON file (-config), overlaid with
// environment variables and flags:
//
//	medinet -storage sqlite -dsn 'file:medinet.db' -addr :5000
//	medinet -config configs/medinet.json -validate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amirmursal/medinet-process-data/internal/api"
	"github.com/amirmursal/medinet-process-data/internal/config"
	"github.com/amirmursal/medinet-process-data/internal/ingest"
	"github.com/amirmursal/medinet-process-data/internal/metrics"
	"github.com/amirmursal/medinet-process-data/internal/metrics/datadog"
	"github.com/amirmursal/medinet-process-data/internal/metrics/prompush"
	"github.com/amirmursal/medinet-process-data/internal/storage"

	// register all backends with the storage factory.
	_ "github.com/amirmursal/medinet-process-data/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Getenv, os.Stderr); err != nil {
		log.Fatalf("medinet: %v", err)
	}
}

// run loads configuration, opens the store and serves until ctx is done.
func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) error {
	fs := flag.NewFlagSet("medinet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags, err := config.LoadFromArgs(fs, getenv, args)
	if err != nil {
		return err
	}

	app := config.Default()
	if flags.ConfigPath != "" {
		if app, err = config.Load(flags.ConfigPath); err != nil {
			return err
		}
	}
	flags.Apply(&app)

	issues := config.ValidateApp(app)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errors.New("configuration is invalid")
	}
	if flags.Validate {
		log.Printf("configuration is valid")
		return nil
	}

	setupMetrics(app, flags.Verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	scfg := storage.Config{
		Kind:       app.Storage.Kind,
		DSN:        app.Storage.DSN,
		Collection: app.Storage.Collection,
		Options:    app.Storage.Options,
	}
	repo, err := storage.New(ctx, scfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	if app.Storage.AutoCreate && storage.HasDDL(scfg.Kind) {
		log.Printf("storage: auto-create enabled kind=%s collection=%s", scfg.Kind, scfg.Collection)
		if err := storage.EnsureSchema(ctx, scfg, repo); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	pipeline := ingest.New(repo, app.Job)
	pipeline.Verbose = flags.Verbose

	srv := api.NewServer(api.Config{
		Addr:        app.Server.Addr,
		UploadDir:   app.Server.UploadDir,
		MaxUploadMB: app.Server.MaxUploadMB,
		Fields:      app.Query.Fields,
		Job:         app.Job,
	}, repo, pipeline).HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("http: listening addr=%s storage=%s", srv.Addr, scfg.Kind)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// setupMetrics installs the configured backend; failures fall back to nop.
func setupMetrics(app config.App, verbose bool) {
	switch app.Metrics.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(app.Job, app.Metrics.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", app.Metrics.PushgatewayURL, app.Metrics.Backend, app.Job)
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       app.Metrics.DatadogAddr,
			Namespace:  "medinet.",
			GlobalTags: []string{"job:" + app.Job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: addr=%v, backend=%v", app.Metrics.DatadogAddr, app.Metrics.Backend)
		metrics.SetBackend(b)
	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", app.Metrics.Backend)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", app.Metrics.Backend)
	}
}
