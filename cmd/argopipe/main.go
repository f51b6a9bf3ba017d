// Command argopipe ingests ARGO profile files and writes validated,
// analysis-ready artifacts: an observation table, a profile-summary table, a
// quality report, and a processing log per input file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftline/argopipe/internal/config"
	"github.com/driftline/argopipe/internal/domain/qc"
	"github.com/driftline/argopipe/internal/orchestrator"
	"github.com/driftline/argopipe/internal/pipeline/export"
	"github.com/driftline/argopipe/pkg/logger"
	"github.com/driftline/argopipe/pkg/metrics"
)

const metricsReadHeaderTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	in := flag.String("in", "", "input profile file, or directory with -batch")
	out := flag.String("out", "", "output directory for artifacts")
	batch := flag.Bool("batch", false, "process every .nc file under the input directory")
	workers := flag.Int("workers", 0, "max concurrent files in batch mode (default: config)")
	skipValidation := flag.Bool("skip-validation", false, "skip the validation stage")
	continueOnFail := flag.Bool("continue-on-fail", false, "continue past a fail verdict")
	format := flag.String("format", "", "observation table format: csv or arrow (default: config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: config)")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 2
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 2
	}

	// Flags override file/env configuration.
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *format != "" {
		cfg.Format = *format
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *skipValidation {
		cfg.SkipValidation = true
	}
	if *continueOnFail {
		cfg.ContinueOnFail = true
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if *in == "" || *out == "" {
		os.Stderr.WriteString("usage: argopipe -in <file|dir> -out <dir> [-batch] [flags]\n")
		flag.PrintDefaults()
		return 2
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, log, cfg.MetricsAddr)
	}

	orch := orchestrator.New(*out,
		orchestrator.WithWorkers(cfg.Workers),
		orchestrator.WithFormat(export.Format(cfg.Format)),
		orchestrator.WithSkipValidation(cfg.SkipValidation),
		orchestrator.WithContinueOnFail(cfg.ContinueOnFail),
		orchestrator.WithPolicy(policyFromConfig(cfg)),
	)

	if !*batch {
		result := orch.ProcessFile(ctx, *in)
		printFileResult(result)
		if result.State != orchestrator.StateDone {
			return 1
		}
		return 0
	}

	paths, err := collectProfiles(*in)
	if err != nil {
		os.Stderr.WriteString("failed to list input directory: " + err.Error() + "\n")
		return 2
	}
	if len(paths) == 0 {
		os.Stderr.WriteString("no .nc files found under " + *in + "\n")
		return 2
	}

	report := orch.ProcessBatch(ctx, paths)
	printBatchReport(report)
	if !report.AllDone() {
		return 1
	}
	return 0
}

func policyFromConfig(cfg *config.Config) *qc.Policy {
	accepted := make([]uint8, 0, len(cfg.AcceptedFlags))
	for _, f := range cfg.AcceptedFlags {
		accepted = append(accepted, uint8(f))
	}
	rejected := make([]uint8, 0, len(cfg.RejectedFlags))
	for _, f := range cfg.RejectedFlags {
		rejected = append(rejected, uint8(f))
	}
	return qc.NewPolicy(
		qc.WithAcceptedNumeric(accepted...),
		qc.WithRejectedNumeric(rejected...),
		qc.WithIncludeReview(cfg.IncludeReview),
	)
}

func collectProfiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".nc") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func printFileResult(r orchestrator.FileResult) {
	if r.State == orchestrator.StateDone {
		fmt.Printf("%s: done (verdict %s)\n", r.Path, r.Verdict)
		return
	}
	fmt.Printf("%s: %s at stage %s: %s\n", r.Path, r.State, r.FailedStage, r.Reason)
}

func printBatchReport(report *orchestrator.BatchReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATE\tSTAGE\tREASON")
	for _, r := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Path, r.State, r.FailedStage, r.Reason)
	}
	w.Flush()
	fmt.Printf("\nrun %s: %d/%d done in %s\n", report.RunID, report.Done, len(report.Results), report.Duration.Round(time.Millisecond))
}

func serveMetrics(ctx context.Context, log logger.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info(ctx, "metrics listener started", logger.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn(ctx, "metrics listener failed", logger.Error(err))
	}
}
