// Command km-export writes the PDF document of one month to a file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kilometers/internal/backend"
	"kilometers/internal/cli"
	"kilometers/internal/core"
	"kilometers/internal/invoicepdf"
	"kilometers/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	now := time.Now()
	monthFlag := flag.String("month", string(core.MonthKeyOf(now)), "month to export (YYYY-MM)")
	outFlag := flag.String("out", "", "output file (default: generated name in the current directory)")
	sortFlag := flag.String("sort", string(core.SortAsc), "entry order: asc or desc")
	flag.Parse()

	month, _, _, err := core.ParseMonthKey(*monthFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -month %q: expected YYYY-MM\n", *monthFlag)
		os.Exit(2)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	// One-shot export never publishes.
	backendCfg.AMQPURL = ""

	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	defer func() {
		if res.Cleanup != nil {
			_ = res.Cleanup()
		}
	}()

	out := *outFlag
	if out == "" {
		out = invoicepdf.FileName(month, now)
	}

	if err := export(context.Background(), services.NewReportService(res.Backend, res.Backend), month, core.ParseSortOrder(*sortFlag), out); err != nil {
		if errors.Is(err, invoicepdf.ErrNoEntries) {
			fmt.Fprintf(os.Stderr, "no entries for %s\n", month.Label())
			os.Exit(3)
		}
		logger.Error("Export failed", "error", err, "month", month)
		os.Exit(1)
	}

	abs, _ := filepath.Abs(out)
	logger.Info("Month exported", "month", month, "path", abs)
}

// export renders into a temporary file next to out and renames it into place.
func export(ctx context.Context, reports *services.ReportService, month core.MonthKey, order core.SortOrder, out string) error {
	tmp, err := os.CreateTemp(filepath.Dir(out), ".km-export-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := reports.RenderPDF(ctx, tmp, month, order); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), out)
}
