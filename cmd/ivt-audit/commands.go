package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/radiusdt/ivt-audit/internal/export"
	"github.com/radiusdt/ivt-audit/internal/httpserver"
	"github.com/radiusdt/ivt-audit/internal/reporting"
	"github.com/radiusdt/ivt-audit/internal/roi"
	"github.com/radiusdt/ivt-audit/internal/storage"
	"go.uber.org/zap"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"serve":  runServe,
	"import": runImport,
	"report": runReport,
	"export": runExport,
	"roi":    runROI,
	"verify": runVerify,
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	load := fs.String("load", "", "CSV file to import before serving")
	fs.Parse(args)

	if err := a.preload(ctx, *load); err != nil {
		return err
	}

	handler := httpserver.NewServer(&httpserver.Dependencies{
		Reporting:    a.reporting(),
		Config:       a.cfg,
		Logger:       a.logger,
		Metrics:      a.metrics,
		HealthChecks: a.health,
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening",
			zap.String("addr", *addr),
			zap.String("env", a.cfg.Server.Env),
			zap.String("backend", a.cfg.Store.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
	}

	a.logger.Info("server stopped")
	return nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "vendor CSV export to load (required)")
	fs.Parse(args)

	if *file == "" {
		fs.Usage()
		return errors.New("-file is required")
	}

	if err := a.ensureSchema(ctx); err != nil {
		return err
	}

	res, err := a.importer().ImportFile(ctx, *file)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d events (%d invalid, %d ASNs filled) in %s, batch %s\n",
		res.Rows, res.Invalid, res.Enriched, res.Duration.Round(time.Millisecond), res.BatchID)
	return nil
}

func runReport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	view := fs.String("view", "", "print only this view")
	csvPath := fs.String("csv", "", "write the selected view to this CSV file")
	top := fs.Int("top", a.cfg.Analysis.TopN, "rows shown for the funnel and threats rankings, 0 for all")
	load := fs.String("load", "", "CSV file to import first")
	fs.Parse(args)

	if *view != "" && !reporting.IsView(*view) {
		return fmt.Errorf("%w: %q (one of %s)", reporting.ErrUnknownView, *view, strings.Join(reporting.Views, ", "))
	}
	if *csvPath != "" && (*view == "" || *view == reporting.ViewSummary) {
		return errors.New("-csv needs a tabular -view")
	}

	if err := a.preload(ctx, *load); err != nil {
		return err
	}

	report, err := a.reporting().Report(ctx)
	if err != nil {
		return err
	}

	if *csvPath != "" {
		for _, t := range export.Tables(report) {
			if t.View == *view {
				if err := export.WriteFile(*csvPath, t); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", *csvPath)
				return nil
			}
		}
	}

	return writeReport(os.Stdout, report, *view, *top)
}

// writeReport prints view, or every view when view is empty.
func writeReport(w io.Writer, report *reporting.Report, view string, top int) error {
	for _, t := range export.Tables(report) {
		if view != "" && t.View != view {
			continue
		}
		if err := export.WriteText(w, t, rowLimit(t.View, top)); err != nil {
			return err
		}
	}
	if view == "" || view == reporting.ViewSummary {
		printSummary(w, report.Summary)
	}
	return nil
}

// rowLimit returns how many rows of view are printed. Only the rankings are
// cut to top; the other views are complete breakdowns.
func rowLimit(view string, top int) int {
	switch view {
	case reporting.ViewFunnel, reporting.ViewThreats:
		return top
	}
	return 0
}

func printSummary(w io.Writer, s reporting.Summary) {
	fmt.Fprintf(w, "\nSummary\n=======\n")
	fmt.Fprintf(w, "Events analysed:      %d\n", s.Overall.Total)
	fmt.Fprintf(w, "Invalid traffic:      %d (%.2f%%)\n", s.Overall.Invalid, s.Overall.InvalidPct)
	if s.TopThreatASN != nil {
		fmt.Fprintf(w, "Top threat ASN:       %s (%d invalid)\n", s.TopThreatASN.Key, s.TopThreatASN.Invalid)
	}
	if s.TopAutomationTool != nil {
		fmt.Fprintf(w, "Top automation tool:  %s (%d invalid)\n", s.TopAutomationTool.Key, s.TopAutomationTool.Invalid)
	}
	if s.PeakAttackHour != nil {
		fmt.Fprintf(w, "Peak attack hour:     %02d:00 (%d invalid)\n", s.PeakAttackHour.Key, s.PeakAttackHour.Invalid)
	}
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dir := fs.String("dir", "outputs", "output directory")
	load := fs.String("load", "", "CSV file to import first")
	fs.Parse(args)

	if err := a.preload(ctx, *load); err != nil {
		return err
	}

	report, err := a.reporting().Report(ctx)
	if err != nil {
		return err
	}

	paths, err := export.WriteDir(*dir, export.Tables(report))
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	a.logger.Info("report exported", zap.String("dir", *dir), zap.Int("files", len(paths)))
	return nil
}

func runROI(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("roi", flag.ExitOnError)
	googleCPC := fs.String("google-cpc", defaultAmount(a.cfg.ROI.GoogleCPC), "average Google Ads cost per click")
	bingCPC := fs.String("bing-cpc", defaultAmount(a.cfg.ROI.BingCPC), "average Microsoft Ads cost per click")
	monthlyCost := fs.String("monthly-cost", defaultAmount(a.cfg.ROI.MonthlyCost), "monthly cost of the protection product")
	trialDays := fs.String("trial-days", strconv.Itoa(a.cfg.ROI.TrialDays), "days of traffic in the dataset")
	out := fs.String("out", "", "write the ROI table to this CSV file")
	load := fs.String("load", "", "CSV file to import first")
	fs.Parse(args)

	in, err := roi.ParseInputs(*googleCPC, *bingCPC, *monthlyCost, *trialDays)
	if errors.Is(err, roi.ErrInvalidInput) && isTerminal(os.Stdin) {
		in, err = promptInputs(bufio.NewReader(os.Stdin), os.Stdout, *trialDays)
	}
	if err != nil {
		return err
	}

	if err := a.preload(ctx, *load); err != nil {
		return err
	}

	analysis, err := a.reporting().ROI(ctx, in)
	if err != nil {
		return err
	}

	table := export.ROITable(analysis)
	if err := export.WriteText(os.Stdout, table, 0); err != nil {
		return err
	}
	fmt.Printf("\nRecommendation: %s\n", analysis.Recommendation)

	if *out != "" {
		if err := export.WriteFile(*out, table); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", *out)
	}
	return nil
}

func defaultAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}

// promptInputs asks for the prices until they parse. It gives up when the
// input ends.
func promptInputs(r *bufio.Reader, w io.Writer, trialDays string) (roi.Inputs, error) {
	ask := func(label string) (string, error) {
		fmt.Fprintf(w, "%s: ", label)
		line, err := r.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	for {
		g, err := ask("Average Google Ads CPC ($)")
		if err != nil {
			return roi.Inputs{}, err
		}
		b, err := ask("Average Microsoft Ads CPC ($)")
		if err != nil {
			return roi.Inputs{}, err
		}
		m, err := ask("Monthly product cost ($)")
		if err != nil {
			return roi.Inputs{}, err
		}

		in, err := roi.ParseInputs(g, b, m, trialDays)
		if err == nil {
			return in, nil
		}
		if !errors.Is(err, roi.ErrInvalidInput) {
			return roi.Inputs{}, err
		}
		fmt.Fprintf(w, "%v, try again\n", err)
	}
}

func runVerify(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Parse(args)

	sv, ok := a.store.(storage.SchemaVerifier)
	if !ok {
		fmt.Printf("%s backend has no table schema to verify\n", a.cfg.Store.Backend)
		return nil
	}
	if err := sv.VerifySchema(ctx); err != nil {
		return err
	}

	n, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("table %s: schema ok, %d events\n", a.cfg.Store.Table, n)
	return nil
}
