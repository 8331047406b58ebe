package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/corpus"
	"github.com/sells-group/catalyst-cli/internal/metrics"
	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/pipeline"
	"github.com/sells-group/catalyst-cli/internal/session"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every catalyst type over the corpus's company-periods",
	Long: "Enumerates company-periods from the corpus (or a plan file), expands each into one " +
		"session per catalyst type, and runs them on a bounded worker pool.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sourceFlag, _ := cmd.Flags().GetString("source")
		tics, _ := cmd.Flags().GetStringSlice("tic")
		planPath, _ := cmd.Flags().GetString("plan")
		limit, _ := cmd.Flags().GetInt("limit")
		typeNames, _ := cmd.Flags().GetStringSlice("type")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		source, err := model.ParseSourceType(sourceFlag)
		if err != nil && planPath == "" {
			return eris.Wrap(err, "batch: --source")
		}
		types, err := parseTypes(typeNames)
		if err != nil {
			return eris.Wrap(err, "batch: --type")
		}

		env, err := initDetect(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		var sessions []*session.Session
		if planPath != "" {
			plan, err := loadPlan(planPath)
			if err != nil {
				return err
			}
			if source, sessions, err = plan.Sessions(source, cfg.Retrieval.TopK); err != nil {
				return err
			}
		} else {
			sessions, err = corpusSessions(ctx, env.Corpus, source, tics, types, cfg.Retrieval.TopK, limit)
			if err != nil {
				return err
			}
		}
		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions to run.")
			return nil
		}

		if metricsAddr != "" {
			stopMetrics := serveMetrics(metricsAddr, env.Metrics)
			defer stopMetrics()
		}

		rep, err := env.Runner.RunBatch(ctx, source, sessions)
		if rep != nil {
			fmt.Fprint(os.Stdout, pipeline.FormatReport(rep))
		}
		if err != nil && errors.Is(err, context.Canceled) {
			return eris.Wrap(err, "batch interrupted")
		}
		return err
	},
}

// corpusSessions enumerates company-periods with evidence and expands each to
// one session per catalyst type. limit caps the company-periods, not sessions.
func corpusSessions(ctx context.Context, c corpus.Sessions, source model.SourceType, tics []string, types []model.CatalystType, topK, limit int) ([]*session.Session, error) {
	periods, err := c.ListPeriods(ctx, source, tics)
	if err != nil {
		return nil, eris.Wrap(err, "batch: list periods")
	}
	if limit > 0 && len(periods) > limit {
		periods = periods[:limit]
	}

	zap.L().Info("batch: enumerated company-periods",
		zap.String("source_type", string(source)),
		zap.Int("company_periods", len(periods)),
	)

	var out []*session.Session
	for _, cp := range periods {
		ss, err := session.ForCompanyPeriod(cp, topK, types)
		if err != nil {
			zap.L().Warn("batch: skipping company-period",
				zap.String("tic", cp.Company.Tic),
				zap.String("period", cp.Period.String()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, ss...)
	}
	return out, nil
}

// serveMetrics exposes the run's collectors while the batch runs.
func serveMetrics(addr string, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Warn("metrics server stopped", zap.Error(err))
		}
	}()
	zap.L().Info("metrics server listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func init() {
	batchCmd.Flags().String("source", "", "source type: news or earnings_transcript")
	batchCmd.Flags().StringSlice("tic", nil, "restrict to these tickers (repeatable)")
	batchCmd.Flags().String("plan", "", "YAML file listing the sessions to run instead of enumerating the corpus")
	batchCmd.Flags().Int("limit", 0, "max company-periods to run (0 = all)")
	batchCmd.Flags().StringSlice("type", nil, "restrict to these catalyst types (default all)")
	batchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running, e.g. :9090")
	rootCmd.AddCommand(batchCmd)
}
