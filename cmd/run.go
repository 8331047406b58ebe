package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/pipeline"
	"github.com/sells-group/catalyst-cli/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Detect catalysts for one company-period",
	Example: "  catalyst-cli run --tic AAPL --source earnings_transcript --year 2025 --quarter 3\n" +
		"  catalyst-cli run --tic MSFT --source news --year 2025 --month 5 --type risk_event",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tic, _ := cmd.Flags().GetString("tic")
		sourceFlag, _ := cmd.Flags().GetString("source")
		year, _ := cmd.Flags().GetInt("year")
		typeNames, _ := cmd.Flags().GetStringSlice("type")

		source, err := model.ParseSourceType(sourceFlag)
		if err != nil {
			return eris.Wrap(err, "run: --source")
		}
		types, err := parseTypes(typeNames)
		if err != nil {
			return eris.Wrap(err, "run: --type")
		}
		period := model.Period{Year: year}
		if cmd.Flags().Changed("quarter") {
			q, _ := cmd.Flags().GetInt("quarter")
			period.Quarter = &q
		}
		if cmd.Flags().Changed("month") {
			m, _ := cmd.Flags().GetInt("month")
			period.Month = &m
		}

		env, err := initDetect(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		company := model.CompanyInfo{Tic: tic}
		profile, err := env.Corpus.Company(ctx, tic)
		switch {
		case err != nil:
			return eris.Wrap(err, "run: load company profile")
		case profile == nil:
			zap.L().Warn("no stock profile for ticker, prompts will carry the ticker only", zap.String("tic", tic))
		default:
			company = *profile
		}

		sessions, err := session.ForCompanyPeriod(model.CompanyPeriod{
			Company:    company,
			SourceType: source,
			Period:     period,
		}, cfg.Retrieval.TopK, types)
		if err != nil {
			return err
		}

		rep, err := env.Runner.RunBatch(ctx, source, sessions)
		if rep != nil {
			fmt.Fprint(os.Stdout, pipeline.FormatReport(rep))
		}
		return err
	},
}

func init() {
	runCmd.Flags().String("tic", "", "company ticker (required)")
	runCmd.Flags().String("source", "", "source type: news or earnings_transcript (required)")
	runCmd.Flags().Int("year", 0, "fiscal year (required)")
	runCmd.Flags().Int("quarter", 0, "fiscal quarter 1-4 (transcripts)")
	runCmd.Flags().Int("month", 0, "calendar month 1-12 (news)")
	runCmd.Flags().StringSlice("type", nil, "catalyst types to run (default all)")
	_ = runCmd.MarkFlagRequired("tic")
	_ = runCmd.MarkFlagRequired("source")
	_ = runCmd.MarkFlagRequired("year")
	runCmd.MarkFlagsMutuallyExclusive("quarter", "month")
	rootCmd.AddCommand(runCmd)
}
