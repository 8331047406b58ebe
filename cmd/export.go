package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/store"
)

const exportPageSize = 500

var (
	masterHeader = []string{
		"catalyst_id", "tic", "catalyst_type", "state", "title", "summary", "evidence",
		"time_horizon", "certainty", "impact_area", "sentiment", "impact_magnitude",
		"date", "mention_count", "event_ids", "created_at", "updated_at",
	}
	versionHeader = []string{
		"catalyst_id", "seq", "event_id", "chunk_id", "tic", "catalyst_type", "state", "title",
		"summary", "evidence", "time_horizon", "certainty", "impact_area", "sentiment",
		"impact_magnitude", "date", "ingestion_batch", "source_type", "source", "url",
		"raw_json_sha256", "updated_at",
	}
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export master catalysts and their versions to an .xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		filter, err := catalystFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openReadStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := exportWorkbook(ctx, st, filter, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d catalysts to %s\n", n, out)
		return nil
	},
}

// exportReader is the store surface the export needs.
type exportReader interface {
	ListCatalysts(ctx context.Context, filter store.CatalystFilter) ([]model.CatalystMaster, error)
	Versions(ctx context.Context, catalystID string) ([]model.CatalystVersion, error)
}

// exportWorkbook writes a "masters" sheet and a "versions" sheet to path and
// returns the number of masters written.
func exportWorkbook(ctx context.Context, st exportReader, filter store.CatalystFilter, path string) (int, error) {
	f := xlsx.NewFile()
	masters, err := f.AddSheet("masters")
	if err != nil {
		return 0, eris.Wrap(err, "export: add masters sheet")
	}
	versions, err := f.AddSheet("versions")
	if err != nil {
		return 0, eris.Wrap(err, "export: add versions sheet")
	}
	addStringRow(masters, masterHeader)
	addStringRow(versions, versionHeader)

	filter.Limit = exportPageSize
	filter.Offset = 0
	total := 0
	for {
		page, err := st.ListCatalysts(ctx, filter)
		if err != nil {
			return total, eris.Wrap(err, "export: list catalysts")
		}
		for _, m := range page {
			addStringRow(masters, masterRow(m))
			vs, err := st.Versions(ctx, m.CatalystID)
			if err != nil {
				return total, eris.Wrapf(err, "export: versions of %s", m.CatalystID)
			}
			for _, v := range vs {
				addStringRow(versions, versionRow(v))
			}
		}
		total += len(page)
		if len(page) < exportPageSize {
			break
		}
		filter.Offset += exportPageSize
	}

	if err := f.Save(path); err != nil {
		return total, eris.Wrapf(err, "export: save %s", path)
	}
	return total, nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func masterRow(m model.CatalystMaster) []string {
	return []string{
		m.CatalystID, m.Tic, string(m.CatalystType), string(m.State), m.Title, m.Summary, m.Evidence,
		horizonCell(m.TimeHorizon), certaintyCell(m.Certainty), impactCell(m.ImpactArea),
		fmt.Sprint(int(m.Sentiment)), fmt.Sprint(int(m.ImpactMagnitude)),
		dateCell(m.Date), fmt.Sprint(m.MentionCount), strings.Join(m.EventIDs, ","),
		m.CreatedAt.UTC().Format(time.RFC3339), m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func versionRow(v model.CatalystVersion) []string {
	url := ""
	if v.URL != nil {
		url = *v.URL
	}
	return []string{
		v.CatalystID, fmt.Sprint(v.Seq), v.EventID, fmt.Sprint(v.ChunkID), v.Tic, string(v.CatalystType),
		string(v.State), v.Title, v.Summary, v.Evidence,
		horizonCell(v.TimeHorizon), certaintyCell(v.Certainty), impactCell(v.ImpactArea),
		fmt.Sprint(int(v.Sentiment)), fmt.Sprint(int(v.ImpactMagnitude)),
		dateCell(v.Date), v.IngestionBatch, string(v.SourceType), v.Source, url,
		v.RawJSONSHA256, v.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func horizonCell(h *model.TimeHorizon) string {
	if h == nil {
		return ""
	}
	return fmt.Sprint(int(*h))
}

func certaintyCell(c *model.Certainty) string {
	if c == nil {
		return ""
	}
	return string(*c)
}

func impactCell(a *model.ImpactArea) string {
	if a == nil {
		return ""
	}
	return string(*a)
}

func dateCell(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format("2006-01-02")
}

func init() {
	exportCmd.Flags().String("out", "catalysts.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
