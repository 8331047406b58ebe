package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/store"
)

var catalystsCmd = &cobra.Command{
	Use:   "catalysts",
	Short: "Inspect the catalyst registry",
}

// -- catalysts list --

var catalystsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List master catalysts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := catalystFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openReadStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		masters, err := st.ListCatalysts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "catalysts list")
		}
		if len(masters) == 0 {
			fmt.Fprintln(os.Stderr, "No catalysts found.")
			return nil
		}

		formatCatalystList(os.Stdout, masters)
		return nil
	},
}

// -- catalysts show --

// catalystDetail is a master row with its full version history.
type catalystDetail struct {
	Master   *model.CatalystMaster   `json:"master"`
	Versions []model.CatalystVersion `json:"versions"`
}

var catalystsShowCmd = &cobra.Command{
	Use:   "show <catalyst-id>",
	Short: "Show a catalyst and its version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openReadStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, err := st.GetCatalyst(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "catalysts show")
		}
		if m == nil {
			return eris.Errorf("catalysts show: no catalyst %s", args[0])
		}
		versions, err := st.Versions(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "catalysts show: versions")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(catalystDetail{Master: m, Versions: versions})
	},
}

func catalystFilterFromFlags(cmd *cobra.Command) (store.CatalystFilter, error) {
	tic, _ := cmd.Flags().GetString("tic")
	typeName, _ := cmd.Flags().GetString("type")
	state, _ := cmd.Flags().GetString("state")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := store.CatalystFilter{
		Tic:   strings.ToUpper(tic),
		State: model.LifecycleState(state),
		Limit: limit,
	}
	if typeName != "" {
		t, err := model.ParseCatalystType(typeName)
		if err != nil {
			return filter, eris.Wrap(err, "--type")
		}
		filter.CatalystType = t
	}
	if state != "" && !filter.State.Valid() {
		return filter, eris.Errorf("--state: unknown lifecycle state %q", state)
	}
	return filter, nil
}

// formatCatalystList writes a tabular list of masters to out.
func formatCatalystList(out io.Writer, masters []model.CatalystMaster) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTIC\tTYPE\tSTATE\tMENTIONS\tUPDATED\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t---\t----\t-----\t--------\t-------\t-----")

	for _, m := range masters {
		title := m.Title
		if r := []rune(title); len(r) > 60 {
			title = string(r[:57]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(m.CatalystID),
			m.Tic,
			m.CatalystType,
			m.State,
			m.MentionCount,
			m.UpdatedAt.Format("2006-01-02 15:04"),
			title,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	for _, c := range []*cobra.Command{catalystsListCmd, exportCmd} {
		c.Flags().String("tic", "", "filter by ticker")
		c.Flags().String("type", "", "filter by catalyst type")
		c.Flags().String("state", "", "filter by lifecycle state")
	}
	catalystsListCmd.Flags().Int("limit", 100, "max number of catalysts to display")

	catalystsCmd.AddCommand(catalystsListCmd)
	catalystsCmd.AddCommand(catalystsShowCmd)
	rootCmd.AddCommand(catalystsCmd)
}
