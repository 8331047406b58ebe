package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/session"
)

// SessionError is one tallied failure.
type SessionError struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// ErrorTally keeps the first Limit messages and a count per kind.
type ErrorTally struct {
	Limit    int                     `json:"-"`
	Counts   map[model.ErrorKind]int `json:"counts,omitempty"`
	Messages []SessionError          `json:"messages,omitempty"`
	Dropped  int                     `json:"dropped,omitempty"`
}

func newErrorTally(limit int) ErrorTally {
	return ErrorTally{Limit: limit, Counts: make(map[model.ErrorKind]int)}
}

// Add counts one error, keeping its message while under the limit.
func (t *ErrorTally) Add(kind model.ErrorKind, msg string) {
	if kind == "" {
		kind = "unknown"
	}
	if t.Counts == nil {
		t.Counts = make(map[model.ErrorKind]int)
	}
	t.Counts[kind]++
	if len(t.Messages) < t.Limit {
		t.Messages = append(t.Messages, SessionError{Kind: kind, Message: msg})
		return
	}
	t.Dropped++
}

// Merge folds another tally into t.
func (t *ErrorTally) Merge(o ErrorTally) {
	if t.Counts == nil {
		t.Counts = make(map[model.ErrorKind]int)
	}
	for k, n := range o.Counts {
		t.Counts[k] += n
	}
	for _, m := range o.Messages {
		if len(t.Messages) < t.Limit {
			t.Messages = append(t.Messages, m)
		} else {
			t.Dropped++
		}
	}
	t.Dropped += o.Dropped
}

// Total is the number of errors counted.
func (t ErrorTally) Total() int {
	n := 0
	for _, c := range t.Counts {
		n += c
	}
	return n
}

// SessionResult summarizes one session.
type SessionResult struct {
	Key           string             `json:"key"`
	Tic           string             `json:"tic"`
	CatalystType  model.CatalystType `json:"catalyst_type"`
	SourceType    model.SourceType   `json:"source_type"`
	Period        string             `json:"period"`
	Retrieved     int                `json:"retrieved"`
	Stage1Passed  int                `json:"stage1_passed"`
	Stage1Failed  int                `json:"stage1_failed"`
	Fallbacks     int                `json:"fallbacks"`
	New           int                `json:"new"`
	Updated       int                `json:"updated"`
	Orphaned      int                `json:"orphaned"`
	Duplicates    int                `json:"duplicates"`
	MasterUpdated int                `json:"master_updated"`
	Failed        bool               `json:"failed"`
	Errors        ErrorTally         `json:"errors"`
	Usage         model.TokenUsage   `json:"usage"`
	Duration      time.Duration      `json:"duration"`

	states map[string]int
}

func newSessionResult(s *session.Session, errorLimit int) *SessionResult {
	return &SessionResult{
		Key:          s.Key(),
		Tic:          s.Query.Tic,
		CatalystType: s.Query.CatalystType,
		SourceType:   s.Query.SourceType,
		Period:       s.Query.Period.String(),
		Errors:       newErrorTally(errorLimit),
		states:       make(map[string]int),
	}
}

func (r *SessionResult) addError(kind model.ErrorKind, msg string) {
	r.Errors.Add(kind, r.Key+": "+msg)
}

// ReportRow aggregates sessions for one (tic, catalyst_type).
type ReportRow struct {
	Tic           string             `json:"tic"`
	CatalystType  model.CatalystType `json:"catalyst_type"`
	Sessions      int                `json:"sessions"`
	Failed        int                `json:"failed"`
	Retrieved     int                `json:"retrieved"`
	Stage1Passed  int                `json:"stage1_passed"`
	New           int                `json:"new"`
	Updated       int                `json:"updated"`
	Orphaned      int                `json:"orphaned"`
	MasterUpdated int                `json:"master_updated"`
	Errors        int                `json:"errors"`
}

func (r *ReportRow) add(s *SessionResult) {
	r.Sessions++
	if s.Failed {
		r.Failed++
	}
	r.Retrieved += s.Retrieved
	r.Stage1Passed += s.Stage1Passed
	r.New += s.New
	r.Updated += s.Updated
	r.Orphaned += s.Orphaned
	r.MasterUpdated += s.MasterUpdated
	r.Errors += s.Errors.Total()
}

// Report is the outcome of a batch.
type Report struct {
	RunID      string           `json:"run_id,omitempty"`
	SourceType model.SourceType `json:"source_type,omitempty"`
	Sessions   int              `json:"sessions"`
	Completed  int              `json:"completed"`
	Rows       []ReportRow      `json:"rows"`
	Totals     ReportRow        `json:"totals"`
	Errors     ErrorTally       `json:"errors"`
	Usage      model.TokenUsage `json:"usage"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// BuildReport aggregates session results. nil entries are sessions that never
// ran, e.g. after cancellation.
func BuildReport(results []*SessionResult, errorLimit int) *Report {
	rep := &Report{Sessions: len(results), Errors: newErrorTally(errorLimit)}
	rows := make(map[string]*ReportRow)

	for _, r := range results {
		if r == nil {
			continue
		}
		rep.Completed++
		key := r.Tic + "/" + string(r.CatalystType)
		row, ok := rows[key]
		if !ok {
			row = &ReportRow{Tic: r.Tic, CatalystType: r.CatalystType}
			rows[key] = row
		}
		row.add(r)
		rep.Totals.add(r)
		rep.Errors.Merge(r.Errors)
		rep.Usage.Add(r.Usage)
	}

	for _, row := range rows {
		rep.Rows = append(rep.Rows, *row)
	}
	sort.Slice(rep.Rows, func(i, j int) bool {
		if rep.Rows[i].Tic != rep.Rows[j].Tic {
			return rep.Rows[i].Tic < rep.Rows[j].Tic
		}
		return rep.Rows[i].CatalystType < rep.Rows[j].CatalystType
	})
	return rep
}

// FormatReport renders the report as a plain-text table.
func FormatReport(rep *Report) string {
	var b strings.Builder

	b.WriteString("# Catalyst Run Report")
	if rep.RunID != "" {
		fmt.Fprintf(&b, ": %s", rep.RunID)
	}
	b.WriteString("\n\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIC\tTYPE\tSESSIONS\tRETRIEVED\tPASSED\tNEW\tUPDATED\tORPHANED\tMASTER\tERRORS")
	for _, r := range rep.Rows {
		writeRow(tw, r.Tic, r)
	}
	writeRow(tw, "TOTAL", rep.Totals)
	tw.Flush() //nolint:errcheck

	b.WriteString("\n## Summary\n")
	fmt.Fprintf(&b, "- Sessions: %d/%d completed, %d failed\n", rep.Completed, rep.Sessions, rep.Totals.Failed)
	fmt.Fprintf(&b, "- Token usage: %d input, %d output, %d cache read, %d embedding\n",
		rep.Usage.InputTokens, rep.Usage.OutputTokens, rep.Usage.CacheReadTokens, rep.Usage.EmbeddingTokens)
	fmt.Fprintf(&b, "- Estimated cost: $%.4f\n", rep.Usage.Cost)
	fmt.Fprintf(&b, "- Elapsed: %s\n", rep.Elapsed.Round(time.Millisecond))

	if total := rep.Errors.Total(); total > 0 {
		b.WriteString("\n## Errors\n")
		kinds := make([]string, 0, len(rep.Errors.Counts))
		for k := range rep.Errors.Counts {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", k, rep.Errors.Counts[model.ErrorKind(k)])
		}
		for _, m := range rep.Errors.Messages {
			fmt.Fprintf(&b, "  [%s] %s\n", m.Kind, m.Message)
		}
		if rep.Errors.Dropped > 0 {
			fmt.Fprintf(&b, "  ... and %d more\n", rep.Errors.Dropped)
		}
	}

	return b.String()
}

func writeRow(w io.Writer, label string, r ReportRow) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		label, r.CatalystType, r.Sessions, r.Retrieved, r.Stage1Passed,
		r.New, r.Updated, r.Orphaned, r.MasterUpdated, r.Errors)
}
