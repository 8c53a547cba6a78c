package verify

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	json "github.com/json-iterator/go"
	"github.com/samber/lo"

	"github.com/hemantobora/cloudcheck/internal/models"
	"github.com/hemantobora/cloudcheck/internal/ui"
)

// Report is the ordered list of check results of one run
type Report struct {
	Account *models.AccountInfo `json:"account,omitempty"`
	Results []Result            `json:"results"`
}

// Failed reports whether any check did not pass
func (r Report) Failed() bool {
	return lo.SomeBy(r.Results, func(res Result) bool { return res.Status != StatusPass })
}

// Counts returns the number of results per status
func (r Report) Counts() map[Status]int {
	return lo.CountValuesBy(r.Results, func(res Result) Status { return res.Status })
}

// WriteTable renders the report as a table followed by a summary line.
// Statuses are colored only when w is a terminal.
func (r Report) WriteTable(w io.Writer) error {
	color := ui.IsTerminal(w)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = true
	t.AppendHeader(table.Row{"Suite", "Check", "Status", "Description", "Details", "Time"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 5, WidthMax: 80},
	})
	for _, res := range r.Results {
		status := string(res.Status)
		if color {
			status = statusColors(res.Status).Sprint(status)
		}
		t.AppendRow(table.Row{
			res.Suite,
			res.ID,
			status,
			res.Description,
			res.Message,
			res.Duration.Round(time.Millisecond),
		})
	}
	if r.Account != nil {
		t.SetCaption("account %s (%s) in %s", r.Account.AccountID, r.Account.ARN, r.Account.Region)
	}
	t.Render()

	counts := r.Counts()
	_, err := fmt.Fprintf(w, "%d passed, %d failed, %d errored\n",
		counts[StatusPass], counts[StatusFail], counts[StatusError])
	return err
}

// WriteJSON renders the report as indented JSON
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func statusColors(s Status) text.Colors {
	switch s {
	case StatusPass:
		return text.Colors{text.FgGreen}
	case StatusFail:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgYellow}
	}
}
