package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/roster"
)

// formatRunSummary writes one run and its per-person outcomes to out.
func formatRunSummary(out io.Writer, run *model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Trigger:\t%s\n", run.Trigger)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", run.StartedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Duration:\t%.1fs\n", run.DurationSeconds)
	_, _ = fmt.Fprintf(w, "Checked:\t%d\n", run.TotalChecked)
	_, _ = fmt.Fprintf(w, "Changes:\t%d\n", run.ChangesDetected)
	_, _ = fmt.Fprintf(w, "Errors:\t%d\n", run.ErrorCount)
	if run.NotificationFailures > 0 {
		_, _ = fmt.Fprintf(w, "Notification failures:\t%d\n", run.NotificationFailures)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	_ = w.Flush()

	if len(run.Outcomes) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERSON\tRESULT\tCONFIDENCE\tDETAIL")
	_, _ = fmt.Fprintln(w, "------\t------\t----------\t------")
	for _, o := range run.Outcomes {
		result, detail := "unchanged", ""
		switch {
		case o.Failed():
			result, detail = "error", fmt.Sprintf("%s: %s", o.ErrorKind, o.Error)
		case o.Changed:
			result = "changed"
			detail = describePosition(o.Previous)
			if o.Proposed != nil {
				detail += " -> " + describePosition(*o.Proposed)
			}
			if o.NotifyError != "" {
				detail += " (notify failed: " + o.NotifyError + ")"
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", o.PersonName, result, o.Confidence, truncate(detail, 80))
	}
	_ = w.Flush()
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTRIGGER\tSTATUS\tSTARTED\tCHECKED\tCHANGES\tERRORS\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------\t-------\t-------\t------\t--------")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.1fs\n",
			truncateID(r.ID),
			r.Trigger,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.TotalChecked,
			r.ChangesDetected,
			r.ErrorCount,
			r.DurationSeconds,
		)
	}
	_ = w.Flush()
}

// formatPeopleList writes a tabular list of people to w.
func formatPeopleList(out io.Writer, people []model.Person) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCOMPANY\tROLE\tLAST CHECKED")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t----\t------------")
	for _, p := range people {
		checked := "never"
		if p.LastChecked != nil {
			checked = p.LastChecked.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(p.ID),
			truncate(p.Name, 30),
			truncate(p.Current.Company, 30),
			truncate(p.Current.Role, 30),
			checked,
		)
	}
	_ = w.Flush()
}

// formatImportReport writes an import report and any rejected rows to w.
func formatImportReport(out io.Writer, rep roster.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", rep.Source)
	_, _ = fmt.Fprintf(w, "Rows read:\t%d\n", rep.Read)
	_, _ = fmt.Fprintf(w, "Inserted:\t%d\n", rep.Inserted)
	_, _ = fmt.Fprintf(w, "Already tracked:\t%d\n", rep.Existing)
	_, _ = fmt.Fprintf(w, "Invalid:\t%d\n", rep.Invalid)
	for _, p := range rep.Problems {
		_, _ = fmt.Fprintf(w, "  row %d:\t%s\n", p.Row, p.Reason)
	}
	_ = w.Flush()
}

func describePosition(p model.Position) string {
	return fmt.Sprintf("%s at %s", p.Role, p.Company)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-3]) + "..."
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
