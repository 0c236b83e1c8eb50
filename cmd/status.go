package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/store"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the extract log, archived extracts and table row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		objects, err := initObjects(ctx)
		if err != nil {
			return err
		}

		report, err := buildStatus(ctx, st)
		if err != nil {
			return err
		}
		pattern, err := regexp.Compile(cfg.Source.Pattern)
		if err != nil {
			return eris.Wrap(err, "status: compile source pattern")
		}
		if err := addArchived(ctx, report, objects, objectLayout(), pattern); err != nil {
			return err
		}
		return writeStatus(os.Stdout, report, statusFormat)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(statusCmd)
}

type tableCount struct {
	Table string `json:"table" yaml:"table"`
	Rows  int64  `json:"rows" yaml:"rows"`
}

type archivedExtract struct {
	Name     string `json:"name" yaml:"name"`
	Replayed bool   `json:"replayed" yaml:"replayed"`
}

type statusReport struct {
	Extracts []store.ExtractEntry `json:"extracts" yaml:"extracts"`
	Archived []archivedExtract    `json:"archived,omitempty" yaml:"archived,omitempty"`
	Tables   []tableCount         `json:"tables" yaml:"tables"`
}

func buildStatus(ctx context.Context, st store.Store) (*statusReport, error) {
	entries, err := st.ListExtracts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "status: list extracts")
	}
	report := &statusReport{Extracts: entries}
	for _, t := range oca.ExportTables() {
		n, err := st.CountRows(ctx, t.Name)
		if err != nil {
			return nil, eris.Wrapf(err, "status: count %s", t.Name)
		}
		report.Tables = append(report.Tables, tableCount{Table: t.Name, Rows: n})
	}
	return report, nil
}

// addArchived lists the extract archives kept under the private prefix and
// marks those with a completed log entry.
func addArchived(ctx context.Context, report *statusReport, objects objstore.Store, layout objstore.Layout, pattern *regexp.Regexp) error {
	names, err := objstore.ListNames(ctx, objects, layout.Private, pattern)
	if err != nil {
		return eris.Wrap(err, "status: list archived extracts")
	}
	done := make(map[string]bool, len(report.Extracts))
	for _, e := range report.Extracts {
		if e.Status == store.StatusComplete {
			done[e.Name] = true
		}
	}
	for _, n := range names {
		report.Archived = append(report.Archived, archivedExtract{Name: n, Replayed: done[n]})
	}
	return nil
}

func writeStatus(out io.Writer, report *statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(report), "status: encode json")
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "status: encode yaml")
		}
		return eris.Wrap(enc.Close(), "status: encode yaml")
	case "table", "":
		formatExtracts(out, report.Extracts)
		_, _ = fmt.Fprintln(out)
		if len(report.Archived) > 0 {
			formatArchived(out, report.Archived)
			_, _ = fmt.Fprintln(out)
		}
		formatTableCounts(out, report.Tables)
		return nil
	default:
		return eris.Errorf("status: unknown format %q", format)
	}
}

// formatExtracts writes a tabular representation of the extract log to w.
func formatExtracts(out io.Writer, entries []store.ExtractEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEXTRACT\tKIND\tDATE\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t----\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.Name,
			e.Kind,
			e.ExtractDate.Format("2006-01-02"),
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsSynced,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

func formatArchived(out io.Writer, archived []archivedExtract) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ARCHIVED\tREPLAYED")
	for _, a := range archived {
		replayed := "no"
		if a.Replayed {
			replayed = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", a.Name, replayed)
	}
	_ = w.Flush()
}

func formatTableCounts(out io.Writer, counts []tableCount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS")
	for _, c := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", c.Table, c.Rows)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
