package main

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/imageledger/internal/ledger"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type jobView struct {
	ID           int64   `json:"id"`
	Fingerprint  string  `json:"file_hash"`
	Path         string  `json:"original_path"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	ProcessedAt  *string `json:"processed_at,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func newJobView(job *ledger.Job) jobView {
	v := jobView{
		ID:           job.ID,
		Fingerprint:  job.Fingerprint,
		Path:         job.SourcePath,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
		ErrorMessage: job.ErrorMessage,
	}
	if job.ProcessedAt != nil {
		at := job.ProcessedAt.UTC().Format(time.RFC3339)
		v.ProcessedAt = &at
	}
	return v
}

func jobViews(jobs []*ledger.Job) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newJobView(job))
	}
	return views
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rows with a rounded style on terminals and a plain
// ASCII style everywhere else.
func renderTable(w io.Writer, headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if isTerminal(w) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func jobRows(jobs []*ledger.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		processed := "-"
		if job.ProcessedAt != nil {
			processed = job.ProcessedAt.UTC().Format(time.RFC3339)
		}
		errMsg := ""
		if job.ErrorMessage != nil {
			errMsg = *job.ErrorMessage
		}
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			shortenFingerprint(job.Fingerprint),
			string(job.Status),
			processed,
			job.SourcePath,
			errMsg,
		})
	}
	return rows
}

func shortenFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
