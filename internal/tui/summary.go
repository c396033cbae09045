package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vvka-141/tripmerge/internal/feed"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// RenderSummary renders one line per batch followed by the totals.
func RenderSummary(s tripmerge.Summary, term Terminal) string {
	t := &table{header: []string{"BATCH", "STATE", "LOADED", "MERGED", "TIME", "DETAIL"}}
	for _, r := range s.Results {
		state, style := string(r.State), StateStyle(r.State, s.Mode)
		detail := r.ObjectKey
		if r.Failed() {
			state = "failed@" + string(r.FailedStage)
			detail = r.Reason
		} else if r.SchemaSource == tripmerge.SchemaAutodetect {
			detail += " (autodetected schema)"
		}
		t.add(style,
			r.Key.String(),
			state,
			strconv.FormatInt(r.RowsLoaded, 10),
			strconv.FormatInt(r.RowsMerged, 10),
			r.Duration.Round(time.Millisecond).String(),
			detail,
		)
	}

	failed := s.Count(tripmerge.StateFailed)
	totals := fmt.Sprintf("%d batches, %d succeeded, %d failed, %d rows merged in %v (mode %s)",
		len(s.Results), s.Succeeded(), failed, s.RowsMerged(), s.Duration.Round(time.Millisecond), s.Mode)

	if !term.Styled {
		return t.render(term) + totals + "\n"
	}
	mark := SuccessStyle.Render(SymbolCheck)
	if failed > 0 {
		mark = PartialStyle.Render(SymbolCross)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("Load summary"),
		t.render(term),
		mark+" "+totals,
	) + "\n"
}

// RenderDownloads renders one line per downloaded feed file.
func RenderDownloads(results []feed.DownloadResult, term Terminal) string {
	t := &table{header: []string{"BATCH", "STATUS", "BYTES", "DETAIL"}}
	counts := map[feed.Status]int{}
	for _, r := range results {
		counts[r.Status]++
		detail := r.Path
		if r.Status == feed.StatusFailed && r.Err != nil {
			detail = r.Err.Error()
		}
		t.add(DownloadStyle(r.Status), r.Key.String(), string(r.Status), strconv.FormatInt(r.Bytes, 10), detail)
	}
	totals := fmt.Sprintf("%d downloaded, %d skipped, %d failed",
		counts[feed.StatusDownloaded], counts[feed.StatusSkipped], counts[feed.StatusFailed])
	return t.render(term) + totals + "\n"
}

// Report is the content of the report command.
type Report struct {
	Dataset  string
	Masters  []tripmerge.MasterStats
	Query    *tripmerge.QueryResult
	Estimate *tripmerge.QueryEstimate
}

// RenderReport renders master statistics and optional query output.
func RenderReport(r Report, term Terminal) string {
	var sections []string

	t := &table{header: []string{"MASTER", "ROWS", "DISTINCT", "DUPLICATES"}}
	for _, m := range r.Masters {
		dup := m.Rows - m.DistinctIdentities
		style := SuccessStyle
		if dup != 0 {
			style = ErrorStyle
		}
		t.add(style, m.Table, strconv.FormatInt(m.Rows, 10), strconv.FormatInt(m.DistinctIdentities, 10), strconv.FormatInt(dup, 10))
	}
	if len(r.Masters) == 0 {
		sections = append(sections, fmt.Sprintf("No master relations in %s", r.Dataset))
	} else {
		sections = append(sections, t.render(term))
	}

	if r.Estimate != nil {
		sections = append(sections, fmt.Sprintf("Estimate: ~%d rows, ~%s scanned", r.Estimate.Rows, humanBytes(r.Estimate.Bytes)))
	}
	if r.Query != nil {
		q := &table{header: r.Query.Columns}
		for _, row := range r.Query.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = formatValue(v)
			}
			q.add(lipgloss.NewStyle(), cells...)
		}
		sections = append(sections, q.render(term)+fmt.Sprintf("(%d rows)", len(r.Query.Rows)))
	}

	out := strings.Join(sections, "\n")
	if term.Styled {
		out = lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render("Dataset "+r.Dataset), BoxStyle.Render(strings.TrimRight(out, "\n")))
	}
	return strings.TrimRight(out, "\n") + "\n"
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.Format(tripmerge.TimestampLayout)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
