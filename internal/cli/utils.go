// Package cli provides output helpers for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const sourcePreviewLen = 160

// ParseFormat maps a -format flag value to an OutputFormat. Unknown values mean text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(s, string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer to w. In text format, sources are listed below the
// answer when showSources is set.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat, showSources bool) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintf(w, "%s\n", strings.TrimSpace(ans.Text))
	if !showSources || len(ans.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\n--- Sources (%d, %dms) ---\n", len(ans.Sources), ans.QueryTime)
	for i, hit := range ans.Sources {
		src := hit.Metadata[indexer.MetaSource]
		if src == "" {
			src = "-"
		}
		fmt.Fprintf(w, "[%d] %s (score %.4f)\n", i+1, src, hit.Score)
		fmt.Fprintf(w, "    %s\n", utils.Truncate(oneLine(hit.Text), sourcePreviewLen))
	}
	return nil
}

// WriteHistory writes a session transcript. turns are oldest first; newestFirst
// reverses the display order.
func WriteHistory(w io.Writer, sessionID string, turns []models.ConversationTurn, format OutputFormat, newestFirst bool) error {
	view := append([]models.ConversationTurn(nil), turns...)
	if newestFirst {
		slices.Reverse(view)
	}
	if format == OutputJSON {
		if view == nil {
			view = []models.ConversationTurn{}
		}
		return writeJSON(w, map[string]interface{}{"session_id": sessionID, "turns": view})
	}
	if len(view) == 0 {
		fmt.Fprintf(w, "No history for session %s\n", sessionID)
		return nil
	}
	fmt.Fprintf(w, "Session %s (%d turns)\n", sessionID, len(view))
	for _, t := range view {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		if !t.CreatedAt.IsZero() {
			fmt.Fprintf(w, "%s\n", t.CreatedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintf(w, "User: %s\n", t.Question)
		fmt.Fprintf(w, "Assistant: %s\n", t.Answer)
	}
	return nil
}

// Status is what `kotae status` reports.
type Status struct {
	Corpora []*models.Corpus `json:"corpora"`
	Usage   storage.Usage    `json:"disk_usage"`
	Turns   int64            `json:"stored_turns"`
}

// WriteStatus writes the corpus registry and disk usage.
func WriteStatus(w io.Writer, st Status, format OutputFormat) error {
	if st.Corpora == nil {
		st.Corpora = []*models.Corpus{}
	}
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Corpora: %d\n", len(st.Corpora))
	for _, c := range st.Corpora {
		fmt.Fprintf(w, "  %-20s %-5s %5d segments  %s  (%s)\n",
			c.Name, c.Kind, c.Segments, c.IngestedAt.Local().Format(time.DateTime),
			utils.Truncate(strings.Join(c.Sources, ", "), 60))
	}
	fmt.Fprintf(w, "Disk usage: %s (indexes %s in %d files, database %s)\n",
		FormatBytes(st.Usage.Total()), FormatBytes(st.Usage.IndexBytes), st.Usage.IndexFiles,
		FormatBytes(st.Usage.DatabaseBytes))
	fmt.Fprintf(w, "Stored turns: %d\n", st.Turns)
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
