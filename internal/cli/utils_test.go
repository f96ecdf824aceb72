package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

func sampleAnswer() *models.Answer {
	return &models.Answer{
		Corpus:    "handbook",
		SessionID: "s1",
		Question:  "How many vacation days?",
		Text:      "  Twenty days per year.\n",
		QueryTime: 42,
		Sources: []models.Hit{
			{Text: "Employees get twenty\nvacation days.", Score: 0.91, Metadata: map[string]string{indexer.MetaSource: "policy.pdf"}},
			{Text: "Unrelated", Score: 0.2},
		},
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputJSON, false); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded models.Answer
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Corpus != "handbook" || len(decoded.Sources) != 2 || decoded.QueryTime != 42 {
		t.Errorf("unexpected decoded answer: %+v", decoded)
	}
}

func TestWriteAnswer_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText, true); err != nil {
		t.Fatalf("WriteAnswer(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Twenty days per year.\n", "Sources (2, 42ms)", "[1] policy.pdf (score 0.9100)", "Employees get twenty vacation days.", "[2] -"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Twenty days per year.\n" {
		t.Errorf("without sources got %q", buf.String())
	}
}

func TestWriteHistory(t *testing.T) {
	turns := []models.ConversationTurn{
		{Question: "first?", Answer: "one", CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{Question: "second?", Answer: "two", CreatedAt: time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	if err := WriteHistory(&buf, "s1", turns, OutputText, true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Session s1 (2 turns)") {
		t.Errorf("missing header:\n%s", out)
	}
	if strings.Index(out, "second?") > strings.Index(out, "first?") {
		t.Errorf("newest first expected:\n%s", out)
	}
	if turns[0].Question != "first?" {
		t.Error("WriteHistory must not reorder the caller's slice")
	}

	buf.Reset()
	if err := WriteHistory(&buf, "s1", turns, OutputJSON, false); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		SessionID string                    `json:"session_id"`
		Turns     []models.ConversationTurn `json:"turns"`
	}
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.SessionID != "s1" || len(decoded.Turns) != 2 || decoded.Turns[0].Question != "first?" {
		t.Errorf("unexpected decoded history: %+v", decoded)
	}
}

func TestWriteHistory_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, "none", nil, OutputText, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No history for session none") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	if err := WriteHistory(&buf, "none", nil, OutputJSON, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"turns": []`) {
		t.Errorf("empty JSON history should be an empty array, got %s", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	st := Status{
		Corpora: []*models.Corpus{
			{Name: "handbook", Kind: models.SourcePDF, Segments: 12, Sources: []string{"a.pdf", "b.pdf"}, IngestedAt: time.Now()},
		},
		Usage: storage.Usage{IndexBytes: 2048, IndexFiles: 1, DatabaseBytes: 512},
		Turns: 7,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Corpora: 1", "handbook", "12 segments", "a.pdf, b.pdf", "Disk usage: 2.5 KiB", "indexes 2.0 KiB in 1 files", "database 512 B", "Stored turns: 7"} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteStatus(&buf, Status{}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"corpora": []`) {
		t.Errorf("empty corpora should encode as []: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]OutputFormat{
		"json":    OutputJSON,
		"JSON":    OutputJSON,
		"text":    OutputText,
		"":        OutputText,
		"unknown": OutputText,
	}
	for in, want := range tests {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
