package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/techstock"
)

func sampleArticles() []techstock.Article {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []techstock.Article{
		{
			ID:        "a1",
			Title:     "Go Generics",
			URL:       "https://example.com/generics",
			Tags:      []string{"Go", "Generics"},
			Source:    "Qiita",
			CreatedAt: created,
			UpdatedAt: created,
		},
		{
			ID:        "a2",
			Title:     "Untagged",
			URL:       "https://example.com/untagged",
			Tags:      []string{},
			CreatedAt: created,
			UpdatedAt: created,
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "TEXT", "human"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("ParseFormat(yaml) should fail")
	}
}

func TestOutputImportResult_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	if err := f.OutputImportResult("Qiita", &techstock.ImportResult{Total: 25, New: 20, Saved: 19}); err != nil {
		t.Fatalf("OutputImportResult failed: %v", err)
	}

	var decoded techstock.ImportResult
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if decoded != (techstock.ImportResult{Total: 25, New: 20, Saved: 19}) {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestOutputImportResult_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	if err := f.OutputImportResult("Qiita", &techstock.ImportResult{Total: 3, New: 2, Saved: 2}); err != nil {
		t.Fatalf("OutputImportResult failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"source=Qiita", "total=3", "new=2", "saved=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in output: %s", want, got)
		}
	}
}

func TestOutputImportResult_WarnsOnFailures(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatText, FormatHuman} {
		t.Run(string(format), func(t *testing.T) {
			var out, errBuf bytes.Buffer
			f := NewFormatterWithWriters(format, &out, &errBuf)

			if err := f.OutputImportResult("Qiita", &techstock.ImportResult{Total: 25, New: 20, Saved: 19}); err != nil {
				t.Fatalf("OutputImportResult failed: %v", err)
			}
			if errBuf.String() != "Warning: Qiita: 1 of 20 new articles failed to save\n" {
				t.Errorf("stderr = %q", errBuf.String())
			}
			if strings.Contains(out.String(), "Warning") {
				t.Errorf("warning written to stdout: %q", out.String())
			}
		})
	}
}

func TestOutputImportResult_NoWarningWhenAllSaved(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputImportResult("Qiita", &techstock.ImportResult{Total: 3, New: 2, Saved: 2}); err != nil {
		t.Fatalf("OutputImportResult failed: %v", err)
	}
	if errBuf.Len() != 0 {
		t.Errorf("stderr = %q", errBuf.String())
	}
}

func TestOutputArticleList_JSONEmpty(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	if err := f.OutputArticleList(nil); err != nil {
		t.Fatalf("OutputArticleList failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("output = %q, want []", out.String())
	}
}

func TestOutputArticleList_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	if err := f.OutputArticleList(sampleArticles()); err != nil {
		t.Fatalf("OutputArticleList failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "id=a1") || !strings.Contains(lines[0], "tags=Go,Generics") {
		t.Errorf("first line = %s", lines[0])
	}
}

func TestOutputArticleList_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputArticleList(sampleArticles()); err != nil {
		t.Fatalf("OutputArticleList failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Articles (2)") {
		t.Errorf("missing count header: %s", got)
	}
	if !strings.Contains(got, "Tags: Go, Generics") {
		t.Errorf("missing tags line: %s", got)
	}
	if strings.Count(got, "Source:") != 1 {
		t.Errorf("source line should only appear for sourced articles: %s", got)
	}
}

func TestOutputArticleList_HumanEmpty(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputArticleList([]techstock.Article{}); err != nil {
		t.Fatalf("OutputArticleList failed: %v", err)
	}
	if !strings.Contains(out.String(), "No articles") {
		t.Errorf("output = %q", out.String())
	}
}

func TestOutputTriggerResponse(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	resp := &techstock.TriggerResponse{StatusCode: 500, Success: false, Message: "Failed to fetch Qiita articles"}
	if err := f.OutputTriggerResponse(resp); err != nil {
		t.Fatalf("OutputTriggerResponse failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if decoded["statusCode"] != float64(500) || decoded["success"] != false {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded["data"]; ok {
		t.Error("data should be omitted on failure")
	}
}

func TestUnknownFormat(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(Format("xml"), &out, &errBuf)

	if err := f.OutputArticleList(sampleArticles()); err == nil {
		t.Error("expected error for unknown format")
	}
}
