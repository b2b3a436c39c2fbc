package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/matthewjhunter/techstock"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputImportResult outputs the counts of an import run. Articles that were
// new but could not be saved are reported as a warning on stderr.
func (f *Formatter) OutputImportResult(source string, result *techstock.ImportResult) error {
	if failed := result.New - result.Saved; failed > 0 {
		f.Warning("%s: %d of %d new articles failed to save", source, failed, result.New)
	}
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "source=%s\ttotal=%d\tnew=%d\tsaved=%d\n", source, result.Total, result.New, result.Saved)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s: fetched %d articles, %d new, %d saved\n", source, result.Total, result.New, result.Saved)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputArticleList outputs a list of articles
func (f *Formatter) OutputArticleList(articles []techstock.Article) error {
	switch f.format {
	case FormatJSON:
		if articles == nil {
			articles = []techstock.Article{}
		}
		return json.NewEncoder(f.out).Encode(articles)
	case FormatText:
		for _, a := range articles {
			fmt.Fprintf(f.out, "id=%s\ttitle=%s\turl=%s\ttags=%s\tsource=%s\tcreated=%s\n",
				a.ID, a.Title, a.URL, strings.Join(a.Tags, ","), a.Source, a.CreatedAt.Format(time.RFC3339))
		}
		return nil
	case FormatHuman:
		if len(articles) == 0 {
			fmt.Fprintln(f.out, "No articles")
			return nil
		}
		fmt.Fprintf(f.out, "Articles (%d):\n\n", len(articles))
		for _, a := range articles {
			f.humanArticle(a)
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputArticle outputs a single article
func (f *Formatter) OutputArticle(a *techstock.Article) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(a)
	case FormatText:
		return f.OutputArticleList([]techstock.Article{*a})
	case FormatHuman:
		f.humanArticle(*a)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func (f *Formatter) humanArticle(a techstock.Article) {
	fmt.Fprintf(f.out, "ID: %s\n", a.ID)
	fmt.Fprintf(f.out, "Title: %s\n", a.Title)
	fmt.Fprintf(f.out, "URL: %s\n", a.URL)
	if len(a.Tags) > 0 {
		fmt.Fprintf(f.out, "Tags: %s\n", strings.Join(a.Tags, ", "))
	}
	if a.Source != "" {
		fmt.Fprintf(f.out, "Source: %s\n", a.Source)
	}
	fmt.Fprintf(f.out, "Saved: %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04"))
}

// OutputTriggerResponse outputs the result of a scheduled trigger
func (f *Formatter) OutputTriggerResponse(resp *techstock.TriggerResponse) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(resp)
	case FormatText:
		fmt.Fprintf(f.out, "status=%d\tsuccess=%t\tmessage=%s\n", resp.StatusCode, resp.Success, resp.Message)
		if resp.Data != nil {
			return f.OutputImportResult("qiita", resp.Data)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s (%d)\n", resp.Message, resp.StatusCode)
		if resp.Data != nil {
			return f.OutputImportResult("Qiita", resp.Data)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}
