package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"civiccite/internal/util"
)

const (
	MethodText     = "text"
	MethodMarkdown = "markdown"
	MethodHTML     = "html"
	MethodPDF      = "pdf-text"
	MethodDOCX     = "docx"
)

// Extraction is the plain text of one file plus what the parser learned
// about it.
type Extraction struct {
	Text   string
	Title  string
	Method string
}

type parseFunc func(path string) (Extraction, error)

var parsers = map[string]parseFunc{
	".txt":      parseText,
	".md":       parseMarkdown,
	".markdown": parseMarkdown,
	".html":     parseHTML,
	".htm":      parseHTML,
	".pdf":      parsePDF,
	".docx":     parseDOCX,
}

// Supported reports whether a file can be extracted based on its extension.
func Supported(path string) bool {
	_, ok := parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract selects a parser by file extension and returns sanitized text.
func (e *Extractor) Extract(ctx context.Context, path string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	parse, ok := parsers[ext]
	if !ok {
		return Extraction{}, fmt.Errorf("%w: %q", util.ErrUnsupportedFormat, ext)
	}
	out, err := parse(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	out.Text = strings.TrimSpace(util.SanitizeText(out.Text))
	out.Title = strings.TrimSpace(out.Title)
	if out.Title == "" {
		out.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return out, nil
}

func parseText(path string) (Extraction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Extraction{}, err
	}
	return Extraction{Text: string(b), Method: MethodText}, nil
}
