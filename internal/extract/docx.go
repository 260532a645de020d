package extract

import (
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

func parseDOCX(path string) (Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return Extraction{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return Extraction{}, err
	}
	doc, err := docx.Parse(f, st.Size())
	if err != nil {
		return Extraction{}, err
	}

	var title string
	var buf strings.Builder
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		t := paragraphText(para)
		if t == "" {
			continue
		}
		if title == "" && isTitleStyle(para) {
			title = t
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(t)
	}
	return Extraction{Text: buf.String(), Title: title, Method: MethodDOCX}, nil
}

func isTitleStyle(para *docx.Paragraph) bool {
	if para.Properties == nil || para.Properties.Style == nil {
		return false
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	return style == "title" || style == "heading1"
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
