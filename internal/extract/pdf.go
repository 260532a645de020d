package extract

import (
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

func parsePDF(path string) (Extraction, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return Extraction{}, err
	}
	defer f.Close()

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(text)
	}
	return Extraction{Text: buf.String(), Method: MethodPDF}, nil
}
