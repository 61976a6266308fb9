package preflight

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFInspector parses uploaded PDF bytes before the batch ever reaches the
// extraction service, so obviously broken files are rejected at intake.
type PDFInspector struct{}

func NewPDFInspector() *PDFInspector {
	return &PDFInspector{}
}

func (i *PDFInspector) Inspect(name string, content []byte) (pages int, err error) {
	// The parser panics on some malformed inputs instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = fmt.Errorf("parse pdf %q: %v", name, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf %q: %w", name, err)
	}
	pages = reader.NumPage()
	if pages <= 0 {
		return 0, fmt.Errorf("pdf %q has no pages", name)
	}
	return pages, nil
}
