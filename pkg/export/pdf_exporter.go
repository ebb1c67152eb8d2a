package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a printable table. Narrow datasets (the
// roster summary) fit portrait; the transition log carries enough columns
// that it flips to landscape.
type PDFExporter struct{}

// NewPDFExporter returns a stateless PDF renderer.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const landscapeColumnThreshold = 6

// pageLayout pairs the gofpdf orientation code with the printable width that
// remains on an A4 page once the side margins are taken out.
type pageLayout struct {
	orientation string
	usableWidth float64
}

func layoutFor(columns int) pageLayout {
	if columns >= landscapeColumnThreshold {
		return pageLayout{orientation: "L", usableWidth: 277.0}
	}
	return pageLayout{orientation: "P", usableWidth: 190.0}
}

// Render produces the PDF document. The title and column row repeat on every
// page, so a dataset that spills past page one stays readable. Cell values
// are truncated to keep each row on a single line.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf export needs at least one column")
	}
	layout := layoutFor(len(data.Headers))
	colWidth := layout.usableWidth / float64(len(data.Headers))

	pdf := gofpdf.New(layout.orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetHeaderFunc(func() {
		if title != "" {
			pdf.SetFont("Arial", "B", 14)
			pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
			pdf.Ln(3)
		}
		pdf.SetFont("Arial", "B", 10)
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		// Leave the body font active so rows started right after a page
		// break do not inherit the bold header face.
		pdf.SetFont("Arial", "", 9)
	})
	pdf.AddPage()

	maxChars := int(colWidth / 1.8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, truncate(row[header], maxChars), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d rows", len(data.Rows)), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	if max < 4 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
