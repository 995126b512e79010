package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 277.0 // A4 landscape minus margins
	lineHeight  = 5.0
	headerFill  = 230
	bodyFont    = 8.0
	headerFont  = 9.0
	titleFont   = 14.0
	pageMargins = 10.0
)

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType reports the MIME type of rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render creates a PDF document with the dataset title, subtitle and a table
// whose cells wrap long text.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pageMargins, pageMargins+5, pageMargins)
	pdf.SetAutoPageBreak(true, pageMargins)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", titleFont)
		pdf.CellFormat(0, 10, data.Title, "", 1, "L", false, 0, "")
	}
	if data.Subtitle != "" {
		pdf.SetFont("Arial", "", headerFont)
		pdf.CellFormat(0, 6, data.Subtitle, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	widths := columnWidths(data.Columns)

	pdf.SetFont("Arial", "B", headerFont)
	pdf.SetFillColor(headerFill, headerFill, headerFill)
	for i, title := range data.header() {
		pdf.CellFormat(widths[i], 7, title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", bodyFont)
	for _, row := range data.Rows {
		record := data.record(row)
		height := 0.0
		for i, value := range record {
			lines := pdf.SplitLines([]byte(value), widths[i]-2)
			if h := float64(max(len(lines), 1)) * lineHeight; h > height {
				height = h
			}
		}
		_, pageHeight := pdf.GetPageSize()
		_, _, _, bottom := pdf.GetMargins()
		if pdf.GetY()+height > pageHeight-bottom {
			pdf.AddPage()
		}
		x, y := pdf.GetXY()
		for i, value := range record {
			pdf.Rect(x, y, widths[i], height, "D")
			pdf.SetXY(x+1, y)
			pdf.MultiCell(widths[i]-2, lineHeight, value, "", "L", false)
			x += widths[i]
			pdf.SetXY(x, y)
		}
		pdf.SetXY(pageMargins, y+height)
	}

	if len(data.Rows) == 0 {
		pdf.SetFont("Arial", "I", bodyFont)
		pdf.CellFormat(pageWidth, 7, "No rows.", "1", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(columns []Column) []float64 {
	total := 0.0
	for _, col := range columns {
		if col.Width > 0 {
			total += col.Width
		} else {
			total++
		}
	}
	widths := make([]float64, len(columns))
	for i, col := range columns {
		weight := col.Width
		if weight <= 0 {
			weight = 1
		}
		widths[i] = pageWidth * weight / total
	}
	return widths
}
