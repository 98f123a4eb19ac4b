package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont       = "Arial"
	pdfBodySize   = 9.0
	pdfLineHeight = 5.0
	pdfPageWidth  = 190.0 // A4 width minus margins
	pdfPageBottom = 297.0 - 15.0
	pdfTableSize  = 7.5
	pdfTableLine  = 3.6
	pdfMaxLines   = 6
)

// MarkdownToPDF renders the report Markdown as an A4 PDF
func MarkdownToPDF(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont(pdfFont, "", pdfBodySize)

	source := []byte(markdown)
	doc := newMarkdown().Parser().Parse(text.NewReader(source))

	r := &pdfRenderer{
		pdf:    pdf,
		source: source,
		// Core fonts are cp1252; translate so company names keep their accents
		tr: pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to render report PDF: %w", err)
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render report PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write report PDF: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	bold   bool
	italic bool
	depth  int
}

func (r *pdfRenderer) font() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(pdfFont, style, pdfBodySize)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			r.pdf.SetFont(pdfFont, "B", 15-float64(node.Level)*1.5)
		} else {
			r.pdf.Ln(7)
			r.font()
		}
	case *ast.Paragraph:
		if !entering && r.depth == 0 {
			r.pdf.Ln(7)
		}
	case *ast.Text:
		if entering {
			r.pdf.Write(pdfLineHeight, r.tr(string(node.Segment.Value(r.source))))
			if node.SoftLineBreak() {
				r.pdf.Write(pdfLineHeight, " ")
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.font()
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", pdfBodySize)
			r.pdf.Write(pdfLineHeight, r.tr(string(node.Text(r.source))))
			r.font()
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.depth++
		} else {
			r.depth--
			if r.depth == 0 {
				r.pdf.Ln(7)
			}
		}
	case *ast.ListItem:
		if entering {
			r.pdf.Ln(pdfLineHeight)
			r.pdf.SetX(12 + float64(r.depth)*4)
			r.pdf.Write(pdfLineHeight, "- ")
		}
	case *extast.Table:
		if entering {
			r.table(r.tableRows(node))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

// tableRows flattens header and body rows into cell text
func (r *pdfRenderer) tableRows(t *extast.Table) [][]string {
	var rows [][]string
	for child := t.FirstChild(); child != nil; child = child.NextSibling() {
		var cells []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.tr(string(cell.Text(r.source))))
		}
		rows = append(rows, cells)
	}
	return rows
}

// table draws bordered rows with wrapped cells sized to their content
func (r *pdfRenderer) table(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	cols := len(rows[0])
	widths := r.columnWidths(rows, cols)

	r.pdf.Ln(1)
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		r.pdf.SetFont(pdfFont, style, pdfTableSize)

		lines := 1
		for j := 0; j < cols && j < len(row); j++ {
			if n := len(r.pdf.SplitLines([]byte(row[j]), widths[j]-2)); n > lines {
				lines = n
			}
		}
		if lines > pdfMaxLines {
			lines = pdfMaxLines
		}
		height := float64(lines)*pdfTableLine + 2

		x, y := r.pdf.GetX(), r.pdf.GetY()
		if y+height > pdfPageBottom {
			r.pdf.AddPage()
			y = r.pdf.GetY()
		}

		cx := x
		for j := 0; j < cols; j++ {
			fill := "D"
			if i == 0 {
				r.pdf.SetFillColor(230, 230, 230)
				fill = "FD"
			}
			r.pdf.Rect(cx, y, widths[j], height, fill)
			if j < len(row) {
				wrapped := r.pdf.SplitLines([]byte(row[j]), widths[j]-2)
				for k, line := range wrapped {
					if k == pdfMaxLines {
						break
					}
					r.pdf.SetXY(cx+1, y+1+float64(k)*pdfTableLine)
					r.pdf.CellFormat(widths[j]-2, pdfTableLine, string(line), "", 0, "L", false, 0, "")
				}
			}
			cx += widths[j]
		}
		r.pdf.SetXY(x, y+height)
	}
	r.pdf.Ln(3)
	r.font()
}

// columnWidths shares the page width in proportion to each column's widest
// cell, with a floor so short columns stay legible.
func (r *pdfRenderer) columnWidths(rows [][]string, cols int) []float64 {
	r.pdf.SetFont(pdfFont, "", pdfTableSize)
	natural := make([]float64, cols)
	total := 0.0
	for j := 0; j < cols; j++ {
		for _, row := range rows {
			if j < len(row) {
				if w := r.pdf.GetStringWidth(strings.TrimSpace(row[j])) + 3; w > natural[j] {
					natural[j] = w
				}
			}
		}
		if natural[j] < 12 {
			natural[j] = 12
		}
		total += natural[j]
	}

	widths := make([]float64, cols)
	for j := range natural {
		if total <= pdfPageWidth {
			widths[j] = natural[j]
		} else {
			widths[j] = natural[j] / total * pdfPageWidth
		}
	}
	return widths
}
