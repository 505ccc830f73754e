package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Filename is the suggested download name of every report.
const Filename = "learning_analysis.pdf"

// MIMEPDF is the media type of a compiled report.
const MIMEPDF = "application/pdf"

// DefaultTitle is used when [Input.Title] is empty.
const DefaultTitle = "Learning Analysis"

// Page geometry in millimetres (A4 portrait).
const (
	marginMM     = 20.0
	contentWidth = 210.0 - 2*marginMM
	lineHeight   = 6.0
	chartHeight  = 60.0
	maxBars      = 30
)

// Input is everything the compiler lays out.
type Input struct {
	Title    string
	Analysis string
	Chart    []ChartPoint
}

// Document is a compiled report.
type Document struct {
	Filename string
	Data     []byte
	MIMEType string
}

// CompilerOption configures a [Compiler].
type CompilerOption func(*Compiler)

// WithCompilerClock overrides the timestamp printed on the report.
func WithCompilerClock(now func() time.Time) CompilerOption {
	return func(c *Compiler) {
		c.now = now
	}
}

// Compiler renders [Input] values as PDF documents. The zero value is not
// usable; call [NewCompiler].
type Compiler struct {
	now func() time.Time
}

// NewCompiler returns a Compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compile renders in as a single PDF. An analysis that is blank after
// trimming returns [ErrEmptyAnalysis].
func (c *Compiler) Compile(in Input) (*Document, error) {
	if strings.TrimSpace(in.Analysis) == "" {
		return nil, ErrEmptyAnalysis
	}
	title := in.Title
	if title == "" {
		title = DefaultTitle
	}
	generated := c.now()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.SetTitle(title, true)
	pdf.SetCreator("edusync", true)
	pdf.SetCreationDate(generated)
	// Core fonts are cp1252; translate so accented characters survive.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(contentWidth, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(contentWidth, 6, "Generated "+generated.Format("2006-01-02 15:04 MST"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(contentWidth, lineHeight, tr(strings.TrimSpace(in.Analysis)), "", "L", false)

	if len(in.Chart) > 0 {
		pdf.Ln(8)
		drawChart(pdf, tr, in.Chart)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: render pdf: %w", err)
	}
	return &Document{Filename: Filename, Data: buf.Bytes(), MIMEType: MIMEPDF}, nil
}

// drawChart draws a labelled bar chart of pts at the current position,
// starting a new page when it does not fit. Only the last maxBars points are
// drawn.
func drawChart(pdf *fpdf.Fpdf, tr func(string) string, pts []ChartPoint) {
	if len(pts) > maxBars {
		pts = pts[len(pts)-maxBars:]
	}
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+chartHeight+20 > pageH-marginMM {
		pdf.AddPage()
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentWidth, 8, tr("Words per message"), "", 1, "L", false, 0, "")

	top := pdf.GetY() + 2
	bottom := top + chartHeight
	maxV := 0.0
	for _, p := range pts {
		maxV = max(maxV, p.Value)
	}
	if maxV == 0 {
		maxV = 1
	}

	pdf.SetDrawColor(120, 120, 120)
	pdf.Line(marginMM, bottom, marginMM+contentWidth, bottom)

	slot := contentWidth / float64(len(pts))
	barW := slot * 0.6
	pdf.SetFillColor(45, 140, 255)
	pdf.SetFont("Helvetica", "", 7)
	for i, p := range pts {
		h := p.Value / maxV * chartHeight
		x := marginMM + float64(i)*slot + (slot-barW)/2
		if h > 0 {
			pdf.Rect(x, bottom-h, barW, h, "F")
		}
		pdf.SetXY(x-1, bottom+1)
		pdf.CellFormat(barW+2, 4, tr(p.Label), "", 0, "C", false, 0, "")
		pdf.SetXY(x-1, bottom-h-4)
		pdf.CellFormat(barW+2, 4, fmt.Sprintf("%.0f", p.Value), "", 0, "C", false, 0, "")
	}
	pdf.SetXY(marginMM, bottom+6)
}
