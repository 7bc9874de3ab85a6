package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/tlegate/internal/gate"
)

// PDFOptions controls acceptance report rendering.
type PDFOptions struct {
	Lang Language
	// ManifestDigest, when set, is printed and embedded as a QR code.
	ManifestDigest string
	Generated      time.Time
}

type pdfDoc struct {
	pdf *gofpdf.Fpdf
	t   Translator
	// core fonts are cp1252 encoded
	enc func(string) string
}

func (d *pdfDoc) text(s string) string { return d.enc(s) }

func (d *pdfDoc) label(key string) string { return d.enc(d.t.T(key)) }

// SaveAcceptancePDF renders rep into a PDF file at out.
func SaveAcceptancePDF(rep gate.AcceptanceReport, out string, opts PDFOptions) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	d := &pdfDoc{pdf: pdf, t: NewTranslator(opts.Lang), enc: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetTitle(d.t.T("title"), true)
	pdf.SetAuthor("tlectl", false)
	pdf.SetCreator("tlectl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	d.title(opts)
	if err := d.manifest(opts.ManifestDigest); err != nil {
		return err
	}
	d.summary(rep)
	d.gateMatrix(rep.GateMatrix)
	d.findings(rep.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func (d *pdfDoc) title(opts PDFOptions) {
	d.pdf.SetFont("Helvetica", "B", 18)
	d.pdf.Cell(0, 10, d.label("title"))
	d.pdf.Ln(10)
	generated := opts.Generated
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	d.pdf.SetFont("Helvetica", "", 9)
	d.pdf.Cell(0, 5, d.text(d.t.Format("generated", generated.Format(time.RFC3339))))
	d.pdf.Ln(8)
}

func (d *pdfDoc) manifest(digest string) error {
	if strings.TrimSpace(digest) == "" {
		return nil
	}
	png, err := DigestQR(digest, 256)
	if err != nil {
		return err
	}
	name := "manifest-qr"
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	d.pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(png))
	x, y := d.pdf.GetX(), d.pdf.GetY()
	d.pdf.ImageOptions(name, x, y, 30, 30, false, opt, 0, "")

	d.pdf.SetXY(x+34, y+4)
	d.pdf.SetFont("Helvetica", "B", 11)
	d.pdf.Cell(0, 6, d.label("manifest"))
	d.pdf.SetXY(x+34, y+11)
	d.pdf.SetFont("Courier", "", 8)
	d.pdf.MultiCell(0, 4, digest, "", "L", false)
	d.pdf.SetXY(x, y+34)
	return nil
}

func (d *pdfDoc) summary(rep gate.AcceptanceReport) {
	d.section("summary")
	s := rep.Summary
	items := []struct {
		key   string
		value string
	}{
		{"profile", emptyFallback(rep.Profile, "-")},
		{"records", strconv.Itoa(s.Records)},
		{"accepted", strconv.Itoa(s.Accepted)},
		{"rejected", strconv.Itoa(s.Rejected)},
		{"duplicates", strconv.Itoa(s.Duplicates)},
		{"errors", strconv.Itoa(s.Errors)},
		{"warnings", strconv.Itoa(s.Warnings)},
		{"overall", d.passLabel(s.Pass)},
	}
	d.pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		d.pdf.CellFormat(50, 6, d.label(item.key), "", 0, "L", false, 0, "")
		d.pdf.CellFormat(0, 6, d.text(item.value), "", 1, "L", false, 0, "")
	}
	d.pdf.Ln(4)
}

func (d *pdfDoc) gateMatrix(rows []gate.GateRow) {
	d.section("gate_matrix")
	headers := []string{"code", "severity", "count"}
	widths := []float64{90, 45, 45}

	d.pdf.SetFillColor(240, 240, 240)
	d.pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		d.pdf.CellFormat(widths[i], 7, d.label(h), "1", 0, "L", true, 0, "")
	}
	d.pdf.Ln(-1)

	d.pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		values := []string{string(row.Code), severityLabel(row.Severity), strconv.Itoa(row.Count)}
		d.tableRow(widths, values, 5)
	}
	d.pdf.Ln(4)
}

func (d *pdfDoc) findings(findings []gate.Diagnostic) {
	d.section("findings")
	if len(findings) == 0 {
		d.pdf.SetFont("Helvetica", "", 11)
		d.pdf.MultiCell(0, 6, d.label("no_findings"), "", "L", false)
		return
	}
	for i, f := range findings {
		d.pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, f.Code, severityLabel(f.Severity))
		d.pdf.MultiCell(0, 5, d.text(header), "", "L", false)

		if msg := strings.TrimSpace(f.Message); msg != "" {
			d.pdf.SetFont("Helvetica", "", 10)
			d.pdf.MultiCell(0, 5, d.text(msg), "", "L", false)
		}
		if meta := d.findingMetadata(f); meta != "" {
			d.pdf.SetFont("Helvetica", "", 9)
			d.pdf.MultiCell(0, 4, d.text(meta), "", "L", false)
		}
		d.pdf.Ln(2)
	}
}

func (d *pdfDoc) section(key string) {
	d.pdf.SetFont("Helvetica", "B", 12)
	d.pdf.Cell(0, 8, d.label(key))
	d.pdf.Ln(9)
}

func (d *pdfDoc) tableRow(widths []float64, values []string, lineHeight float64) {
	xStart, yStart := d.pdf.GetX(), d.pdf.GetY()
	maxLines := 1
	cols := make([][]string, len(values))
	for i, val := range values {
		text := d.text(emptyFallback(val, "-"))
		lines := d.pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		cols[i] = lines
		maxLines = max(maxLines, len(lines))
	}
	x := xStart
	for i, lines := range cols {
		d.pdf.SetXY(x, yStart)
		d.pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	d.pdf.SetXY(xStart, yStart+float64(maxLines)*lineHeight)
}

func (d *pdfDoc) passLabel(pass bool) string {
	if pass {
		return d.t.T("pass")
	}
	return d.t.T("fail")
}

func (d *pdfDoc) findingMetadata(f gate.Diagnostic) string {
	parts := make([]string, 0, 6)
	if f.File != "" {
		parts = append(parts, f.File)
	}
	parts = append(parts, d.t.Format("record_n", f.Record+1))
	if f.SourceLine > 0 {
		parts = append(parts, d.t.Format("line_n", f.SourceLine))
	}
	if f.Satellite != "" {
		parts = append(parts, d.t.Format("satellite_n", f.Satellite))
	}
	if f.Field != "" {
		parts = append(parts, d.t.Format("field", f.Field))
	}
	if f.FixSuggested {
		parts = append(parts, d.t.T("fix_suggested"))
	}
	return strings.Join(parts, " | ")
}

func severityLabel(sev gate.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
