package pdf

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// Font selects Helvetica or Helvetica-Bold at a point size.
type Font struct {
	Bold bool
	Size float64
}

// Canvas is the drawing surface used by the layout. Coordinates are in
// points with the origin at the bottom-left corner of the page.
type Canvas interface {
	AddPage()
	TextWidth(text string, font Font) float64
	DrawText(text string, x, y float64, font Font, gray float64)
	DrawLine(x1, y1, x2, y2, thickness float64)
}

// FPDFCanvas draws A4 pages with go-pdf/fpdf. UTF-8 text is translated
// to cp1252 so Portuguese diacritics render with the core fonts.
type FPDFCanvas struct {
	pdf       *fpdf.Fpdf
	translate func(string) string
}

func NewFPDFCanvas(title string) *FPDFCanvas {
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCreator("MindMed", true)
	if title != "" {
		doc.SetTitle(title, true)
	}
	return &FPDFCanvas{
		pdf:       doc,
		translate: doc.UnicodeTranslatorFromDescriptor(""),
	}
}

func (c *FPDFCanvas) AddPage() {
	c.pdf.AddPage()
}

func (c *FPDFCanvas) setFont(font Font) {
	style := ""
	if font.Bold {
		style = "B"
	}
	c.pdf.SetFont("Helvetica", style, font.Size)
}

func (c *FPDFCanvas) TextWidth(text string, font Font) float64 {
	c.setFont(font)
	return c.pdf.GetStringWidth(c.translate(text))
}

func (c *FPDFCanvas) DrawText(text string, x, y float64, font Font, gray float64) {
	c.setFont(font)
	level := int(gray*255 + 0.5)
	c.pdf.SetTextColor(level, level, level)
	c.pdf.Text(x, PageHeight-y, c.translate(text))
}

func (c *FPDFCanvas) DrawLine(x1, y1, x2, y2, thickness float64) {
	c.pdf.SetDrawColor(0, 0, 0)
	c.pdf.SetLineWidth(thickness)
	c.pdf.Line(x1, PageHeight-y1, x2, PageHeight-y2)
}

// PageCount returns the number of pages added so far.
func (c *FPDFCanvas) PageCount() int {
	return c.pdf.PageCount()
}

// Output writes the finished document to w.
func (c *FPDFCanvas) Output(w io.Writer) error {
	if err := c.pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}
