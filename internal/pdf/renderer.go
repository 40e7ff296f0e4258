package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mindmed/mindmed-api/internal/models"
)

// A4 in points.
const (
	PageWidth  = 595.0
	PageHeight = 842.0
)

// Input caps enforced before rendering.
const (
	MaxMedications     = 50
	MaxObservationsLen = 5000
)

const (
	margin     = 50.0
	lineHeight = 15.0

	// body content never goes below this line; the footer and the
	// signature block live underneath it
	bottomReserve = 130.0

	footerY    = 100.0
	signatureY = 60.0
	footerGray = 0.3
)

var (
	fontClinic    = Font{Bold: true, Size: 14}
	fontDoctor    = Font{Bold: true, Size: 12}
	fontSpecialty = Font{Size: 10}
	fontContact   = Font{Size: 9}
	fontBody      = Font{Size: 10}
	fontTitle     = Font{Bold: true, Size: 14}
	fontPatient   = Font{Size: 11}
	fontSection   = Font{Bold: true, Size: 12}
	fontMedName   = Font{Bold: true, Size: 11}
	fontObsTitle  = Font{Bold: true, Size: 11}
	fontSmall     = Font{Size: 9}
)

// Document is everything printed on a prescription.
type Document struct {
	Profile      models.Profile
	PatientName  string
	PatientAge   string
	Medications  []models.Medication
	Observations string
	Date         time.Time
}

var monthNames = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatDate renders t as "16 de outubro de 2026".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%02d de %s de %d", t.Day(), monthNames[t.Month()-1], t.Year())
}

type page struct {
	c Canvas
	y float64
}

func (p *page) centered(text string, font Font) {
	w := p.c.TextWidth(text, font)
	p.c.DrawText(text, PageWidth/2-w/2, p.y, font, 0)
}

func (p *page) left(text string, font Font) {
	p.c.DrawText(text, margin, p.y, font, 0)
}

// reserve starts a new page when drawing a line at the cursor would
// reach into the footer area.
func (p *page) reserve() {
	if p.y < bottomReserve {
		p.c.AddPage()
		p.y = PageHeight - margin
	}
}

// Render lays the prescription out on c, adding pages as needed. Footer
// and signature are drawn on the last page.
func Render(c Canvas, doc Document) {
	prof := doc.Profile
	p := &page{c: c, y: PageHeight - margin}
	c.AddPage()

	if prof.ClinicName != "" {
		p.centered(prof.ClinicName, fontClinic)
		p.y -= lineHeight
	}

	p.centered(prof.FullName, fontDoctor)
	p.y -= lineHeight

	specialty := prof.Specialty
	if specialty == "" {
		specialty = "Medicina"
	}
	p.centered(fmt.Sprintf("%s | CRM %s/%s", specialty, prof.CRM, prof.CRMUF), fontSpecialty)
	p.y -= lineHeight

	if prof.Address != "" {
		p.centered(prof.Address, fontContact)
		p.y -= lineHeight
	}
	if prof.Phone != "" {
		p.centered("Tel: "+prof.Phone, fontContact)
		p.y -= lineHeight
	}

	p.y -= 10
	c.DrawLine(margin, p.y, PageWidth-margin, p.y, 1)
	p.y -= 20

	p.left("Data: "+FormatDate(doc.Date), fontBody)
	p.y -= 20

	p.centered("RECEITUÁRIO", fontTitle)
	p.y -= 20

	patient := "Paciente: " + doc.PatientName
	if doc.PatientAge != "" {
		patient += " | Idade: " + doc.PatientAge
	}
	p.left(patient, fontPatient)
	p.y -= 25

	p.left("Prescrição:", fontSection)
	p.y -= 20

	for i, med := range doc.Medications {
		p.reserve()
		p.left(fmt.Sprintf("%d. %s", i+1, med.Name), fontMedName)
		p.y -= lineHeight

		if details := medicationDetails(med); details != "" {
			p.reserve()
			p.left("   "+details, fontBody)
			p.y -= lineHeight
		}
		p.y -= 5
	}

	if doc.Observations != "" {
		p.y -= 15
		p.reserve()
		p.left("Observações:", fontObsTitle)
		p.y -= lineHeight

		for _, line := range WrapText(c, doc.Observations, fontBody, PageWidth-2*margin) {
			p.reserve()
			p.left(line, fontBody)
			p.y -= lineHeight
		}
	}

	if footer := prof.PrescriptionFooterText; footer != "" {
		w := c.TextWidth(footer, fontSmall)
		c.DrawText(footer, PageWidth/2-w/2, footerY, fontSmall, footerGray)
	}

	c.DrawLine(PageWidth/2-80, signatureY, PageWidth/2+80, signatureY, 0.5)
	p.y = signatureY - 15
	p.centered(prof.FullName, fontSmall)
	p.y = signatureY - 28
	p.centered(fmt.Sprintf("CRM %s/%s", prof.CRM, prof.CRMUF), fontSmall)
}

func medicationDetails(med models.Medication) string {
	var parts []string
	if med.Dosage != "" {
		parts = append(parts, med.Dosage)
	}
	if med.Frequency != "" {
		parts = append(parts, med.Frequency)
	}
	if med.Duration != "" {
		parts = append(parts, "por "+med.Duration)
	}
	return strings.Join(parts, ", ")
}

// FPDFRenderer renders documents to PDF bytes with go-pdf/fpdf.
type FPDFRenderer struct{}

func (FPDFRenderer) Render(doc Document) ([]byte, error) {
	c := NewFPDFCanvas("Receita - " + doc.PatientName)
	Render(c, doc)

	var buf bytes.Buffer
	if err := c.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
