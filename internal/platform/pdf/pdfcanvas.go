package pdf

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// PDFCanvas renders to a PDF document through fpdf.
type PDFCanvas struct {
	f       *fpdf.Fpdf
	metrics *fontMetrics
}

// DocumentInfo fills the PDF metadata dictionary.
type DocumentInfo struct {
	Title   string
	Author  string
	Subject string
	// CreatedAt fixes the creation and modification dates so equal content
	// renders to equal bytes. Zero means now.
	CreatedAt time.Time
}

// NewPDFCanvas creates a canvas for pages of the given geometry. Automatic
// page breaks are off: the Composer paginates.
func NewPDFCanvas(geo Geometry, info DocumentInfo) *PDFCanvas {
	f := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: geo.Width, Ht: geo.Height},
	})
	f.SetMargins(geo.Margin, geo.Margin, geo.Margin)
	f.SetAutoPageBreak(false, geo.Margin)
	f.SetCatalogSort(true)
	f.SetCreator("records-server", true)
	if info.Title != "" {
		f.SetTitle(info.Title, true)
	}
	if info.Author != "" {
		f.SetAuthor(info.Author, true)
	}
	if info.Subject != "" {
		f.SetSubject(info.Subject, true)
	}
	if !info.CreatedAt.IsZero() {
		f.SetCreationDate(info.CreatedAt)
		f.SetModificationDate(info.CreatedAt)
	}
	f.SetLineWidth(0.3)

	return &PDFCanvas{f: f, metrics: newFontMetrics(f)}
}

func (p *PDFCanvas) AddPage() {
	p.f.AddPage()
}

func (p *PDFCanvas) SetStyle(s Style) {
	p.metrics.setStyle(s)
}

func (p *PDFCanvas) Text(x, y float64, s string) {
	if s == "" {
		return
	}
	p.f.Text(x, y, p.metrics.tr(s))
}

func (p *PDFCanvas) Rule(x1, y1, x2, y2 float64) {
	p.f.Line(x1, y1, x2, y2)
}

func (p *PDFCanvas) Image(name string, data []byte, imageType string, x, y, w, h float64) {
	opts := fpdf.ImageOptions{ImageType: strings.ToUpper(imageType), ReadDpi: false}
	p.f.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	p.f.ImageOptions(name, x, y, w, h, false, opts, 0, "")
}

func (p *PDFCanvas) Split(s string, width float64) []string {
	return p.metrics.split(s, width)
}

// Output finishes the document and writes it to w. Any error raised while
// drawing is returned here.
func (p *PDFCanvas) Output(w io.Writer) error {
	if err := p.f.Error(); err != nil {
		return err
	}
	return p.f.Output(w)
}
