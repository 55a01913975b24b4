package pdf

import (
	"github.com/go-pdf/fpdf"
)

// fontMetrics measures text with fpdf's core font tables. Core fonts use
// cp1252, so text is translated before measuring and drawing.
type fontMetrics struct {
	f  *fpdf.Fpdf
	tr func(string) string
}

func newFontMetrics(f *fpdf.Fpdf) *fontMetrics {
	if f == nil {
		f = fpdf.New("P", "mm", "A4", "")
	}
	m := &fontMetrics{f: f, tr: f.UnicodeTranslatorFromDescriptor("")}
	m.setStyle(Style{Size: 10})
	return m
}

func (m *fontMetrics) setStyle(s Style) {
	m.f.SetFont(fontFamily, s.fontStyle(), s.Size)
}

func (m *fontMetrics) width(s string) float64 {
	return m.f.GetStringWidth(m.tr(s))
}

func (m *fontMetrics) split(s string, width float64) []string {
	return wrapText(s, width, m.width)
}
