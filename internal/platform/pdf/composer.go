package pdf

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
)

var (
	titleStyle       = Style{Bold: true, Size: 16}
	subtitleStyle    = Style{Size: 9}
	headingStyle     = Style{Bold: true, Size: 12}
	labelStyle       = Style{Bold: true, Size: 9}
	valueStyle       = Style{Size: 10}
	typedSigStyle    = Style{Italic: true, Size: 16}
	signerStyle      = Style{Size: 9}
	fallbackSigStyle = Style{Italic: true, Size: 12}
)

const (
	valueIndent     = 4.0
	sectionGap      = 3.0
	ruleGap         = 2.0
	signatureMaxW   = 60.0
	signatureMaxH   = 20.0
	signatureHeader = "Signatures"
)

// Composer lays documents out line by line onto a Canvas.
type Composer struct {
	canvas Canvas
	geo    Geometry
	cursor *PageCursor
	images int
}

func NewComposer(canvas Canvas, geo Geometry) *Composer {
	c := &Composer{canvas: canvas, geo: geo}
	c.cursor = NewPageCursor(geo, canvas.AddPage)
	return c
}

// Pages is the number of pages allocated so far.
func (c *Composer) Pages() int {
	return c.cursor.Page()
}

// Compose lays out docs in order. Every document after the first starts on a
// new page.
func (c *Composer) Compose(docs ...Document) {
	for i, doc := range docs {
		if i > 0 {
			c.cursor.BreakPage()
		}
		c.document(doc)
	}
}

func (c *Composer) document(doc Document) {
	c.lines(titleStyle, 0, doc.Title)
	if doc.Subtitle != "" {
		c.lines(subtitleStyle, 0, doc.Subtitle)
	}

	c.cursor.Skip(ruleGap)
	y := c.cursor.Reserve(ruleGap)
	c.canvas.Rule(c.geo.Margin, y, c.geo.Width-c.geo.Margin, y)

	for _, s := range doc.Sections {
		c.cursor.Skip(sectionGap)
		if s.Heading != "" {
			c.lines(headingStyle, 0, s.Heading)
		}
		for _, f := range s.Fields {
			c.lines(labelStyle, 0, f.Label)
			c.lines(valueStyle, valueIndent, f.Value)
		}
	}

	if len(doc.Signatures) > 0 {
		c.cursor.Skip(sectionGap)
		c.lines(headingStyle, 0, signatureHeader)
		for _, sig := range doc.Signatures {
			c.signature(sig)
		}
	}
}

// lines wraps text to the usable width and draws it one line at a time,
// checking the cursor before each.
func (c *Composer) lines(style Style, indent float64, text string) {
	c.canvas.SetStyle(style)
	h := style.LineHeight()
	for _, line := range c.canvas.Split(text, c.geo.UsableWidth()-indent) {
		top := c.cursor.Reserve(h)
		c.canvas.Text(c.geo.Margin+indent, top+style.ascent(), line)
	}
}

func (c *Composer) signature(sig SignatureBlock) {
	c.cursor.Skip(sectionGap)

	switch {
	case len(sig.Image) > 0:
		w, h, kind, ok := fitImage(sig.Image, sig.ImageType)
		if !ok {
			c.lines(fallbackSigStyle, 0, sig.SignerName)
			break
		}
		c.images++
		top := c.cursor.Reserve(h)
		c.canvas.Image(fmt.Sprintf("signature-%d", c.images), sig.Image, kind, c.geo.Margin, top, w, h)
	case sig.Text != "":
		c.lines(typedSigStyle, 0, sig.Text)
	default:
		c.lines(fallbackSigStyle, 0, sig.SignerName)
	}

	y := c.cursor.Reserve(1)
	c.canvas.Rule(c.geo.Margin, y, c.geo.Margin+signatureMaxW, y)

	details := []string{"Name: " + sig.SignerName, "Role: " + sig.Role}
	if sig.Relationship != "" {
		details = append(details, "Relationship: "+sig.Relationship)
	}
	c.lines(signerStyle, 0, strings.Join(details, "    "))
	c.lines(signerStyle, 0, "Signed: "+sig.SignedAt)
}

// fitImage decodes the image header and scales it into the signature box.
// ok is false when the data is not a PNG or JPEG.
func fitImage(data []byte, declared string) (w, h float64, kind string, ok bool) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, "", false
	}
	switch format {
	case "png":
		kind = "PNG"
	case "jpeg":
		kind = "JPG"
	default:
		return 0, 0, "", false
	}
	if declared != "" && !strings.Contains(strings.ToLower(declared), format) &&
		!(format == "jpeg" && strings.Contains(strings.ToLower(declared), "jpg")) {
		return 0, 0, "", false
	}

	w = signatureMaxW
	h = w * float64(cfg.Height) / float64(cfg.Width)
	if h > signatureMaxH {
		h = signatureMaxH
		w = h * float64(cfg.Width) / float64(cfg.Height)
	}
	return w, h, kind, true
}

// RenderPDF composes docs onto a PDF canvas and writes the document to w.
func RenderPDF(w io.Writer, geo Geometry, info DocumentInfo, docs ...Document) error {
	canvas := NewPDFCanvas(geo, info)
	NewComposer(canvas, geo).Compose(docs...)
	return canvas.Output(w)
}

// Preview composes docs onto a Recorder and returns the recorded pages.
func Preview(geo Geometry, docs ...Document) []Page {
	rec := NewRecorder()
	NewComposer(rec, geo).Compose(docs...)
	return rec.Pages()
}
