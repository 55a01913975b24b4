package pdf

import (
	"encoding/json"
	"fmt"
	"io"
)

// Op kinds recorded by the Recorder.
const (
	OpText  = "text"
	OpRule  = "rule"
	OpImage = "image"
)

// Op is one recorded draw command.
type Op struct {
	Kind  string  `json:"kind"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	X2    float64 `json:"x2,omitempty"`
	Y2    float64 `json:"y2,omitempty"`
	W     float64 `json:"w,omitempty"`
	H     float64 `json:"h,omitempty"`
	Text  string  `json:"text,omitempty"`
	Name  string  `json:"name,omitempty"`
	Style *Style  `json:"style,omitempty"`
}

// Page holds the commands drawn on one page.
type Page struct {
	Number int  `json:"number"`
	Ops    []Op `json:"ops"`
}

// Recorder is a Canvas that keeps draw commands instead of rendering them.
// It measures text with the same font tables as PDFCanvas, so its pagination
// matches the PDF output.
type Recorder struct {
	metrics *fontMetrics
	style   Style
	pages   []Page
	err     error
}

func NewRecorder() *Recorder {
	return &Recorder{metrics: newFontMetrics(nil), style: Style{Size: 10}}
}

// Pages returns the recorded pages.
func (r *Recorder) Pages() []Page {
	return r.pages
}

func (r *Recorder) AddPage() {
	r.pages = append(r.pages, Page{Number: len(r.pages) + 1})
}

func (r *Recorder) SetStyle(s Style) {
	r.style = s
	r.metrics.setStyle(s)
}

func (r *Recorder) add(op Op) {
	if len(r.pages) == 0 {
		if r.err == nil {
			r.err = fmt.Errorf("draw %s before first page", op.Kind)
		}
		return
	}
	p := &r.pages[len(r.pages)-1]
	p.Ops = append(p.Ops, op)
}

func (r *Recorder) Text(x, y float64, s string) {
	style := r.style
	r.add(Op{Kind: OpText, X: x, Y: y, Text: s, Style: &style})
}

func (r *Recorder) Rule(x1, y1, x2, y2 float64) {
	r.add(Op{Kind: OpRule, X: x1, Y: y1, X2: x2, Y2: y2})
}

func (r *Recorder) Image(name string, _ []byte, _ string, x, y, w, h float64) {
	r.add(Op{Kind: OpImage, Name: name, X: x, Y: y, W: w, H: h})
}

func (r *Recorder) Split(s string, width float64) []string {
	return r.metrics.split(s, width)
}

// Output writes the recorded pages as JSON.
func (r *Recorder) Output(w io.Writer) error {
	if r.err != nil {
		return r.err
	}
	return json.NewEncoder(w).Encode(r.pages)
}
