package pdf

import (
	"io"
	"strings"
	"unicode/utf8"
)

// Style selects the Helvetica variant and point size for following text.
type Style struct {
	Bold   bool    `json:"bold,omitempty"`
	Italic bool    `json:"italic,omitempty"`
	Size   float64 `json:"size"`
}

const fontFamily = "Helvetica"

func (s Style) fontStyle() string {
	out := ""
	if s.Bold {
		out += "B"
	}
	if s.Italic {
		out += "I"
	}
	return out
}

// ptToMM converts a font size in points to millimetres.
const ptToMM = 25.4 / 72

// LineHeight is the vertical space a line in this style takes.
func (s Style) LineHeight() float64 { return s.Size * ptToMM * 1.35 }

// ascent approximates the distance from the top of a line to its baseline.
func (s Style) ascent() float64 { return s.Size * ptToMM }

// Canvas is the drawing surface the Composer writes to. Coordinates are
// millimetres from the top-left corner; Text draws with y as the baseline.
// Drawing methods do not fail; the first error surfaces from Output.
type Canvas interface {
	AddPage()
	SetStyle(s Style)
	Text(x, y float64, s string)
	Rule(x1, y1, x2, y2 float64)
	Image(name string, data []byte, imageType string, x, y, w, h float64)
	// Split wraps s into lines no wider than width in the current style.
	Split(s string, width float64) []string
	Output(w io.Writer) error
}

// wrapText breaks s at spaces so that every line measures at most width.
// Newlines start new paragraphs, and a blank paragraph yields an empty line.
// A word wider than width is broken between runes.
func wrapText(s string, width float64, measure func(string) float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		line := ""
		for _, word := range words {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if measure(candidate) <= width {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			if measure(word) <= width {
				line = word
				continue
			}
			chunks := breakWord(word, width, measure)
			lines = append(lines, chunks[:len(chunks)-1]...)
			line = chunks[len(chunks)-1]
		}
		lines = append(lines, line)
	}
	return lines
}

func breakWord(word string, width float64, measure func(string) float64) []string {
	var chunks []string
	start := 0
	for i := 0; i < len(word); {
		_, size := utf8.DecodeRuneInString(word[i:])
		next := i + size
		// Always keep at least one rune per chunk.
		if i > start && measure(word[start:next]) > width {
			chunks = append(chunks, word[start:i])
			start = i
		}
		i = next
	}
	return append(chunks, word[start:])
}
