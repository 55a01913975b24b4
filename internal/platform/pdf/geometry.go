// Package pdf lays out records as paginated documents. The Composer walks a
// page cursor down the page and writes to a Canvas, which is either the fpdf
// backed PDFCanvas or the Recorder used for previews and tests.
package pdf

import (
	"fmt"
	"strings"
)

// Geometry is a page size and uniform margin, in millimetres.
type Geometry struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Margin float64 `json:"margin"`
}

var (
	A4     = Geometry{Width: 210, Height: 297, Margin: 20}
	Letter = Geometry{Width: 215.9, Height: 279.4, Margin: 20}
)

// GeometryFor resolves a page size name ("A4" or "Letter", case-insensitive)
// with the given margin. A zero margin keeps the preset's.
func GeometryFor(pageSize string, margin float64) (Geometry, error) {
	var g Geometry
	switch strings.ToLower(pageSize) {
	case "a4":
		g = A4
	case "letter", "":
		g = Letter
	default:
		return Geometry{}, fmt.Errorf("unknown page size %q", pageSize)
	}
	if margin > 0 {
		g.Margin = margin
	}
	if 2*g.Margin >= g.Width || 2*g.Margin >= g.Height {
		return Geometry{}, fmt.Errorf("margin %.1fmm leaves no room on a %.1fx%.1fmm page", g.Margin, g.Width, g.Height)
	}
	return g, nil
}

// Top is the y offset of the first line on a page.
func (g Geometry) Top() float64 { return g.Margin }

// Bottom is the lowest y a line may reach.
func (g Geometry) Bottom() float64 { return g.Height - g.Margin }

// UsableWidth is the width between the left and right margins.
func (g Geometry) UsableWidth() float64 { return g.Width - 2*g.Margin }

// PageCursor tracks the vertical offset on the current page and starts a new
// page before a line would cross the bottom margin.
type PageCursor struct {
	geo     Geometry
	offset  float64
	page    int
	newPage func()
}

// NewPageCursor returns a cursor that calls newPage whenever it allocates a
// page, including the first one.
func NewPageCursor(geo Geometry, newPage func()) *PageCursor {
	return &PageCursor{geo: geo, offset: geo.Top(), newPage: newPage}
}

// Offset is the current y position.
func (c *PageCursor) Offset() float64 { return c.offset }

// Page is the 1-based page number, or 0 before the first page.
func (c *PageCursor) Page() int { return c.page }

// BreakPage allocates a new page and resets the offset to the top margin.
func (c *PageCursor) BreakPage() {
	c.page++
	c.offset = c.geo.Top()
	if c.newPage != nil {
		c.newPage()
	}
}

// Reserve claims h millimetres for the next line and returns its top y.
// If offset+h would pass the bottom margin, a new page starts first.
func (c *PageCursor) Reserve(h float64) float64 {
	if c.page == 0 || c.offset+h > c.geo.Bottom() {
		c.BreakPage()
	}
	top := c.offset
	c.offset += h
	return top
}

// Skip advances by h without drawing. It never forces a page break; the next
// Reserve does that if needed.
func (c *PageCursor) Skip(h float64) {
	c.offset += h
}
