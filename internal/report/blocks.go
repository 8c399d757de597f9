package report

import "github.com/Lllllllleong/activityreport/internal/models"

// Block is one layout unit handed to the paginator.
type Block interface {
	block()
}

// Paragraph is a run of text set in one style. Long text wraps.
type Paragraph struct {
	Text  string
	Style TextStyle
}

// Table is a two-column bordered key-value table, one row per entry.
type Table struct {
	Rows models.Fields
}

// Image is an embedded picture already scaled to its display size in points.
// Type is the layout engine's image type ("png", "jpg" or "gif"), taken from
// the file content rather than its name.
type Image struct {
	Path   string
	Type   string
	Width  float64
	Height float64
}

// Spacer is vertical white space.
type Spacer struct {
	Height float64
}

// PageBreak starts a new page.
type PageBreak struct{}

func (Paragraph) block() {}
func (Table) block()     {}
func (Image) block()     {}
func (Spacer) block()    {}
func (PageBreak) block() {}
