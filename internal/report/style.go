package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	inch = 72.0 // points

	// MaxImagePixels is the widest image, in pixels, kept as uploaded.
	MaxImagePixels = 1200
)

// TextStyle describes how a paragraph is set.
type TextStyle struct {
	Bold        bool
	Size        float64
	Leading     float64
	Align       string // "L" or "C"
	SpaceBefore float64
	SpaceAfter  float64
}

// Style is the document configuration shared by all renderings. Build it once
// at start-up and never modify it afterwards; renderers only read from it.
type Style struct {
	Letterhead []string // first line uses HeaderMain, the rest HeaderSub
	Title      string

	FontFamily string
	Font       *FontFiles // nil selects the core font, which covers cp1252 only
	PageSize   string
	Margin     float64

	HeaderMain   TextStyle
	HeaderSub    TextStyle
	ReportTitle  TextStyle
	SectionTitle TextStyle
	NormalText   TextStyle
	TableKey     TextStyle
	TableValue   TextStyle
	PhotoHeading TextStyle

	FooterSize     float64
	FooterRight    float64 // x of the right edge of the footer text
	FooterBaseline float64 // distance of the footer baseline from the bottom edge

	KeyColumnWidth   float64
	ValueColumnWidth float64
	CellPaddingX     float64
	CellPaddingY     float64
	GridLineWidth    float64
	TableSpacing     float64

	PhotoMaxWidth     float64
	SignatureMaxWidth float64
	ProfileMaxWidth   float64
}

// FontFiles holds the TrueType data of an embedded Unicode font family. Bold
// falls back to Regular when empty.
type FontFiles struct {
	Regular []byte
	Bold    []byte
}

// DefaultStyle returns the institutional layout.
func DefaultStyle() *Style {
	return &Style{
		Letterhead: []string{
			"CHRIST (Deemed to be University), Bangalore",
			"School of Engineering and Technology",
			"Department of AI, ML & Data Science",
		},
		Title: "Activity Report",

		FontFamily: "Times",
		PageSize:   "A4",
		Margin:     0.9 * inch,

		HeaderMain:   TextStyle{Bold: true, Size: 16, Align: "C", SpaceAfter: 6},
		HeaderSub:    TextStyle{Size: 13, Align: "C", SpaceAfter: 2},
		ReportTitle:  TextStyle{Bold: true, Size: 16, Align: "C", SpaceBefore: 6, SpaceAfter: 6},
		SectionTitle: TextStyle{Bold: true, Size: 12.5, Align: "L", SpaceBefore: 14, SpaceAfter: 6},
		NormalText:   TextStyle{Size: 11, Leading: 15, Align: "L"},
		TableKey:     TextStyle{Bold: true, Size: 11, Leading: 14, Align: "L"},
		TableValue:   TextStyle{Size: 11, Leading: 14, Align: "L"},
		PhotoHeading: TextStyle{Bold: true, Size: 14, Align: "C", SpaceBefore: 6, SpaceAfter: 8},

		FooterSize:     10,
		FooterRight:    8.0 * inch,
		FooterBaseline: 0.5 * inch,

		KeyColumnWidth:   2.5 * inch,
		ValueColumnWidth: 4.5 * inch,
		CellPaddingX:     6,
		CellPaddingY:     4,
		GridLineWidth:    0.5,
		TableSpacing:     0.12 * inch,

		PhotoMaxWidth:     6.0 * inch,
		SignatureMaxWidth: 1.5 * inch,
		ProfileMaxWidth:   2.5 * inch,
	}
}

// leading returns the line height of a text style.
func (ts TextStyle) leading() float64 {
	if ts.Leading > 0 {
		return ts.Leading
	}
	return ts.Size * 1.2
}

func (ts TextStyle) fontStyle() string {
	if ts.Bold {
		return "B"
	}
	return ""
}

// styleOverrides is the YAML document accepted by LoadStyle.
type styleOverrides struct {
	Letterhead []string `yaml:"letterhead"`
	Title      string   `yaml:"title"`
	Font       *struct {
		Family  string `yaml:"family"`
		Regular string `yaml:"regular"`
		Bold    string `yaml:"bold"`
	} `yaml:"font"`
}

// LoadStyle returns the default style with the letterhead and title replaced
// by the values found in the YAML file at path. An empty path yields the
// default style.
//
// A font section embeds a TrueType family for text outside cp1252. Its file
// paths are relative to the YAML file and are read here, so a bad path fails
// at start-up rather than on the first report.
func LoadStyle(path string) (*Style, error) {
	style := DefaultStyle()
	if path == "" {
		return style, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style config: %w", err)
	}
	var o styleOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse style config %s: %w", path, err)
	}

	if len(o.Letterhead) > 0 {
		style.Letterhead = o.Letterhead
	}
	if o.Title != "" {
		style.Title = o.Title
	}
	if o.Font != nil {
		if err := loadFont(style, filepath.Dir(path), o.Font.Family, o.Font.Regular, o.Font.Bold); err != nil {
			return nil, fmt.Errorf("style config %s: %w", path, err)
		}
	}
	return style, nil
}

func loadFont(style *Style, dir, family, regular, bold string) error {
	if regular == "" {
		return fmt.Errorf("font.regular is required")
	}
	read := func(name string) ([]byte, error) {
		if name == "" {
			return nil, nil
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read font: %w", err)
		}
		return data, nil
	}

	files := &FontFiles{}
	var err error
	if files.Regular, err = read(regular); err != nil {
		return err
	}
	if files.Bold, err = read(bold); err != nil {
		return err
	}
	if family == "" {
		family = "ReportSerif"
	}
	style.FontFamily = family
	style.Font = files
	return nil
}
