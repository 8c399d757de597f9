package report

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Lllllllleong/activityreport/internal/models"
	"github.com/go-pdf/fpdf"
)

// Renderer turns report records into PDF documents. It holds no per-call
// state and may be shared between goroutines.
type Renderer struct {
	style    *Style
	logger   *slog.Logger
	now      func() time.Time
	compress bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger used for degraded paths.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithClock sets the source of the document creation date.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithCompression toggles stream compression. It is on by default.
func WithCompression(on bool) Option {
	return func(r *Renderer) { r.compress = on }
}

// NewRenderer returns a renderer using style, which must not be modified
// afterwards. A nil style selects DefaultStyle.
func NewRenderer(style *Style, opts ...Option) *Renderer {
	if style == nil {
		style = DefaultStyle()
	}
	r := &Renderer{
		style:    style,
		logger:   slog.Default(),
		now:      time.Now,
		compress: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Style returns the style the renderer was built with.
func (r *Renderer) Style() *Style { return r.style }

// Render lays out rec and returns the finished PDF. It either returns the
// whole document or an error, never a partial one.
func (r *Renderer) Render(rec *models.ReportRecord) ([]byte, error) {
	blocks := BuildBlocks(r.style, r.logger, rec)
	return r.Paginate(blocks, documentTitle(r.style, rec))
}

// Paginate places blocks on A4 pages with a "Page N" footer on every page
// and writes the document into a new buffer.
func (r *Renderer) Paginate(blocks []Block, title string) ([]byte, error) {
	p := newPager(r.style)
	p.doc.SetCompression(r.compress)

	created := r.now()
	p.doc.SetCreationDate(created)
	p.doc.SetModificationDate(created)
	p.doc.SetTitle(title, true)
	p.doc.SetCreator("activityreport", true)

	p.doc.AddPage()
	for _, b := range blocks {
		switch b := b.(type) {
		case Paragraph:
			p.paragraph(b)
		case Table:
			p.table(b)
		case Image:
			p.image(b)
		case Spacer:
			p.spacer(b)
		case PageBreak:
			p.doc.AddPage()
		default:
			return nil, fmt.Errorf("report: unknown block %T", b)
		}
		if err := p.doc.Error(); err != nil {
			return nil, fmt.Errorf("report: render failed: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := p.doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func documentTitle(style *Style, rec *models.ReportRecord) string {
	if t := rec.ActivityType(); t != "" {
		return style.Title + ": " + t
	}
	return style.Title
}

// pager wraps one fpdf document for the duration of a Paginate call.
type pager struct {
	doc   *fpdf.Fpdf
	style *Style
	tr    func(string) string

	// unicode is set when text is drawn in an embedded UTF-8 font.
	unicode bool

	left, top, contentWidth, bottom float64
}

func newPager(style *Style) *pager {
	doc := fpdf.New("P", "pt", style.PageSize, "")
	doc.SetMargins(style.Margin, style.Margin, style.Margin)
	doc.SetAutoPageBreak(true, style.Margin)
	doc.SetCellMargin(0)
	doc.SetCatalogSort(true)

	pageW, pageH := doc.GetPageSize()
	p := &pager{
		doc:          doc,
		style:        style,
		tr:           doc.UnicodeTranslatorFromDescriptor(""),
		left:         style.Margin,
		top:          style.Margin,
		contentWidth: pageW - 2*style.Margin,
		bottom:       pageH - style.Margin,
	}
	if f := style.Font; f != nil {
		bold := f.Bold
		if len(bold) == 0 {
			bold = f.Regular
		}
		doc.AddUTF8FontFromBytes(style.FontFamily, "", f.Regular)
		doc.AddUTF8FontFromBytes(style.FontFamily, "B", bold)
		p.tr = basicPlane
		p.unicode = true
	}
	doc.SetFooterFunc(p.footer)
	return p
}

// basicPlane replaces characters outside the Basic Multilingual Plane, which
// embedded fonts are not subset for.
func basicPlane(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return '\uFFFD'
		}
		return r
	}, s)
}

// footer draws the right-aligned page number. fpdf calls it once for every
// finished page.
func (p *pager) footer() {
	_, pageH := p.doc.GetPageSize()
	text := fmt.Sprintf("Page %d", p.doc.PageNo())
	p.doc.SetFont(p.style.FontFamily, "", p.style.FooterSize)
	p.doc.SetTextColor(0, 0, 0)
	w := p.doc.GetStringWidth(text)
	p.doc.Text(p.style.FooterRight-w, pageH-p.style.FooterBaseline, text)
}

func (p *pager) setFont(ts TextStyle) {
	p.doc.SetFont(p.style.FontFamily, ts.fontStyle(), ts.Size)
}

func (p *pager) paragraph(par Paragraph) {
	ts := par.Style
	if ts.SpaceBefore > 0 && p.doc.GetY() > p.top {
		p.doc.Ln(ts.SpaceBefore)
	}
	p.setFont(ts)
	p.doc.SetX(p.left)
	p.doc.MultiCell(p.contentWidth, ts.leading(), p.tr(par.Text), "", ts.Align, false)
	if ts.SpaceAfter > 0 {
		p.doc.Ln(ts.SpaceAfter)
	}
}

func (p *pager) spacer(s Spacer) {
	y := p.doc.GetY()
	if y <= p.top || y+s.Height > p.bottom {
		return
	}
	p.doc.Ln(s.Height)
}

// table draws a bordered key-value grid. Rows move to the next page when they
// do not fit; rows taller than a page continue on the following one.
func (p *pager) table(t Table) {
	st := p.style
	keyW, valW := st.KeyColumnWidth, st.ValueColumnWidth
	p.doc.SetLineWidth(st.GridLineWidth)
	p.doc.SetDrawColor(0, 0, 0)
	p.doc.SetTextColor(0, 0, 0)

	lead := max(st.TableKey.leading(), st.TableValue.leading())
	pageRoom := p.bottom - p.top

	for _, row := range t.Rows {
		p.setFont(st.TableKey)
		keyLines := p.splitLines(row.Label, keyW-2*st.CellPaddingX)
		p.setFont(st.TableValue)
		valLines := p.splitLines(row.Value, valW-2*st.CellPaddingX)

		for len(keyLines) > 0 || len(valLines) > 0 {
			n := max(len(keyLines), len(valLines))
			need := float64(n)*lead + 2*st.CellPaddingY
			y := p.doc.GetY()
			if y+need > p.bottom && (need <= pageRoom || y+lead+2*st.CellPaddingY > p.bottom) {
				p.doc.AddPage()
				y = p.doc.GetY()
			}
			if fit := int((p.bottom - y - 2*st.CellPaddingY) / lead); n > fit {
				n = fit
			}

			h := float64(n)*lead + 2*st.CellPaddingY
			p.doc.Rect(p.left, y, keyW, h, "D")
			p.doc.Rect(p.left+keyW, y, valW, h, "D")

			keyLines = p.cellLines(st.TableKey, keyLines, n, p.left, y, keyW)
			valLines = p.cellLines(st.TableValue, valLines, n, p.left+keyW, y, valW)
			p.doc.SetXY(p.left, y+h)
		}
	}
}

// cellLines writes up to n lines top-aligned in the cell at (x, y) and returns
// the lines that did not fit.
func (p *pager) cellLines(ts TextStyle, lines []string, n int, x, y, width float64) []string {
	if n > len(lines) {
		n = len(lines)
	}
	p.setFont(ts)
	pad := p.style.CellPaddingX
	lead := ts.leading()
	for i, line := range lines[:n] {
		p.doc.SetXY(x+pad, y+p.style.CellPaddingY+float64(i)*lead)
		p.doc.CellFormat(width-2*pad, lead, line, "", 0, "L", false, 0, "")
	}
	return lines[n:]
}

// splitLines wraps text to width in the current font. The result always holds
// at least one line.
func (p *pager) splitLines(text string, width float64) []string {
	var lines []string
	if p.unicode {
		lines = p.wrapRunes(p.tr(text), width)
	} else {
		for _, l := range p.doc.SplitLines([]byte(p.tr(text)), width) {
			lines = append(lines, strings.TrimRight(string(l), " "))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "")
	}
	return lines
}

// wrapRunes wraps UTF-8 text at spaces, breaking words wider than width
// between characters. SplitLines measures bytes and cannot be used for it.
func (p *pager) wrapRunes(text string, width float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if p.doc.GetStringWidth(candidate) <= width {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			for word != "" && p.doc.GetStringWidth(word) > width {
				head := p.fitRunes(word, width)
				lines = append(lines, head)
				word = word[len(head):]
			}
			line = word
		}
		lines = append(lines, line)
	}
	return lines
}

// fitRunes returns the longest prefix of word, at least one character, that
// fits in width.
func (p *pager) fitRunes(word string, width float64) string {
	end := 0
	for end < len(word) {
		_, size := utf8.DecodeRuneInString(word[end:])
		if end > 0 && p.doc.GetStringWidth(word[:end+size]) > width {
			break
		}
		end += size
	}
	return word[:end]
}

// image draws img centered. Images taller than the free space start a new
// page and are shrunk to the content height when needed.
func (p *pager) image(img Image) {
	w, h := img.Width, img.Height
	if maxH := p.bottom - p.top; h > maxH {
		w *= maxH / h
		h = maxH
	}
	if p.doc.GetY()+h > p.bottom {
		p.doc.AddPage()
	}

	y := p.doc.GetY()
	x := p.left + (p.contentWidth-w)/2
	opts := fpdf.ImageOptions{ImageType: img.Type}
	p.doc.ImageOptions(img.Path, x, y, w, h, false, opts, 0, "")
	p.doc.SetXY(p.left, y+h)
}
