package report

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Lllllllleong/activityreport/internal/models"
)

func TestLoadStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.yaml")
	writeFile(t, path, `
letterhead:
  - Example Institute of Technology
  - Faculty of Computing
title: Event Report
`)

	style, err := LoadStyle(path)
	if err != nil {
		t.Fatalf("LoadStyle() error = %v", err)
	}
	want := []string{"Example Institute of Technology", "Faculty of Computing"}
	if !reflect.DeepEqual(style.Letterhead, want) {
		t.Errorf("Letterhead = %v, want %v", style.Letterhead, want)
	}
	if style.Title != "Event Report" {
		t.Errorf("Title = %q", style.Title)
	}
	if style.Margin != DefaultStyle().Margin {
		t.Errorf("Margin = %v, want the default", style.Margin)
	}
}

func TestLoadStyleDefaults(t *testing.T) {
	style, err := LoadStyle("")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(style, DefaultStyle()) {
		t.Error("empty path did not return the default style")
	}

	path := filepath.Join(t.TempDir(), "partial.yaml")
	writeFile(t, path, "title: Seminar Report\n")
	style, err = LoadStyle(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(style.Letterhead, DefaultStyle().Letterhead) {
		t.Errorf("Letterhead = %v, want the default", style.Letterhead)
	}
}

func TestLoadStyleErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "letterhead: [unterminated\n")

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), bad} {
		if _, err := LoadStyle(path); err == nil {
			t.Errorf("LoadStyle(%q) error = nil", path)
		}
	}
}

func TestRenderUsesStyleLetterhead(t *testing.T) {
	style := DefaultStyle()
	style.Letterhead = []string{"Example Institute of Technology"}

	pdf, err := NewRenderer(style, WithLogger(quietLogger()), WithCompression(false)).Render(&models.ReportRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(pdf, []byte("Example Institute of Technology")) {
		t.Error("custom letterhead not rendered")
	}
	if bytes.Contains(pdf, []byte("School of Engineering")) {
		t.Error("default letterhead still rendered")
	}
}

// systemSerif returns the path of a TrueType serif font installed on the
// machine, skipping the test when there is none.
func systemSerif(t *testing.T) string {
	t.Helper()
	for _, path := range []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSerif.ttf",
		"/usr/share/fonts/dejavu/DejaVuSerif.ttf",
		"/usr/share/fonts/TTF/DejaVuSerif.ttf",
	} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("no TrueType serif font installed")
	return ""
}

func TestLoadStyleFont(t *testing.T) {
	ttf := systemSerif(t)
	dir := t.TempDir()
	data, err := os.ReadFile(ttf)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "serif.ttf"), string(data))
	path := filepath.Join(dir, "style.yaml")
	writeFile(t, path, "font:\n  family: ReportSerif\n  regular: serif.ttf\n")

	style, err := LoadStyle(path)
	if err != nil {
		t.Fatalf("LoadStyle() error = %v", err)
	}
	if style.FontFamily != "ReportSerif" || style.Font == nil {
		t.Fatalf("font not configured: family %q", style.FontFamily)
	}
	if !bytes.Equal(style.Font.Regular, data) || style.Font.Bold != nil {
		t.Error("font files not read as configured")
	}
}

func TestLoadStyleFontErrors(t *testing.T) {
	dir := t.TempDir()
	for name, doc := range map[string]string{
		"missing-file.yaml":    "font:\n  regular: nowhere.ttf\n",
		"missing-regular.yaml": "font:\n  bold: serif-bold.ttf\n",
	} {
		path := filepath.Join(dir, name)
		writeFile(t, path, doc)
		if _, err := LoadStyle(path); err == nil {
			t.Errorf("LoadStyle(%s) error = nil", name)
		}
	}
}

func TestRenderEmbeddedFontKeepsNonLatinText(t *testing.T) {
	data, err := os.ReadFile(systemSerif(t))
	if err != nil {
		t.Fatal(err)
	}
	style := DefaultStyle()
	style.FontFamily = "ReportSerif"
	style.Font = &FontFiles{Regular: data}

	rec := &models.ReportRecord{
		GeneralInfo: models.Fields{
			{Label: models.LabelActivityType, Value: "Семинар"},
			{Label: models.LabelVenue, Value: strings.Repeat("Αίθουσα συνεδριάσεων ", 20)},
		},
		Synopsis: models.Synopsis{Highlights: "Ελληνικά και кириллица 𝄞"},
	}
	pdf, err := NewRenderer(style, WithLogger(quietLogger()), WithClock(fixedClock), WithCompression(false)).Render(rec)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.Contains(pdf, []byte("FontFile2")) {
		t.Error("TrueType font not embedded")
	}
	if n := pageCount(t, pdf); n < 1 {
		t.Errorf("pageCount = %d", n)
	}
}

func TestWrapRunesFitsWidth(t *testing.T) {
	data, err := os.ReadFile(systemSerif(t))
	if err != nil {
		t.Fatal(err)
	}
	style := DefaultStyle()
	style.FontFamily = "ReportSerif"
	style.Font = &FontFiles{Regular: data}
	p := newPager(style)
	p.doc.AddPage()
	p.setFont(style.TableValue)

	const width = 120.0
	text := "Αίθουσα συνεδριάσεων " + strings.Repeat("Щ", 80) + "\nВторая строка"
	lines := p.splitLines(text, width)
	if len(lines) < 4 {
		t.Fatalf("splitLines() = %q, want the long word broken", lines)
	}
	for _, l := range lines {
		if w := p.doc.GetStringWidth(l); w > width {
			t.Errorf("line %q is %.1fpt wide, limit %.0f", l, w, width)
		}
	}
	if got := strings.Join(lines, ""); strings.ReplaceAll(got, " ", "") != strings.ReplaceAll(strings.ReplaceAll(text, "\n", ""), " ", "") {
		t.Errorf("text lost while wrapping: %q", got)
	}
	if lines[len(lines)-1] != "Вторая строка" {
		t.Errorf("last line = %q, want the second paragraph", lines[len(lines)-1])
	}
}
