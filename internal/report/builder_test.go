package report

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Lllllllleong/activityreport/internal/models"
)

// sampleRecord is the workshop used across the renderer tests. Its two photos
// are written into dir.
func sampleRecord(t *testing.T, dir string) *models.ReportRecord {
	t.Helper()
	return &models.ReportRecord{
		GeneralInfo: models.Fields{
			{Label: models.LabelActivityType, Value: "Workshop"},
			{Label: models.LabelStartDate, Value: "2025-03-05"},
			{Label: models.LabelEndDate, Value: "2025-03-05"},
			{Label: models.LabelVenue, Value: "Auditorium"},
		},
		Speakers:     []models.Speaker{{Name: "Dr. A"}},
		Participants: []models.ParticipantGroup{{Type: "Students", Count: "40"}},
		Preparers:    []models.Preparer{{Name: "J. Doe", Designation: "Coordinator"}},
		Photos: []string{
			writeTestImage(t, dir, "photo1.png", 864, 432),
			writeTestImage(t, dir, "photo2.jpg", 600, 800),
		},
	}
}

// sectionBlocks returns the blocks between the heading title and the next
// section heading or page break.
func sectionBlocks(blocks []Block, title string) []Block {
	start := -1
	for i, b := range blocks {
		if _, ok := b.(PageBreak); ok && start >= 0 {
			return blocks[start:i]
		}
		p, ok := b.(Paragraph)
		if !ok || p.Style != DefaultStyle().SectionTitle {
			continue
		}
		if start >= 0 {
			return blocks[start:i]
		}
		if p.Text == title {
			start = i + 1
		}
	}
	if start < 0 {
		return nil
	}
	return blocks[start:]
}

func tables(blocks []Block) []Table {
	var out []Table
	for _, b := range blocks {
		if tb, ok := b.(Table); ok {
			out = append(out, tb)
		}
	}
	return out
}

func images(blocks []Block) []Image {
	var out []Image
	for _, b := range blocks {
		if img, ok := b.(Image); ok {
			out = append(out, img)
		}
	}
	return out
}

func TestBuildBlocksLetterhead(t *testing.T) {
	style := DefaultStyle()
	blocks := BuildBlocks(style, quietLogger(), &models.ReportRecord{})

	for i, line := range style.Letterhead {
		p, ok := blocks[i].(Paragraph)
		if !ok || p.Text != line {
			t.Fatalf("block %d = %#v, want letterhead line %q", i, blocks[i], line)
		}
		if p.Style.Align != "C" {
			t.Errorf("letterhead line %d is not centered", i)
		}
	}
	if p, ok := blocks[len(style.Letterhead)+1].(Paragraph); !ok || p.Text != "Activity Report" {
		t.Errorf("title block = %#v", blocks[len(style.Letterhead)+1])
	}
}

func TestBuildBlocksSectionOrder(t *testing.T) {
	rec := sampleRecord(t, t.TempDir())
	blocks := BuildBlocks(DefaultStyle(), quietLogger(), rec)

	var got []string
	for _, b := range blocks {
		if p, ok := b.(Paragraph); ok && p.Style == DefaultStyle().SectionTitle {
			got = append(got, p.Text)
		}
	}
	want := []string{SectionGeneral, SectionSpeakers, SectionParticipants, SectionSynopsis, SectionPreparers, SectionProfile}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sections = %v, want %v", got, want)
	}
}

func TestBuildBlocksGeneralInformation(t *testing.T) {
	rec := sampleRecord(t, t.TempDir())
	rec.GeneralInfo = append(rec.GeneralInfo,
		models.Field{Label: models.LabelCollaboration, Value: ""},
		models.Field{Label: models.LabelStartTime, Value: "10:00"},
		models.Field{Label: models.LabelEndTime, Value: "13:00"},
	)

	tbs := tables(sectionBlocks(BuildBlocks(DefaultStyle(), quietLogger(), rec), SectionGeneral))
	if len(tbs) != 1 {
		t.Fatalf("general section has %d tables, want 1", len(tbs))
	}
	want := models.Fields{
		{Label: models.LabelActivityType, Value: "Workshop"},
		{Label: models.LabelVenue, Value: "Auditorium"},
		{Label: models.LabelDates, Value: "05 March 2025"},
		{Label: models.LabelTime, Value: "10:00 – 13:00"},
	}
	if !reflect.DeepEqual(tbs[0].Rows, want) {
		t.Errorf("rows = %v, want %v", tbs[0].Rows, want)
	}
	if v := rec.GeneralInfo.Value(models.LabelStartDate); v != "2025-03-05" {
		t.Errorf("record was modified, start date = %q", v)
	}
}

func TestBuildBlocksOneTablePerEntry(t *testing.T) {
	rec := sampleRecord(t, t.TempDir())
	rec.Speakers = []models.Speaker{
		{Name: "Dr. A", Organization: "Acme"},
		{Name: "Dr. B", Title: "Professor", Contact: "b@example.org", PresentationTitle: "Graphs"},
	}
	rec.Participants = []models.ParticipantGroup{{Type: "Students", Count: "40"}, {Type: "Faculty", Count: "about 5"}}
	blocks := BuildBlocks(DefaultStyle(), quietLogger(), rec)

	speakers := tables(sectionBlocks(blocks, SectionSpeakers))
	if len(speakers) != 2 {
		t.Fatalf("speaker tables = %d, want 2", len(speakers))
	}
	wantB := models.Fields{
		{Label: "Name", Value: "Dr. B"},
		{Label: "Title/Position", Value: "Professor"},
		{Label: "Contact Info", Value: "b@example.org"},
		{Label: "Title of Presentation", Value: "Graphs"},
	}
	if !reflect.DeepEqual(speakers[1].Rows, wantB) {
		t.Errorf("second speaker rows = %v, want %v", speakers[1].Rows, wantB)
	}

	groups := tables(sectionBlocks(blocks, SectionParticipants))
	if len(groups) != 2 {
		t.Fatalf("participant tables = %d, want 2", len(groups))
	}
	if got := groups[1].Rows.Value("No. of Participants"); got != "about 5" {
		t.Errorf("participant count = %q, want free text kept", got)
	}
}

func TestBuildBlocksSynopsis(t *testing.T) {
	rec := sampleRecord(t, t.TempDir())

	if tbs := tables(sectionBlocks(BuildBlocks(DefaultStyle(), quietLogger(), rec), SectionSynopsis)); len(tbs) != 0 {
		t.Errorf("empty synopsis produced %d tables", len(tbs))
	}

	rec.Synopsis = models.Synopsis{FollowUp: "Hackathon in May", Highlights: "Live demos"}
	tbs := tables(sectionBlocks(BuildBlocks(DefaultStyle(), quietLogger(), rec), SectionSynopsis))
	if len(tbs) != 1 {
		t.Fatalf("synopsis tables = %d, want 1", len(tbs))
	}
	want := models.Fields{
		{Label: "Highlights of the Activity", Value: "Live demos"},
		{Label: "Follow-up plan", Value: "Hackathon in May"},
	}
	if !reflect.DeepEqual(tbs[0].Rows, want) {
		t.Errorf("synopsis rows = %v, want %v", tbs[0].Rows, want)
	}
}

func TestBuildBlocksPreparerSignature(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord(t, dir)
	rec.Preparers = []models.Preparer{
		{Name: "J. Doe", Designation: "Coordinator", SignaturePath: writeTestImage(t, dir, "sig.png", 432, 144)},
		{Name: "K. Roe", SignaturePath: filepath.Join(dir, "missing.png")},
	}
	section := sectionBlocks(BuildBlocks(DefaultStyle(), quietLogger(), rec), SectionPreparers)

	// table, spacer, label, signature, spacer, table, spacer
	if len(section) != 7 {
		t.Fatalf("preparer section has %d blocks, want 7: %#v", len(section), section)
	}
	if p, ok := section[2].(Paragraph); !ok || p.Text != signatureLabel {
		t.Errorf("block 2 = %#v, want signature label", section[2])
	}
	sig, ok := section[3].(Image)
	if !ok {
		t.Fatalf("block 3 = %#v, want signature image", section[3])
	}
	if sig.Width != 1.5*inch || sig.Height != 0.5*inch {
		t.Errorf("signature size = %vx%v, want %vx%v", sig.Width, sig.Height, 1.5*inch, 0.5*inch)
	}
	if _, ok := section[5].(Table); !ok {
		t.Errorf("block 5 = %#v, want second preparer table", section[5])
	}
}

func TestBuildBlocksSpeakerProfile(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord(t, dir)
	rec.SpeakerProfile = models.SpeakerProfile{
		Bio:       "Researcher in distributed systems.",
		ImagePath: writeTestImage(t, dir, "speaker.jpg", 120, 160),
	}
	section := sectionBlocks(BuildBlocks(DefaultStyle(), quietLogger(), rec), SectionProfile)

	if p, ok := section[0].(Paragraph); !ok || p.Text != rec.SpeakerProfile.Bio {
		t.Errorf("first profile block = %#v, want bio", section[0])
	}
	imgs := images(section)
	if len(imgs) != 1 {
		t.Fatalf("profile images = %d, want 1", len(imgs))
	}
	if imgs[0].Width != 120 || imgs[0].Height != 160 {
		t.Errorf("profile image = %vx%v, want natural size 120x160", imgs[0].Width, imgs[0].Height)
	}
}

func TestBuildBlocksPhotos(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord(t, dir)
	rec.Photos = append(rec.Photos, filepath.Join(dir, "gone.png"))
	blocks := BuildBlocks(DefaultStyle(), quietLogger(), rec)

	brk := -1
	for i, b := range blocks {
		if _, ok := b.(PageBreak); ok {
			brk = i
		}
	}
	if brk < 0 {
		t.Fatal("no page break before the photos")
	}
	photos := blocks[brk+1:]
	if p, ok := photos[0].(Paragraph); !ok || p.Text != SectionPhotos {
		t.Errorf("first photo block = %#v, want heading", photos[0])
	}
	if p, ok := photos[1].(Paragraph); !ok || p.Text != "(Workshop – 05 March 2025)" {
		t.Errorf("photo caption = %#v", photos[1])
	}

	imgs := images(photos)
	if len(imgs) != 2 {
		t.Fatalf("photo images = %d, want 2 (missing file skipped)", len(imgs))
	}
	want := []struct {
		path string
		w, h float64
	}{
		{rec.Photos[0], 432, 216},
		{rec.Photos[1], 432, 576},
	}
	for i, w := range want {
		got := imgs[i]
		if got.Path != w.path || math.Abs(got.Width-w.w) > 1e-6 || math.Abs(got.Height-w.h) > 1e-6 {
			t.Errorf("photo %d = %+v, want %s at %vx%v", i, got, w.path, w.w, w.h)
		}
	}
}

func TestBuildBlocksWithoutPhotos(t *testing.T) {
	rec := sampleRecord(t, t.TempDir())
	rec.Photos = nil
	blocks := BuildBlocks(DefaultStyle(), quietLogger(), rec)

	for _, b := range blocks {
		if _, ok := b.(PageBreak); ok {
			t.Fatal("page break emitted without photos")
		}
	}
	last, ok := blocks[len(blocks)-1].(Paragraph)
	if !ok || last.Text != noPhotosNotice {
		t.Errorf("last block = %#v, want the no-photos notice", blocks[len(blocks)-1])
	}
}

func TestPhotoCaptionPrefersTitle(t *testing.T) {
	general := models.Fields{
		{Label: models.LabelActivityType, Value: "Seminar"},
		{Label: models.LabelActivityTitle, Value: "Intro to Go"},
		{Label: models.LabelDates, Value: "05 March 2025 – 06 March 2025"},
	}
	got := PhotoCaption(general)
	if !strings.HasPrefix(got, "(Intro to Go – ") || !strings.HasSuffix(got, "06 March 2025)") {
		t.Errorf("PhotoCaption() = %q", got)
	}
}

func TestBuildBlocksSkipsUnreadableImage(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord(t, dir)
	broken := filepath.Join(dir, "broken.png")
	writeFile(t, broken, "PNG? no")
	rec.Photos = []string{broken, rec.Photos[0]}

	imgs := images(BuildBlocks(DefaultStyle(), quietLogger(), rec))
	if len(imgs) != 1 || imgs[0].Path != rec.Photos[1] {
		t.Errorf("images = %+v, want only the readable photo", imgs)
	}
}

func TestBuildBlocksDetectsImageTypeFromContent(t *testing.T) {
	dir := t.TempDir()
	rename := func(from, to string) string {
		t.Helper()
		dst := filepath.Join(dir, to)
		if err := os.Rename(from, dst); err != nil {
			t.Fatal(err)
		}
		return dst
	}
	mislabeled := rename(writeTestImage(t, dir, "a.jpg", 300, 200), "jpeg-bytes.png")
	bare := rename(writeTestImage(t, dir, "b.png", 200, 300), "1741166400123_ab12cd34_png")

	rec := sampleRecord(t, dir)
	rec.Photos = []string{mislabeled, bare}
	blocks := BuildBlocks(DefaultStyle(), quietLogger(), rec)

	imgs := images(blocks)
	if len(imgs) != 2 {
		t.Fatalf("photo images = %d, want both photos kept", len(imgs))
	}
	if imgs[0].Type != "jpg" || imgs[1].Type != "png" {
		t.Errorf("types = %q, %q; want jpg, png", imgs[0].Type, imgs[1].Type)
	}

	pdf, err := NewRenderer(nil, WithLogger(quietLogger())).Paginate(blocks, "x")
	if err != nil {
		t.Fatalf("Paginate() error = %v", err)
	}
	if n := pageCount(t, pdf); n < 2 {
		t.Errorf("page count = %d", n)
	}
}
