package report

import (
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/Lllllllleong/activityreport/internal/models"
	"github.com/go-pdf/fpdf"
)

// Section titles, in document order.
const (
	SectionGeneral      = "General Information"
	SectionSpeakers     = "Speaker/Guest/Presenter Details"
	SectionParticipants = "Participants profile"
	SectionSynopsis     = "Synopsis of the Activity (Description)"
	SectionPreparers    = "Report prepared by"
	SectionProfile      = "Speaker Profile"
	SectionPhotos       = "Photos of the activity"

	noPhotosNotice = "No photos available."
	signatureLabel = "Digital Signature:"
)

// BuildBlocks lays out rec as an ordered list of blocks. Images that are
// missing or unreadable are left out; nothing here fails.
func BuildBlocks(style *Style, logger *slog.Logger, rec *models.ReportRecord) []Block {
	if logger == nil {
		logger = slog.Default()
	}
	b := &builder{style: style, logger: logger}

	general := ConsolidateSchedule(rec.GeneralInfo)

	b.letterhead()

	b.section(SectionGeneral)
	b.table(general)

	b.section(SectionSpeakers)
	for _, sp := range rec.Speakers {
		b.table(speakerFields(sp))
	}

	b.section(SectionParticipants)
	for _, p := range rec.Participants {
		b.table(models.Fields{
			{Label: "Type of Participants", Value: p.Type},
			{Label: "No. of Participants", Value: p.Count},
		})
	}

	b.section(SectionSynopsis)
	b.table(synopsisFields(rec.Synopsis))

	b.section(SectionPreparers)
	for _, p := range rec.Preparers {
		b.preparer(p)
	}

	b.section(SectionProfile)
	b.profile(rec.SpeakerProfile)

	b.photos(general, rec.Photos)

	return b.blocks
}

type builder struct {
	style  *Style
	logger *slog.Logger
	blocks []Block
}

func (b *builder) add(blocks ...Block) {
	b.blocks = append(b.blocks, blocks...)
}

func (b *builder) letterhead() {
	for i, line := range b.style.Letterhead {
		ts := b.style.HeaderSub
		if i == 0 {
			ts = b.style.HeaderMain
		}
		b.add(Paragraph{Text: line, Style: ts})
	}
	b.add(Spacer{Height: 0.3 * inch})
	b.add(Paragraph{Text: b.style.Title, Style: b.style.ReportTitle})
	b.add(Spacer{Height: 0.2 * inch})
}

func (b *builder) section(title string) {
	b.add(Paragraph{Text: title, Style: b.style.SectionTitle})
}

// table adds the non-empty entries of fs as a table. Nothing is added when no
// entry is left.
func (b *builder) table(fs models.Fields) {
	rows := fs.Compact()
	if len(rows) == 0 {
		return
	}
	b.add(Table{Rows: rows}, Spacer{Height: b.style.TableSpacing})
}

func (b *builder) preparer(p models.Preparer) {
	b.table(models.Fields{
		{Label: "Name of the Organiser", Value: p.Name},
		{Label: "Designation/Title", Value: p.Designation},
	})
	if p.SignaturePath == "" {
		return
	}
	if img, ok := b.image(p.SignaturePath, b.style.SignatureMaxWidth); ok {
		b.add(
			Paragraph{Text: signatureLabel, Style: b.style.TableKey},
			img,
			Spacer{Height: 0.2 * inch},
		)
	}
}

func (b *builder) profile(p models.SpeakerProfile) {
	if p.Bio != "" {
		b.add(Paragraph{Text: p.Bio, Style: b.style.NormalText}, Spacer{Height: 0.15 * inch})
	}
	if p.ImagePath == "" {
		return
	}
	if img, ok := b.image(p.ImagePath, b.style.ProfileMaxWidth); ok {
		b.add(img, Spacer{Height: 0.15 * inch})
	}
}

func (b *builder) photos(general models.Fields, photos []string) {
	if len(photos) == 0 {
		b.add(Paragraph{Text: noPhotosNotice, Style: b.style.NormalText})
		return
	}

	b.add(PageBreak{})
	b.add(Paragraph{Text: SectionPhotos, Style: b.style.PhotoHeading})
	b.add(Paragraph{Text: PhotoCaption(general), Style: b.style.PhotoHeading})
	b.add(Spacer{Height: 0.2 * inch})

	for _, path := range photos {
		if img, ok := b.image(path, b.style.PhotoMaxWidth); ok {
			b.add(img, Spacer{Height: 0.25 * inch})
		}
	}
}

// PhotoCaption is the second heading line of the photo pages, built from the
// consolidated general information.
func PhotoCaption(general models.Fields) string {
	title := general.Value(models.LabelActivityTitle)
	if title == "" {
		title = general.Value(models.LabelActivityType)
	}
	return fmt.Sprintf("(%s%s%s)", title, rangeSeparator, general.Value(models.LabelDates))
}

// image returns an Image block no wider than maxWidth points, or false when
// the file is missing or cannot be embedded.
func (b *builder) image(path string, maxWidth float64) (Image, bool) {
	if _, err := os.Stat(path); err != nil {
		b.logger.Warn("Skipping missing image.", "path", path)
		return Image{}, false
	}
	typ, w, h, err := probeImage(path)
	if err != nil {
		b.logger.Warn("Skipping unreadable image.", "path", path, "error", err)
		return Image{}, false
	}
	if w > maxWidth {
		h *= maxWidth / w
		w = maxWidth
	}
	return Image{Path: path, Type: typ, Width: w, Height: h}, true
}

// probeImage sniffs the image format from the file content, then parses the
// image with the layout engine itself, so anything it accepts here is
// accepted again when the page is drawn. Sizes are in points at 72 dpi.
func probeImage(path string) (string, float64, float64, error) {
	typ, err := sniffImageType(path)
	if err != nil {
		return "", 0, 0, err
	}
	doc := fpdf.New("P", "pt", "A4", "")
	info := doc.RegisterImageOptions(path, fpdf.ImageOptions{ImageType: typ})
	if err := doc.Error(); err != nil {
		return "", 0, 0, err
	}
	if info == nil || info.Width() <= 0 || info.Height() <= 0 {
		return "", 0, 0, fmt.Errorf("image %s has no size", path)
	}
	return typ, info.Width(), info.Height(), nil
}

// sniffImageType maps the decoded format of the file at path to an fpdf image
// type. File names are ignored: uploads may lose or misstate their extension.
func sniffImageType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("could not read image header: %w", err)
	}
	switch format {
	case "jpeg":
		return "jpg", nil
	case "png", "gif":
		return format, nil
	}
	return "", fmt.Errorf("unsupported image format %q", format)
}

func speakerFields(sp models.Speaker) models.Fields {
	return models.Fields{
		{Label: "Name", Value: sp.Name},
		{Label: "Title/Position", Value: sp.Title},
		{Label: "Organization", Value: sp.Organization},
		{Label: "Contact Info", Value: sp.Contact},
		{Label: "Title of Presentation", Value: sp.PresentationTitle},
	}
}

func synopsisFields(s models.Synopsis) models.Fields {
	return models.Fields{
		{Label: "Highlights of the Activity", Value: s.Highlights},
		{Label: "Key Takeaways", Value: s.KeyTakeaways},
		{Label: "Summary of the Activity", Value: s.Summary},
		{Label: "Follow-up plan", Value: s.FollowUp},
	}
}
