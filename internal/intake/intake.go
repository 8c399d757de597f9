// Package intake turns a submitted activity report form into a ReportRecord.
// Uploaded images are stored on local disk and normalized before the record
// is handed to the renderer.
package intake

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/activityreport/internal/gcp"
	"github.com/Lllllllleong/activityreport/internal/models"
	"github.com/Lllllllleong/activityreport/internal/report"
	"github.com/google/uuid"
)

// MaxUploadBytes bounds the size of a whole form submission.
const MaxUploadBytes = 50 << 20

// Upload subdirectories.
const (
	SignatureDir = "signatures"
	SpeakerDir   = "speaker"
	PhotoDir     = "photos"
)

var allowedImageExts = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// Config controls where uploads are written.
type Config struct {
	UploadDir string
	Logger    *slog.Logger
	Now       func() time.Time
}

// ConfigFromEnv reads UPLOAD_DIR, defaulting to a directory under the system
// temp dir.
func ConfigFromEnv() Config {
	return Config{
		UploadDir: gcp.GetEnv("UPLOAD_DIR", filepath.Join(os.TempDir(), "activityreport-uploads")),
	}
}

// generalFields maps form keys to the general information labels, in the
// order the table shows them.
var generalFields = []struct {
	key, label string
}{
	{"activityTitle", models.LabelActivityTitle},
	{"activityType", models.LabelActivityType},
	{"subCategory", models.LabelSubCategory},
	{"startDate", models.LabelStartDate},
	{"endDate", models.LabelEndDate},
	{"startTime", models.LabelStartTime},
	{"endTime", models.LabelEndTime},
	{"venue", models.LabelVenue},
	{"collaboration", models.LabelCollaboration},
}

// Parse reads a multipart form submission. The record is not validated.
func Parse(r *http.Request, cfg Config) (*models.ReportRecord, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	p := &parser{form: r.MultipartForm, cfg: cfg}

	rec := &models.ReportRecord{
		GeneralInfo:  p.general(),
		Speakers:     p.speakers(),
		Participants: p.participants(),
		Synopsis: models.Synopsis{
			Highlights:   p.value("highlights"),
			KeyTakeaways: p.value("keyTakeaways"),
			Summary:      p.value("summary"),
			FollowUp:     p.value("followUp"),
		},
	}

	var err error
	if rec.Preparers, err = p.preparers(); err != nil {
		return nil, err
	}
	if rec.SpeakerProfile, err = p.speakerProfile(); err != nil {
		return nil, err
	}
	if rec.Photos, err = p.photos(); err != nil {
		return nil, err
	}
	return rec, nil
}

type parser struct {
	form *multipart.Form
	cfg  Config
}

func (p *parser) has(key string) bool {
	_, ok := p.form.Value[key]
	return ok
}

func (p *parser) value(key string) string {
	if vs := p.form.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func (p *parser) file(key string) *multipart.FileHeader {
	if fhs := p.form.File[key]; len(fhs) > 0 && fhs[0].Filename != "" {
		return fhs[0]
	}
	return nil
}

func (p *parser) general() models.Fields {
	var fs models.Fields
	for _, f := range generalFields {
		v := p.value(f.key)
		if f.key == "subCategory" && v == "" {
			v = p.value("otherSubCategory")
		}
		if v != "" {
			fs = append(fs, models.Field{Label: f.label, Value: v})
		}
	}
	return fs
}

// speakers reads speaker-name-0, speaker-name-1, ... until a key is absent.
// Blank names are skipped without ending the scan; the other indexed lists
// follow the same rule.
func (p *parser) speakers() []models.Speaker {
	var out []models.Speaker
	for i := 0; p.has(indexed("speaker-name", i)); i++ {
		name := p.value(indexed("speaker-name", i))
		if name == "" {
			continue
		}
		out = append(out, models.Speaker{
			Name:              name,
			Title:             p.value(indexed("speaker-title", i)),
			Organization:      p.value(indexed("speaker-org", i)),
			Contact:           p.value(indexed("speaker-contact", i)),
			PresentationTitle: p.value(indexed("speaker-presentation", i)),
		})
	}
	return out
}

func (p *parser) participants() []models.ParticipantGroup {
	var out []models.ParticipantGroup
	for i := 0; p.has(indexed("participant-type", i)); i++ {
		kind := p.value(indexed("participant-type", i))
		if kind == "" {
			continue
		}
		count := "0"
		if p.has(indexed("participant-count", i)) {
			count = p.value(indexed("participant-count", i))
		}
		out = append(out, models.ParticipantGroup{Type: kind, Count: count})
	}
	return out
}

func (p *parser) preparers() ([]models.Preparer, error) {
	var out []models.Preparer
	for i := 0; p.has(indexed("preparer-name", i)); i++ {
		name := p.value(indexed("preparer-name", i))
		if name == "" {
			continue
		}
		sig, err := p.saveImage(p.file(indexed("preparer-signature", i)), SignatureDir)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Preparer{
			Name:          name,
			Designation:   p.value(indexed("preparer-designation", i)),
			SignaturePath: sig,
		})
	}
	return out, nil
}

func (p *parser) speakerProfile() (models.SpeakerProfile, error) {
	img, err := p.saveImage(p.file("speakerImage"), SpeakerDir)
	if err != nil {
		return models.SpeakerProfile{}, err
	}
	return models.SpeakerProfile{Bio: p.value("speakerBio"), ImagePath: img}, nil
}

// photos reads photo1, photo2, ... until a key is missing. A file input left
// empty is sent as a part without a filename, which lands in the value map;
// it is skipped without ending the scan.
func (p *parser) photos() ([]string, error) {
	var out []string
	for i := 1; ; i++ {
		key := fmt.Sprintf("photo%d", i)
		if _, ok := p.form.File[key]; !ok && !p.has(key) {
			return out, nil
		}
		path, err := p.saveImage(p.file(key), PhotoDir)
		if err != nil {
			return nil, err
		}
		if path != "" {
			out = append(out, path)
		}
	}
}

func indexed(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i)
}

// saveImage stores an uploaded image under subdir and returns the path of its
// normalized version. Empty uploads and disallowed types yield "".
func (p *parser) saveImage(fh *multipart.FileHeader, subdir string) (string, error) {
	if fh == nil {
		return "", nil
	}
	if !AllowedImage(fh.Filename) {
		p.cfg.Logger.Warn("Ignoring upload with disallowed type.", "filename", fh.Filename)
		return "", nil
	}

	destDir := filepath.Join(p.cfg.UploadDir, subdir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	name := fmt.Sprintf("%d_%s_%s", p.cfg.Now().UnixMilli(), uuid.NewString()[:8], SanitizeFilename(fh.Filename))
	dest := filepath.Join(destDir, name)

	if err := copyUpload(fh, dest); err != nil {
		return "", err
	}
	return report.NormalizeImage(p.cfg.Logger, dest).Path, nil
}

func copyUpload(fh *multipart.FileHeader, dest string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to save upload %s: %w", fh.Filename, err)
	}
	return out.Close()
}

// AllowedImage reports whether filename has an accepted image extension.
func AllowedImage(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return allowedImageExts[ext]
}

var (
	unsafeFilenameRegex = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	extensionRegex      = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)
)

// SanitizeFilename reduces an uploaded file name to a safe base name. The
// extension is kept, lower-cased, even when nothing of the stem survives.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !extensionRegex.MatchString(ext) {
		ext = ""
	}
	ext = strings.ToLower(ext)

	sanitized := unsafeFilenameRegex.ReplaceAllString(stem, "_")
	sanitized = strings.Trim(sanitized, "._")

	maxLength := 100 - len(ext)
	if len(sanitized) > maxLength {
		sanitized = sanitized[len(sanitized)-maxLength:]
		sanitized = strings.TrimLeft(sanitized, "._")
	}
	if sanitized == "" {
		sanitized = "upload"
	}
	return sanitized + ext
}
