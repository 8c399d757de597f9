package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/activityreport/internal/gcp"
	"github.com/Lllllllleong/activityreport/internal/models"
	"github.com/Lllllllleong/activityreport/internal/report"
	"golang.org/x/sync/errgroup"
)

// RecordObjectName is the object name, inside its own prefix, of a queued record.
const RecordObjectName = "record.json"

const downloadConcurrency = 4

// RecordRendererFunction renders records dropped into the intake bucket.
type RecordRendererFunction struct {
	generator       *GeneratorFunction
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	collectionName  string
}

// NewRecordRenderer creates the queued record renderer. It needs a generator
// configured with an archive bucket.
func NewRecordRenderer(ctx context.Context) (*RecordRendererFunction, error) {
	generator, err := NewGenerator(ctx)
	if err != nil {
		return nil, err
	}
	if !generator.archiveEnabled() {
		_ = generator.Close()
		return nil, fmt.Errorf("ARCHIVE_BUCKET environment variable must be set")
	}

	f := &RecordRendererFunction{
		generator:       generator,
		storageClient:   generator.storageClient,
		firestoreClient: generator.firestoreClient,
		collectionName:  generator.config.CollectionName,
	}
	slog.Info("Record renderer initialized.", "collection", f.collectionName)
	return f, nil
}

// Process handles one finalized object of the intake bucket.
func (f *RecordRendererFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !IsRecordObject(e.Name) {
		logCtx.Info("Not a queued record. Skipping.")
		return nil
	}
	logCtx.Info("Processing queued record.")

	tempDir, err := os.MkdirTemp("", "record-renderer-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	recordPath := filepath.Join(tempDir, RecordObjectName)
	if err := gcp.DownloadObject(ctx, f.storageClient, e.Bucket, e.Name, recordPath); err != nil {
		logCtx.Error("Failed to download record", "error", err)
		return err
	}

	recordHash, err := calculateFileHash(recordPath)
	if err != nil {
		logCtx.Error("Failed to calculate record hash", "error", err)
		return fmt.Errorf("failed to calculate record hash: %w", err)
	}
	logCtx = logCtx.With("recordHash", recordHash)

	isDuplicate, reportID, err := f.isDuplicate(ctx, recordHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate record detected. Skipping.", "existingReportId", reportID)
		return nil
	}

	rec, err := readQueuedRecord(recordPath)
	if err != nil {
		logCtx.Error("Failed to parse record", "error", err)
		return err
	}

	imageDir := filepath.Join(tempDir, "images")
	if err := os.Mkdir(imageDir, 0o755); err != nil {
		return fmt.Errorf("failed to create image dir: %w", err)
	}
	if err := f.fetchImages(ctx, logCtx, e.Bucket, path.Dir(e.Name), imageDir, rec); err != nil {
		return err
	}

	result, err := f.generator.ProcessQueued(ctx, rec, recordHash)
	if err != nil {
		return err
	}
	logCtx.Info("Queued record rendered.", "reportId", result.ReportID, "archiveUri", result.ArchiveURI, "pageCount", result.PageCount)
	return nil
}

// IsRecordObject reports whether an object name is a queued record, i.e.
// "<prefix>/record.json".
func IsRecordObject(name string) bool {
	dir, file := path.Split(name)
	return file == RecordObjectName && dir != ""
}

func readQueuedRecord(localPath string) (*models.ReportRecord, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var queued models.QueuedRecord
	if err := json.Unmarshal(data, &queued); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &queued.Record, nil
}

// imageRefs returns pointers to every image reference of rec, in document order.
func imageRefs(rec *models.ReportRecord) []*string {
	var refs []*string
	for i := range rec.Preparers {
		refs = append(refs, &rec.Preparers[i].SignaturePath)
	}
	refs = append(refs, &rec.SpeakerProfile.ImagePath)
	for i := range rec.Photos {
		refs = append(refs, &rec.Photos[i])
	}
	return refs
}

// resolveObject turns an image reference relative to prefix into an object
// name. References may not leave the prefix.
func resolveObject(prefix, ref string) (string, error) {
	object := path.Join(prefix, ref)
	if path.IsAbs(ref) || !strings.HasPrefix(object, prefix+"/") {
		return "", fmt.Errorf("image reference %q is outside %s/", ref, prefix)
	}
	return object, nil
}

// fetchImages downloads the images referenced by rec into dir, normalizes
// them and points rec at the local copies.
func (f *RecordRendererFunction) fetchImages(ctx context.Context, logCtx *slog.Logger, bucket, prefix, dir string, rec *models.ReportRecord) error {
	refs := imageRefs(rec)
	logCtx.Info("Starting concurrent download of images.", "count", len(refs))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(downloadConcurrency)

	for i, ref := range refs {
		ref := ref
		if *ref == "" {
			continue
		}
		object, err := resolveObject(prefix, *ref)
		if err != nil {
			return err
		}
		localPath := filepath.Join(dir, fmt.Sprintf("%02d_%s", i, path.Base(object)))

		eg.Go(func() error {
			if err := gcp.DownloadObject(gctx, f.storageClient, bucket, object, localPath); err != nil {
				return fmt.Errorf("image %s: %w", object, err)
			}
			*ref = report.NormalizeImage(logCtx, localPath).Path
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("One or more images failed to download", "error", err)
		return err
	}
	return nil
}

func (f *RecordRendererFunction) isDuplicate(ctx context.Context, recordHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.collectionName).Where("recordHash", "==", recordHash).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	for _, doc := range docs {
		var job models.ReportJob
		if err := doc.DataTo(&job); err != nil {
			return false, "", fmt.Errorf("failed to read job %s: %w", doc.Ref.ID, err)
		}
		if job.Status != models.StatusFailed {
			return true, doc.Ref.ID, nil
		}
	}
	return false, "", nil
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
