package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/activityreport/internal/gcp"
	"github.com/Lllllllleong/activityreport/internal/models"
	"github.com/Lllllllleong/activityreport/internal/report"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// GeneratorConfig holds all configuration for the report generator.
type GeneratorConfig struct {
	ProjectID        string
	ArchiveBucket    string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
	VertexAIRegion   string
	SynopsisAssist   bool
	StyleConfig      string
}

// SynopsisDrafter writes a summary paragraph for a record that has none.
type SynopsisDrafter interface {
	DraftSummary(ctx context.Context, rec *models.ReportRecord) (string, error)
}

// GeneratorFunction validates records, renders them and, when configured,
// archives the result and hands it to the distribution workflow.
type GeneratorFunction struct {
	renderer         *report.Renderer
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	vertexClient     *gcp.VertexClient
	drafter          SynopsisDrafter
	config           GeneratorConfig

	newID func() string
	now   func() time.Time
}

const draftTimeout = 30 * time.Second

var disablePDFConfigDir sync.Once

func loadGeneratorConfig() (*GeneratorConfig, error) {
	config := &GeneratorConfig{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		ArchiveBucket:    gcp.GetEnv("ARCHIVE_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "activity_reports"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		SynopsisAssist:   gcp.GetEnv("SYNOPSIS_ASSIST", "") == "true",
		StyleConfig:      gcp.GetEnv("STYLE_CONFIG", ""),
	}
	if config.ProjectID == "" && (config.ArchiveBucket != "" || config.WorkflowID != "" || config.SynopsisAssist) {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set to use archiving, workflows or synopsis assist")
	}
	if config.WorkflowID != "" && config.ArchiveBucket == "" {
		return nil, fmt.Errorf("ARCHIVE_BUCKET environment variable must be set when WORKFLOW_ID is set")
	}
	return config, nil
}

// NewGenerator creates a GeneratorFunction from the environment. Without
// PROJECT_ID it only renders.
func NewGenerator(ctx context.Context) (*GeneratorFunction, error) {
	config, err := loadGeneratorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	style, err := report.LoadStyle(config.StyleConfig)
	if err != nil {
		return nil, err
	}

	f := newGenerator(report.NewRenderer(style), *config)

	if config.ArchiveBucket != "" {
		if f.firestoreClient, err = gcp.NewFirestoreClient(ctx, config.ProjectID); err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		if f.storageClient, err = storage.NewClient(ctx); err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
	}
	if config.WorkflowID != "" {
		if f.executionsClient, err = executions.NewClient(ctx); err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
	}
	if config.SynopsisAssist {
		if f.vertexClient, err = gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion); err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		f.drafter = f.vertexClient
	}

	slog.Info("Report generator initialized.",
		"archiveBucket", config.ArchiveBucket,
		"workflowId", config.WorkflowID,
		"synopsisAssist", config.SynopsisAssist,
	)
	return f, nil
}

// NewLocalGenerator returns a generator that renders only. drafter may be nil.
func NewLocalGenerator(renderer *report.Renderer, drafter SynopsisDrafter) *GeneratorFunction {
	f := newGenerator(renderer, GeneratorConfig{})
	f.drafter = drafter
	return f
}

func newGenerator(renderer *report.Renderer, config GeneratorConfig) *GeneratorFunction {
	disablePDFConfigDir.Do(api.DisableConfigDir)
	return &GeneratorFunction{
		renderer: renderer,
		config:   config,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Close releases the clients held by the generator.
func (f *GeneratorFunction) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.firestoreClient != nil {
		keep(f.firestoreClient.Close())
	}
	if f.storageClient != nil {
		keep(f.storageClient.Close())
	}
	if f.executionsClient != nil {
		keep(f.executionsClient.Close())
	}
	if f.vertexClient != nil {
		keep(f.vertexClient.Close())
	}
	return firstErr
}

func (f *GeneratorFunction) archiveEnabled() bool {
	return f.storageClient != nil && f.firestoreClient != nil
}

// Process turns a submitted record into a report. Archiving problems are
// logged and leave ArchiveURI empty; the PDF is still returned.
func (f *GeneratorFunction) Process(ctx context.Context, rec *models.ReportRecord) (*models.GeneratedReport, error) {
	return f.generate(ctx, rec, "", false)
}

// ProcessQueued is Process for records that arrive without a user waiting
// on the result. The report must be archived for the call to succeed.
func (f *GeneratorFunction) ProcessQueued(ctx context.Context, rec *models.ReportRecord, recordHash string) (*models.GeneratedReport, error) {
	if !f.archiveEnabled() {
		return nil, fmt.Errorf("queued records need ARCHIVE_BUCKET to be configured")
	}
	return f.generate(ctx, rec, recordHash, true)
}

func (f *GeneratorFunction) generate(ctx context.Context, rec *models.ReportRecord, recordHash string, requireArchive bool) (*models.GeneratedReport, error) {
	if err := ValidateRecord(rec); err != nil {
		slog.Warn("Rejected invalid record.", "error", err)
		return nil, err
	}

	reportID := f.newID()
	logCtx := slog.With("reportId", reportID, "activityType", rec.ActivityType())
	logCtx.Info("Generating report.", "photos", len(rec.Photos))

	var docRef *firestore.DocumentRef
	if f.archiveEnabled() {
		var err error
		docRef, err = f.createJob(ctx, reportID, rec, recordHash)
		if err != nil {
			if requireArchive {
				logCtx.Error("Failed to create report job", "error", err)
				return nil, err
			}
			logCtx.Warn("Failed to create report job, continuing without archive.", "error", err)
			docRef = nil
		}
	}

	rec = f.assistSynopsis(ctx, logCtx, rec)

	pdf, err := f.renderer.Render(rec)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to render report", err)
	}
	pageCount, err := inspectPDF(pdf)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "rendered report failed validation", err)
	}
	logCtx.Info("Report rendered.", "pageCount", pageCount, "bytes", len(pdf))

	result := &models.GeneratedReport{
		ReportID:  reportID,
		PDF:       pdf,
		PageCount: pageCount,
		Filename:  ReportFilename(rec.ActivityType(), f.now()),
	}
	if docRef == nil {
		return result, nil
	}

	uri, err := f.archive(ctx, logCtx, docRef, reportID, pdf, pageCount)
	if err != nil {
		if requireArchive {
			return nil, err
		}
		logCtx.Warn("Report was not archived.", "error", err)
		return result, nil
	}
	result.ArchiveURI = uri

	if f.executionsClient != nil {
		f.triggerWorkflow(ctx, logCtx, docRef, reportID, uri, pageCount)
	}
	return result, nil
}

// ReportFilename is the download name of a report, e.g.
// "Workshop_Report_1741166400.pdf".
func ReportFilename(activityType string, at time.Time) string {
	if activityType == "" {
		activityType = "Activity"
	}
	return fmt.Sprintf("%s_Report_%d.pdf", activityType, at.Unix())
}

// assistSynopsis fills in a missing summary. The caller's record is never
// modified and any drafting failure leaves it as it was.
func (f *GeneratorFunction) assistSynopsis(ctx context.Context, logCtx *slog.Logger, rec *models.ReportRecord) *models.ReportRecord {
	if f.drafter == nil || rec.Synopsis.Summary != "" {
		return rec
	}
	draftCtx, cancel := context.WithTimeout(ctx, draftTimeout)
	defer cancel()

	summary, err := f.drafter.DraftSummary(draftCtx, rec)
	if err != nil {
		logCtx.Warn("Synopsis drafting failed, rendering without a summary.", "error", err)
		return rec
	}
	if summary == "" {
		logCtx.Warn("Synopsis drafting returned no text.")
		return rec
	}
	drafted := rec.Clone()
	drafted.Synopsis.Summary = summary
	logCtx.Info("Drafted synopsis summary.", "chars", len(summary))
	return drafted
}

// inspectPDF validates a rendered document and returns its page count.
func inspectPDF(pdf []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(pdf), conf); err != nil {
		return 0, fmt.Errorf("failed to validate PDF: %w", err)
	}
	pageCount, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pageCount, nil
}

func (f *GeneratorFunction) createJob(ctx context.Context, reportID string, rec *models.ReportRecord, recordHash string) (*firestore.DocumentRef, error) {
	job := models.ReportJob{
		ReportID:     reportID,
		ActivityType: rec.ActivityType(),
		Venue:        rec.GeneralInfo.Value(models.LabelVenue),
		RecordHash:   recordHash,
		Status:       models.StatusRendering,
		CreatedAt:    f.now(),
	}
	docRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(reportID)
	if _, err := docRef.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create report job: %w", err)
	}
	return docRef, nil
}

func (f *GeneratorFunction) archive(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, reportID string, pdf []byte, pageCount int) (string, error) {
	objectName := fmt.Sprintf("reports/%s.pdf", reportID)
	if err := f.uploadReport(ctx, logCtx, objectName, pdf); err != nil {
		return "", f.handleError(ctx, logCtx, docRef, "failed to archive report", err)
	}
	uri := gcp.ObjectURI(f.config.ArchiveBucket, objectName)

	err := gcp.UpdateFields(ctx, docRef, map[string]any{
		"status":     models.StatusCompleted,
		"pageCount":  pageCount,
		"archiveUri": uri,
	})
	if err != nil {
		return "", f.handleError(ctx, logCtx, docRef, "failed to update status to COMPLETED", err)
	}
	logCtx.Info("Report archived.", "archiveUri", uri)
	return uri, nil
}

// triggerWorkflow starts the distribution workflow. A failure is recorded on
// the job but does not undo the archived report.
func (f *GeneratorFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, reportID, uri string, pageCount int) {
	payloadBytes, err := json.Marshal(models.DistributionRequest{
		ReportID:  reportID,
		GCSUri:    uri,
		PageCount: pageCount,
	})
	if err != nil {
		logCtx.Error("Failed to marshal workflow payload", "error", err)
		return
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		logCtx.Error("Failed to trigger workflow execution", "error", err)
		if uerr := gcp.UpdateFields(ctx, docRef, map[string]any{"errorDetails": fmt.Sprintf("failed to trigger workflow: %v", err)}); uerr != nil {
			logCtx.Error("Failed to record workflow error.", "updateError", uerr)
		}
		return
	}
	if err := gcp.UpdateFields(ctx, docRef, map[string]any{"workflowExecutionId": exec.GetName()}); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "error", err)
	}
	logCtx.Info("Workflow triggered.", "execution", exec.GetName())
}

func (f *GeneratorFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Errorf("%s: %w", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if docRef == nil {
		return fullError
	}
	err := gcp.UpdateFields(ctx, docRef, map[string]any{
		"status":       models.StatusFailed,
		"errorDetails": fullError.Error(),
	})
	if err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fullError
}

// Upload retry settings.
const (
	uploadAttempts = 4
	uploadBackoff  = 1 * time.Second
)

// uploadReport stores pdf under objectName, retrying with exponential backoff.
func (f *GeneratorFunction) uploadReport(ctx context.Context, logCtx *slog.Logger, objectName string, pdf []byte) error {
	bucket := f.storageClient.Bucket(f.config.ArchiveBucket)
	return retryUpload(ctx, logCtx, objectName, uploadAttempts, uploadBackoff, func() error {
		writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
		defer cancel()
		return gcp.SaveToGCSAtomically(writeCtx, bucket, objectName, "application/pdf", bytes.NewReader(pdf))
	})
}

// retryUpload calls upload up to maxRetries times, doubling the wait after
// each failure. There is no wait after the last attempt.
func retryUpload(ctx context.Context, logCtx *slog.Logger, objectName string, maxRetries int, backoff time.Duration, upload func() error) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := upload()
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries-1 {
			break
		}

		logCtx.Warn(
			"Upload failed, will retry.",
			"gcsObject", objectName,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			logCtx.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", objectName, "error", ctx.Err())
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", objectName, lastErr)
}
