package models

import "time"

// Job statuses stored on ReportJob.Status.
const (
	StatusRendering = "RENDERING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// ReportJob is the Firestore record of one generated report.
// It tracks the status and archive location of the PDF.
type ReportJob struct {
	ReportID            string    `firestore:"reportId,omitempty"`
	ActivityType        string    `firestore:"activityType,omitempty"`
	Venue               string    `firestore:"venue,omitempty"`
	RecordHash          string    `firestore:"recordHash,omitempty"` // set for queued records
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	ArchiveURI          string    `firestore:"archiveUri,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
