package models

// GeneratedReport is the outcome of a successful report generation.
type GeneratedReport struct {
	ReportID   string
	PDF        []byte
	PageCount  int
	ArchiveURI string // empty when the report was not archived
	Filename   string
}

// QueuedRecord is the JSON document dropped into the intake bucket to request
// a report without going through the web form. Image fields hold object names
// relative to the directory of the record object.
type QueuedRecord struct {
	Record ReportRecord `json:"record"`
}

// GCSEvent is the payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// DistributionRequest is the argument passed to the distribution workflow
// once a report has been archived.
type DistributionRequest struct {
	ReportID  string `json:"reportId"`
	GCSUri    string `json:"gcsUri"`
	PageCount int    `json:"pageCount"`
}
