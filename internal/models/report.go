package models

// Field is one labelled value of an ordered mapping.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Fields is an ordered label→text mapping. Order is the insertion order and is
// preserved when rendered as a table.
type Fields []Field

// Get returns the value stored under label and whether it was present.
func (fs Fields) Get(label string) (string, bool) {
	for _, f := range fs {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// Value returns the value stored under label, or "" when absent.
func (fs Fields) Value(label string) string {
	v, _ := fs.Get(label)
	return v
}

// Set replaces the value of an existing label in place or appends a new entry.
func (fs *Fields) Set(label, value string) {
	for i := range *fs {
		if (*fs)[i].Label == label {
			(*fs)[i].Value = value
			return
		}
	}
	*fs = append(*fs, Field{Label: label, Value: value})
}

// Delete removes every entry with the given label.
func (fs *Fields) Delete(label string) {
	out := (*fs)[:0]
	for _, f := range *fs {
		if f.Label != label {
			out = append(out, f)
		}
	}
	*fs = out
}

// Compact returns a copy without the entries whose value is empty.
func (fs Fields) Compact() Fields {
	out := make(Fields, 0, len(fs))
	for _, f := range fs {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns an independent copy.
func (fs Fields) Clone() Fields {
	if fs == nil {
		return nil
	}
	out := make(Fields, len(fs))
	copy(out, fs)
	return out
}

// Labels of the general information mapping, as submitted by the form.
const (
	LabelActivityTitle = "Title of the Activity"
	LabelActivityType  = "Activity Type"
	LabelSubCategory   = "Sub Category"
	LabelStartDate     = "Start Date"
	LabelEndDate       = "End Date"
	LabelStartTime     = "Start Time"
	LabelEndTime       = "End Time"
	LabelVenue         = "Venue"
	LabelCollaboration = "Collaboration/Sponsor"

	// Labels produced by date/time consolidation.
	LabelDates = "Date/s"
	LabelTime  = "Time"
)

// Speaker is one speaker, guest or presenter of the activity.
type Speaker struct {
	Name              string `json:"name"`
	Title             string `json:"title,omitempty"`
	Organization      string `json:"organization,omitempty"`
	Contact           string `json:"contact,omitempty"`
	PresentationTitle string `json:"presentation_title,omitempty"`
}

// ParticipantGroup describes one kind of participant. Count is free text and
// is never parsed as a number.
type ParticipantGroup struct {
	Type  string `json:"type"`
	Count string `json:"count"`
}

// Synopsis holds the four optional description fields of the activity.
type Synopsis struct {
	Highlights   string `json:"highlights,omitempty"`
	KeyTakeaways string `json:"key_takeaways,omitempty"`
	Summary      string `json:"summary,omitempty"`
	FollowUp     string `json:"follow_up,omitempty"`
}

// Preparer is a person who prepared the report. SignaturePath points to an
// already normalized image file, if one was uploaded.
type Preparer struct {
	Name          string `json:"name"`
	Designation   string `json:"designation,omitempty"`
	SignaturePath string `json:"signature_path,omitempty"`
}

// SpeakerProfile is the optional bio and portrait of the main speaker.
type SpeakerProfile struct {
	Bio       string `json:"bio,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

// ReportRecord is the complete input of a report rendering. It is built once
// per request and must not be modified while a report is rendered from it.
type ReportRecord struct {
	GeneralInfo    Fields             `json:"general_info"`
	Speakers       []Speaker          `json:"speakers"`
	Participants   []ParticipantGroup `json:"participants"`
	Synopsis       Synopsis           `json:"synopsis"`
	Preparers      []Preparer         `json:"preparers"`
	SpeakerProfile SpeakerProfile     `json:"speaker_profile"`
	Photos         []string           `json:"photos"`
}

// Clone returns a deep copy of the record.
func (r *ReportRecord) Clone() *ReportRecord {
	c := *r
	c.GeneralInfo = r.GeneralInfo.Clone()
	c.Speakers = append([]Speaker(nil), r.Speakers...)
	c.Participants = append([]ParticipantGroup(nil), r.Participants...)
	c.Preparers = append([]Preparer(nil), r.Preparers...)
	c.Photos = append([]string(nil), r.Photos...)
	return &c
}

// ActivityType returns the "Activity Type" general field.
func (r *ReportRecord) ActivityType() string {
	return r.GeneralInfo.Value(LabelActivityType)
}
