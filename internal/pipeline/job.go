package pipeline

import "time"

// Envelope carries the fields every stage needs to route and account for a
// job. Stage payloads embed it; stage-specific fields live on the variant.
type Envelope struct {
	TransactionID  string
	ConversationID string
	OriginID       string
	ContentRef     string
	MimeType       string
	UserPrompt     string
	// Attempt counts stage failures, not polls. Stage retries stop at
	// maxStageAttempts.
	Attempt int
}

// StageJob is the closed set of pipeline job variants. A job belongs to
// exactly one queue at a time; ownership moves by enqueueing the successor
// variant.
type StageJob interface {
	stageName() string
	envelope() Envelope
}

// EntryJob is the legacy enqueue contract: a pure pass-through that forwards
// into the upload queue preserving all fields.
type EntryJob struct {
	Envelope
}

// UploadJob pushes local media to the backend file store.
type UploadJob struct {
	Envelope
}

// ProcessingCheckJob polls remote file state until the file is ready.
type ProcessingCheckJob struct {
	Envelope
	FileName   string
	FileURI    string
	UploadedAt time.Time
	// Poll counts status checks; reschedules while the remote file is still
	// processing do not consume stage attempts.
	Poll           int
	LastProgressAt time.Time
}

// AnalysisJob generates the description for a ready remote file.
type AnalysisJob struct {
	Envelope
	FileName   string
	FileURI    string
	UploadedAt time.Time
}

func (j EntryJob) stageName() string           { return StageEntry }
func (j UploadJob) stageName() string          { return StageUpload }
func (j ProcessingCheckJob) stageName() string { return StageProcessingCheck }
func (j AnalysisJob) stageName() string        { return StageAnalysis }

func (j EntryJob) envelope() Envelope           { return j.Envelope }
func (j UploadJob) envelope() Envelope          { return j.Envelope }
func (j ProcessingCheckJob) envelope() Envelope { return j.Envelope }
func (j AnalysisJob) envelope() Envelope        { return j.Envelope }

// Stage names used in logs, problem records and the status report.
const (
	StageEntry           = "entry"
	StageUpload          = "upload"
	StageProcessingCheck = "processing_check"
	StageAnalysis        = "analysis"
)

// Stage retry contract: at most three attempts per stage, failed jobs are
// kept in the problem sink rather than dropped.
const maxStageAttempts = 3
