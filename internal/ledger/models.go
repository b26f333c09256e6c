package ledger

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a transaction.
type Status string

const (
	StatusCreated            Status = "created"
	StatusProcessing         Status = "processing"
	StatusResponseGenerated  Status = "response_generated"
	StatusDelivered          Status = "delivered"
	StatusFailureTemporary   Status = "failure_temporary"
	StatusFailurePermanent   Status = "failure_permanent"
	StatusRecoveryInProgress Status = "recovery_in_progress"
)

// MaxDeliveryAttempts is the delivery failure count at which a transaction
// becomes permanently failed.
const MaxDeliveryAttempts = 3

var allStatuses = []Status{
	StatusCreated,
	StatusProcessing,
	StatusResponseGenerated,
	StatusDelivered,
	StatusFailureTemporary,
	StatusFailurePermanent,
	StatusRecoveryInProgress,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// validTransitions encodes the transaction state machine. Terminal states
// have no outgoing edges; recovery_in_progress is only entered during
// startup replay and must resolve to a delivery outcome or processing.
var validTransitions = map[Status][]Status{
	StatusCreated:            {StatusProcessing, StatusFailureTemporary, StatusRecoveryInProgress},
	StatusProcessing:         {StatusResponseGenerated, StatusFailureTemporary, StatusRecoveryInProgress},
	StatusResponseGenerated:  {StatusDelivered, StatusFailureTemporary, StatusRecoveryInProgress},
	StatusFailureTemporary:   {StatusDelivered, StatusFailurePermanent, StatusRecoveryInProgress},
	StatusRecoveryInProgress: {StatusProcessing, StatusDelivered, StatusFailureTemporary},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether no further transition may occur.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailurePermanent
}

func canTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MediaKind identifies the submission content type.
type MediaKind string

const (
	KindText  MediaKind = "text"
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// HistoryEntry is one line of the append-only transaction audit log.
type HistoryEntry struct {
	Timestamp time.Time `json:"ts"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
}

// RecoveryData is the minimal durable payload needed to deliver a result
// without the original inbound event.
type RecoveryData struct {
	Destination string `json:"destination"`
	OriginID    string `json:"origin_id,omitempty"`
	ContentRef  string `json:"content_ref,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

// Submission captures the inbound event fields the ledger needs to open a
// transaction.
type Submission struct {
	SubmissionID   string
	ConversationID string
	OriginID       string
	Kind           MediaKind
}

// Transaction is the unit of accountability for one submission.
// It is mutated only through Store methods; History is append-only.
type Transaction struct {
	ID             string
	SubmissionID   string
	ConversationID string
	OriginID       string
	Kind           MediaKind
	Status         Status
	Attempts       int
	RecoveryData   *RecoveryData
	Response       string
	History        []HistoryEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliveryStatus tracks the lifecycle of a pending notification record.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryAbandoned DeliveryStatus = "abandoned"
)

// PendingNotification is a durable record of a result that could not be
// delivered; the outbox sweep retries these until success or abandonment.
type PendingNotification struct {
	ID            int64
	TransactionID string
	Destination   string
	Content       string
	RecoveryData  *RecoveryData
	Attempts      int
	Status        DeliveryStatus
	CreatedAt     time.Time
	LastAttemptAt *time.Time
}

// ProblemJob is a terminally failed stage job retained for inspection,
// stripped of large payloads.
type ProblemJob struct {
	ID            int64
	TransactionID string
	Stage         string
	ErrorKind     string
	Detail        string
	Attempts      int
	CreatedAt     time.Time
}

// StatsSummary aggregates transaction counts for the report surface.
type StatsSummary struct {
	Total     int
	ByStatus  map[Status]int
	Delivered int
	Failed    int
}

// SuccessRate returns delivered / (delivered + permanently failed), or zero
// when nothing terminal exists yet.
func (s StatsSummary) SuccessRate() float64 {
	done := s.Delivered + s.Failed
	if done == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(done)
}
