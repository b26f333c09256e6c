package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nunotfc/amelie/internal/breaker"
	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/convconfig"
	"github.com/nunotfc/amelie/internal/dedup"
	"github.com/nunotfc/amelie/internal/dispatch"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/services/inference"
	"github.com/nunotfc/amelie/internal/services/transport"
)

// InferenceClient is the slice of the inference backend the pipeline uses.
type InferenceClient interface {
	Upload(ctx context.Context, data []byte, mimeType string) (inference.FileRef, error)
	FileStatus(ctx context.Context, name string) (inference.FileRef, error)
	DeleteFile(ctx context.Context, name string) error
	Generate(ctx context.Context, req inference.GenerateRequest) (string, error)
}

// ErrDuplicate marks a submission suppressed by the dedup window.
var ErrDuplicate = errors.New("duplicate submission")

// ErrUnsupportedKind marks a submission whose media kind the pipeline does
// not process.
var ErrUnsupportedKind = errors.New("unsupported media kind")

// InboundEvent is one accepted chat submission carrying media.
type InboundEvent struct {
	SubmissionID   string
	ConversationID string
	OriginID       string
	ContentRef     string
	MimeType       string
	UserPrompt     string
}

// Manager owns the stage queues and their worker pools. One instance runs
// per process.
type Manager struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *ledger.Store
	settings   *convconfig.Store
	inference  InferenceClient
	dispatcher *dispatch.Dispatcher
	sender     transport.Sender
	brk        *breaker.Breaker
	seen       *dedup.Cache

	entryQ      chan EntryJob
	uploadQ     chan UploadJob
	processingQ chan ProcessingCheckJob
	analysisQ   chan AnalysisJob

	stats map[string]*stageStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
	mu      sync.Mutex
}

// Deps bundles the collaborators the manager wires together.
type Deps struct {
	Store      *ledger.Store
	Settings   *convconfig.Store
	Inference  InferenceClient
	Dispatcher *dispatch.Dispatcher
	Sender     transport.Sender
	Breaker    *breaker.Breaker
	Dedup      *dedup.Cache
	Logger     *slog.Logger
}

// NewManager constructs a stopped pipeline manager.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Store == nil || deps.Inference == nil || deps.Dispatcher == nil || deps.Sender == nil {
		return nil, errors.New("store, inference client, dispatcher and sender are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	brk := deps.Breaker
	if brk == nil {
		brk = breaker.New(cfg.Breaker.FailureLimit, time.Duration(cfg.Breaker.ResetWindowSeconds)*time.Second, nil)
	}
	seen := deps.Dedup
	if seen == nil {
		seen = dedup.New(time.Duration(cfg.Dedup.WindowSeconds) * time.Second)
	}

	depth := cfg.Pipeline.QueueDepth
	if depth <= 0 {
		depth = 64
	}

	m := &Manager{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		store:       deps.Store,
		settings:    deps.Settings,
		inference:   deps.Inference,
		dispatcher:  deps.Dispatcher,
		sender:      deps.Sender,
		brk:         brk,
		seen:        seen,
		entryQ:      make(chan EntryJob, depth),
		uploadQ:     make(chan UploadJob, depth),
		processingQ: make(chan ProcessingCheckJob, depth),
		analysisQ:   make(chan AnalysisJob, depth),
		stats: map[string]*stageStats{
			StageEntry:           {},
			StageUpload:          {},
			StageProcessingCheck: {},
			StageAnalysis:        {},
		},
	}
	return m, nil
}

// Start launches the stage worker pools. It returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("pipeline already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true

	startWorkers(m, m.cfg.Pipeline.EntryWorkers, m.entryQ, m.runEntry, StageEntry)
	startWorkers(m, m.cfg.Pipeline.UploadWorkers, m.uploadQ, m.runUpload, StageUpload)
	startWorkers(m, m.cfg.Pipeline.ProcessingWorkers, m.processingQ, m.runProcessingCheck, StageProcessingCheck)
	startWorkers(m, m.cfg.Pipeline.AnalysisWorkers, m.analysisQ, m.runAnalysis, StageAnalysis)

	m.logger.Info("pipeline started",
		logging.Int("entry_workers", m.cfg.Pipeline.EntryWorkers),
		logging.Int("upload_workers", m.cfg.Pipeline.UploadWorkers),
		logging.Int("processing_workers", m.cfg.Pipeline.ProcessingWorkers),
		logging.Int("analysis_workers", m.cfg.Pipeline.AnalysisWorkers))
	return nil
}

// Stop cancels all workers and waits for in-flight jobs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.mu.Unlock()
	m.wg.Wait()
	m.logger.Info("pipeline stopped")
}

func startWorkers[J StageJob](m *Manager, count int, queue chan J, run func(context.Context, J), stage string) {
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-m.ctx.Done():
					return
				case job := <-queue:
					stats := m.stats[stage]
					stats.active.Add(1)
					run(m.ctx, job)
					stats.active.Add(-1)
				}
			}
		}()
	}
}

// Submit accepts an inbound media event: dedup check, ledger transaction,
// then an entry job. The returned transaction ID identifies the accepted
// work.
func (m *Manager) Submit(ctx context.Context, event InboundEvent) (string, error) {
	kind := kindFromMime(event.MimeType)
	if kind == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, event.MimeType)
	}
	if m.seen.Seen(event.SubmissionID) {
		m.logger.Debug("duplicate submission suppressed",
			logging.String(logging.FieldSubmissionID, event.SubmissionID))
		return "", ErrDuplicate
	}

	txn, err := m.store.Create(ctx, ledger.Submission{
		SubmissionID:   event.SubmissionID,
		ConversationID: event.ConversationID,
		OriginID:       event.OriginID,
		Kind:           kind,
	})
	if err != nil {
		return "", fmt.Errorf("open transaction: %w", err)
	}

	job := EntryJob{Envelope: Envelope{
		TransactionID:  txn.ID,
		ConversationID: event.ConversationID,
		OriginID:       event.OriginID,
		ContentRef:     event.ContentRef,
		MimeType:       event.MimeType,
		UserPrompt:     event.UserPrompt,
	}}

	select {
	case m.entryQ <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	m.logger.Info("submission accepted",
		logging.String(logging.FieldTransactionID, txn.ID),
		logging.String(logging.FieldSubmissionID, event.SubmissionID),
		logging.String("kind", string(kind)))
	return txn.ID, nil
}

// enqueueAfter hands a job back to a queue once the delay elapses. The delay
// runs on a timer goroutine so it never occupies a worker slot.
func enqueueAfter[J StageJob](m *Manager, queue chan J, job J, delay time.Duration) {
	m.stats[job.stageName()].delayed.Add(1)
	m.wg.Add(1)
	timer := time.NewTimer(delay)
	go func() {
		defer m.wg.Done()
		defer timer.Stop()
		select {
		case <-m.ctx.Done():
		case <-timer.C:
			m.stats[job.stageName()].delayed.Add(-1)
			select {
			case queue <- job:
			case <-m.ctx.Done():
			}
		}
	}()
}

func enqueue[J StageJob](m *Manager, ctx context.Context, queue chan J, job J) {
	select {
	case queue <- job:
	case <-ctx.Done():
	}
}

func kindFromMime(mimeType string) ledger.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return ledger.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return ledger.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return ledger.KindAudio
	default:
		return ""
	}
}

func (m *Manager) locale() string {
	return m.cfg.Transport.DefaultLanguage
}

func (m *Manager) maxAttempts() int {
	if m.cfg.Pipeline.MaxAttempts > 0 {
		return m.cfg.Pipeline.MaxAttempts
	}
	return maxStageAttempts
}

// logLedgerMiss implements the "logged, not thrown" contract for ledger
// updates on transactions that no longer exist.
func (m *Manager) logLedgerMiss(op, transactionID string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ledger.ErrNotFound) {
		m.logger.Warn("transaction missing from ledger",
			logging.String("op", op),
			logging.String(logging.FieldTransactionID, transactionID))
		return
	}
	m.logger.Error("ledger update failed",
		logging.String("op", op),
		logging.String(logging.FieldTransactionID, transactionID),
		logging.Error(err))
}
