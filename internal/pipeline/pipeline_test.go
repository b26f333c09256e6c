package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nunotfc/amelie/internal/breaker"
	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/dispatch"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/pipeline"
	"github.com/nunotfc/amelie/internal/services"
	"github.com/nunotfc/amelie/internal/services/inference"
	"github.com/nunotfc/amelie/internal/testsupport"
)

type fakeInference struct {
	mu sync.Mutex

	uploadErr   error
	statusSeq   []inference.FileState
	statusIdx   int
	statusErr   error
	generateOut string
	generateErr error

	uploads   int
	polls     int
	generates int
	deleted   []string
}

func (f *fakeInference) Upload(_ context.Context, _ []byte, mimeType string) (inference.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return inference.FileRef{}, f.uploadErr
	}
	return inference.FileRef{Name: "files/test", URI: "uri://files/test", MimeType: mimeType, State: inference.FileProcessing}, nil
}

func (f *fakeInference) FileStatus(_ context.Context, name string) (inference.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.statusErr != nil {
		return inference.FileRef{Name: name}, f.statusErr
	}
	state := inference.FileActive
	if f.statusIdx < len(f.statusSeq) {
		state = f.statusSeq[f.statusIdx]
		f.statusIdx++
	}
	ref := inference.FileRef{Name: name, URI: "uri://" + name, State: state}
	if state == inference.FileFailed {
		return ref, services.NewError(services.KindGeneral, "inference file status", "remote processing failed", nil)
	}
	return ref, nil
}

func (f *fakeInference) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeInference) Generate(_ context.Context, _ inference.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generates++
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generateOut, nil
}

func (f *fakeInference) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func (f *fakeInference) counts() (uploads, polls, generates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.polls, f.generates
}

type recordingSender struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (s *recordingSender) SendText(_ context.Context, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("bridge down")
	}
	s.messages = append(s.messages, text)
	return nil
}

func (s *recordingSender) ReplyText(_ context.Context, _, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("bridge down")
	}
	s.messages = append(s.messages, text)
	return nil
}

func (s *recordingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

type harness struct {
	manager *pipeline.Manager
	store   *ledger.Store
	backend *fakeInference
	sender  *recordingSender
	dir     string
}

func fastConfig(cfg *config.Config) {
	cfg.Pipeline.BackoffBaseMs = 1
	cfg.Pipeline.BackoffCapMs = 4
	cfg.Pipeline.PollBaseMs = 1
	cfg.Pipeline.PollCapMs = 4
	cfg.Pipeline.ExpirySeconds = 3600
	cfg.Pipeline.ProgressWindowSecond = 3600
	cfg.Breaker.FailureLimit = 10
	cfg.Transport.DefaultLanguage = "en"
}

func newHarness(t *testing.T, backend *fakeInference, mutate ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts := append([]testsupport.ConfigOption{fastConfig}, mutate...)
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &recordingSender{}
	dispatcher := dispatch.New(store, sender, nil, cfg.Outbox.MaxDeliveryAttempts)

	manager, err := pipeline.NewManager(cfg, pipeline.Deps{
		Store:      store,
		Inference:  backend,
		Dispatcher: dispatcher,
		Sender:     sender,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	t.Cleanup(manager.Stop)

	return &harness{manager: manager, store: store, backend: backend, sender: sender, dir: t.TempDir()}
}

func (h *harness) submit(t *testing.T, submissionID string) string {
	t.Helper()
	path := filepath.Join(h.dir, submissionID+".png")
	if err := os.WriteFile(path, []byte("media-bytes"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	id, err := h.manager.Submit(context.Background(), pipeline.InboundEvent{
		SubmissionID:   submissionID,
		ConversationID: "conv-1",
		OriginID:       "origin-" + submissionID,
		ContentRef:     path,
		MimeType:       "image/png",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return id
}

func (h *harness) waitForStatus(t *testing.T, id string, want ledger.Status) *ledger.Transaction {
	t.Helper()
	return waitForStatus(t, h.store, id, want)
}

func waitForStatus(t *testing.T, store *ledger.Store, id string, want ledger.Status) *ledger.Transaction {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		txn, err := store.Get(context.Background(), id)
		if err == nil && txn.Status == want {
			return txn
		}
		time.Sleep(5 * time.Millisecond)
	}
	txn, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("waiting for %s: %v", want, err)
	}
	t.Fatalf("transaction never reached %s, stuck at %s", want, txn.Status)
	return nil
}

func processingStates(n int) []inference.FileState {
	states := make([]inference.FileState, n)
	for i := range states {
		states[i] = inference.FileProcessing
	}
	return states
}

func TestHappyPathDeliversDescription(t *testing.T) {
	backend := &fakeInference{
		statusSeq:   []inference.FileState{inference.FileProcessing, inference.FileProcessing, inference.FileActive},
		generateOut: "a detailed description",
	}
	h := newHarness(t, backend)

	id := h.submit(t, "msg-1")
	txn := h.waitForStatus(t, id, ledger.StatusDelivered)

	if txn.Response != "a detailed description" {
		t.Fatalf("unexpected response %q", txn.Response)
	}
	_, polls, generates := backend.counts()
	if generates != 1 {
		t.Fatalf("expected exactly one analysis call, got %d", generates)
	}
	if polls < 3 {
		t.Fatalf("expected at least 3 status polls, got %d", polls)
	}
	if backend.deletedCount() == 0 {
		t.Fatal("remote artifact not cleaned up on success")
	}
	if got := h.sender.all(); len(got) != 1 || got[0] != "a detailed description" {
		t.Fatalf("unexpected outbound messages: %v", got)
	}
}

func TestDuplicateSubmissionSuppressed(t *testing.T) {
	backend := &fakeInference{generateOut: "described"}
	h := newHarness(t, backend)

	id := h.submit(t, "msg-1")
	h.waitForStatus(t, id, ledger.StatusDelivered)

	path := filepath.Join(h.dir, "dup.png")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	_, err := h.manager.Submit(context.Background(), pipeline.InboundEvent{
		SubmissionID:   "msg-1",
		ConversationID: "conv-1",
		ContentRef:     path,
		MimeType:       "image/png",
	})
	if !errors.Is(err, pipeline.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if uploads, _, _ := backend.counts(); uploads != 1 {
		t.Fatalf("duplicate caused extra upload: %d", uploads)
	}
}

func TestUnsupportedMimeRejected(t *testing.T) {
	h := newHarness(t, &fakeInference{})
	_, err := h.manager.Submit(context.Background(), pipeline.InboundEvent{
		SubmissionID:   "msg-1",
		ConversationID: "conv-1",
		ContentRef:     "whatever",
		MimeType:       "application/pdf",
	})
	if !errors.Is(err, pipeline.ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}
}

func TestRemoteFailureIsImmediatelyTerminal(t *testing.T) {
	backend := &fakeInference{
		statusSeq: []inference.FileState{inference.FileFailed},
	}
	h := newHarness(t, backend)

	id := h.submit(t, "msg-1")
	h.waitForStatus(t, id, ledger.StatusFailurePermanent)

	if _, _, generates := backend.counts(); generates != 0 {
		t.Fatal("analysis must not run after remote failure")
	}
	if backend.deletedCount() == 0 {
		t.Fatal("remote file deletion not attempted")
	}
	if got := h.sender.all(); len(got) != 1 {
		t.Fatalf("expected exactly one user-facing failure message, got %v", got)
	}
}

func TestAnalysisTimeoutRetriesThenTerminates(t *testing.T) {
	backend := &fakeInference{
		generateErr: services.NewError(services.KindTimeout, "inference generate", "request deadline exceeded", context.DeadlineExceeded),
	}
	h := newHarness(t, backend)

	id := h.submit(t, "msg-1")
	txn := h.waitForStatus(t, id, ledger.StatusFailurePermanent)

	if _, _, generates := backend.counts(); generates != 3 {
		t.Fatalf("expected 3 analysis attempts before terminating, got %d", generates)
	}
	if txn.Response != "" {
		t.Fatalf("failed transaction must not carry a response: %q", txn.Response)
	}

	messages := h.sender.all()
	if len(messages) != 1 {
		t.Fatalf("expected exactly one failure message, got %v", messages)
	}
	if !strings.Contains(messages[0], "shorter") {
		t.Fatalf("timeout message should suggest shorter media: %q", messages[0])
	}

	problems, err := h.store.Problems(context.Background(), 10)
	if err != nil {
		t.Fatalf("list problems: %v", err)
	}
	if len(problems) != 1 || problems[0].ErrorKind != string(services.KindTimeout) {
		t.Fatalf("unexpected problem records: %+v", problems)
	}
}

func TestSafetyBlockNeverRetried(t *testing.T) {
	backend := &fakeInference{
		generateErr: services.NewError(services.KindSafetyBlocked, "inference generate", "candidate blocked by safety filter", nil),
	}
	h := newHarness(t, backend)

	id := h.submit(t, "msg-1")
	h.waitForStatus(t, id, ledger.StatusFailurePermanent)

	if _, _, generates := backend.counts(); generates != 1 {
		t.Fatalf("safety block must not be retried, got %d attempts", generates)
	}
	messages := h.sender.all()
	if len(messages) != 1 {
		t.Fatalf("expected one failure message, got %v", messages)
	}
}

func TestSucceededStateEntersAnalysis(t *testing.T) {
	backend := &fakeInference{
		statusSeq:   []inference.FileState{inference.FileProcessing, inference.FileSucceeded},
		generateOut: "described from succeeded state",
	}
	h := newHarness(t, backend)

	id := h.submit(t, "msg-1")
	txn := h.waitForStatus(t, id, ledger.StatusDelivered)

	if txn.Response != "described from succeeded state" {
		t.Fatalf("unexpected response %q", txn.Response)
	}
	if _, _, generates := backend.counts(); generates != 1 {
		t.Fatalf("expected exactly one analysis call, got %d", generates)
	}
}

func TestPollCapExpiresTransaction(t *testing.T) {
	backend := &fakeInference{statusSeq: processingStates(50)}
	h := newHarness(t, backend, func(cfg *config.Config) {
		cfg.Pipeline.PollHardCapAttempts = 2
		cfg.Pipeline.ExpiryMinAttempts = 1
	})

	id := h.submit(t, "msg-1")
	h.waitForStatus(t, id, ledger.StatusFailurePermanent)

	if backend.deletedCount() == 0 {
		t.Fatal("remote file deletion not attempted on expiry")
	}
	messages := h.sender.all()
	if len(messages) != 1 || !strings.Contains(messages[0], "expired") {
		t.Fatalf("expected one expiry message, got %v", messages)
	}
	problems, err := h.store.Problems(context.Background(), 10)
	if err != nil {
		t.Fatalf("list problems: %v", err)
	}
	if len(problems) != 1 || problems[0].ErrorKind != string(services.KindFileExpired) {
		t.Fatalf("expected one file_expired problem record, got %+v", problems)
	}
}

func TestElapsedCeilingExpiresTransaction(t *testing.T) {
	backend := &fakeInference{statusSeq: processingStates(200)}
	h := newHarness(t, backend, func(cfg *config.Config) {
		cfg.Pipeline.PollBaseMs = 50
		cfg.Pipeline.PollCapMs = 50
		cfg.Pipeline.PollHardCapAttempts = 1000
		cfg.Pipeline.ExpirySeconds = 2
		cfg.Pipeline.ExpiryMinAttempts = 1
		cfg.Pipeline.ProgressWindowSecond = 1
		cfg.Pipeline.SlowNoticeAttempt = 1000
	})

	id := h.submit(t, "msg-1")
	h.waitForStatus(t, id, ledger.StatusFailurePermanent)

	if backend.deletedCount() == 0 {
		t.Fatal("remote file deletion not attempted on expiry")
	}
	problems, err := h.store.Problems(context.Background(), 10)
	if err != nil {
		t.Fatalf("list problems: %v", err)
	}
	if len(problems) != 1 || problems[0].ErrorKind != string(services.KindFileExpired) {
		t.Fatalf("expected one file_expired problem record, got %+v", problems)
	}

	var sawProgress, sawExpired bool
	for _, message := range h.sender.all() {
		if strings.Contains(message, "Still processing") {
			sawProgress = true
		}
		if strings.Contains(message, "expired") {
			sawExpired = true
		}
	}
	if !sawProgress {
		t.Fatal("expected a progress notice while the file stayed in processing")
	}
	if !sawExpired {
		t.Fatal("expected the expiry failure message")
	}
}

func TestSlowNoticeSentWhileProcessing(t *testing.T) {
	backend := &fakeInference{
		statusSeq:   processingStates(3),
		generateOut: "finally described",
	}
	h := newHarness(t, backend, func(cfg *config.Config) {
		cfg.Pipeline.SlowNoticeAttempt = 2
	})

	id := h.submit(t, "msg-1")
	h.waitForStatus(t, id, ledger.StatusDelivered)

	var slow int
	for _, message := range h.sender.all() {
		if strings.Contains(message, "taking longer than usual") {
			slow++
		}
	}
	if slow != 1 {
		t.Fatalf("expected exactly one slow notice, got %d in %v", slow, h.sender.all())
	}
}

func TestUploadSafetyBlockLeavesBreakerClosed(t *testing.T) {
	brk := breaker.New(1, time.Hour, nil)
	backend := &fakeInference{
		uploadErr: services.NewError(services.KindSafetyBlocked, "inference upload", "content blocked by safety filter", nil),
	}
	cfg := testsupport.NewConfig(t, fastConfig)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &recordingSender{}
	dispatcher := dispatch.New(store, sender, nil, 5)

	manager, err := pipeline.NewManager(cfg, pipeline.Deps{
		Store:      store,
		Inference:  backend,
		Dispatcher: dispatcher,
		Sender:     sender,
		Breaker:    brk,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(manager.Stop)

	dir := t.TempDir()
	path := filepath.Join(dir, "m.png")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	id, err := manager.Submit(context.Background(), pipeline.InboundEvent{
		SubmissionID:   "msg-1",
		ConversationID: "conv-1",
		ContentRef:     path,
		MimeType:       "image/png",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitForStatus(t, store, id, ledger.StatusFailurePermanent)

	if got := brk.State(); got != breaker.StateClosed {
		t.Fatalf("content rejection tripped the breaker: state %s", got)
	}
	if uploads, _, _ := backend.counts(); uploads != 1 {
		t.Fatalf("safety block must not be retried, got %d uploads", uploads)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("local file must be kept for audit after a safety block: %v", err)
	}
}

func TestCircuitOpenIsTerminalUnavailable(t *testing.T) {
	brk := breaker.New(1, time.Hour, nil)
	brk.Failure()

	backend := &fakeInference{generateOut: "unused"}
	cfg := testsupport.NewConfig(t, fastConfig)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &recordingSender{}
	dispatcher := dispatch.New(store, sender, nil, 5)

	manager, err := pipeline.NewManager(cfg, pipeline.Deps{
		Store:      store,
		Inference:  backend,
		Dispatcher: dispatcher,
		Sender:     sender,
		Breaker:    brk,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(manager.Stop)

	dir := t.TempDir()
	path := filepath.Join(dir, "m.png")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	id, err := manager.Submit(context.Background(), pipeline.InboundEvent{
		SubmissionID:   "msg-1",
		ConversationID: "conv-1",
		ContentRef:     path,
		MimeType:       "image/png",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitForStatus(t, store, id, ledger.StatusFailurePermanent)

	if uploads, _, _ := backend.counts(); uploads != 0 {
		t.Fatalf("open circuit must short-circuit upload, got %d calls", uploads)
	}
	problems, err := store.Problems(context.Background(), 10)
	if err != nil {
		t.Fatalf("list problems: %v", err)
	}
	if len(problems) != 1 || problems[0].ErrorKind != string(services.KindUnavailable) {
		t.Fatalf("expected one unavailable problem record, got %+v", problems)
	}
}

func TestSnapshotTracksCompletedStages(t *testing.T) {
	backend := &fakeInference{generateOut: "described"}
	h := newHarness(t, backend)

	id := h.submit(t, "msg-1")
	h.waitForStatus(t, id, ledger.StatusDelivered)

	snapshot := h.manager.Snapshot()
	for _, stage := range []string{pipeline.StageEntry, pipeline.StageUpload, pipeline.StageAnalysis} {
		if snapshot[stage].Completed != 1 {
			t.Fatalf("stage %s: expected 1 completed, got %d", stage, snapshot[stage].Completed)
		}
	}
}
