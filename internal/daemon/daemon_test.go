package daemon_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/daemon"
	"github.com/nunotfc/amelie/internal/dispatch"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/pipeline"
	"github.com/nunotfc/amelie/internal/services/inference"
	"github.com/nunotfc/amelie/internal/testsupport"
)

type stubInference struct{}

func (stubInference) Upload(_ context.Context, _ []byte, mimeType string) (inference.FileRef, error) {
	return inference.FileRef{Name: "files/stub", URI: "uri://stub", MimeType: mimeType, State: inference.FileActive}, nil
}

func (stubInference) FileStatus(_ context.Context, name string) (inference.FileRef, error) {
	return inference.FileRef{Name: name, URI: "uri://" + name, State: inference.FileActive}, nil
}

func (stubInference) DeleteFile(context.Context, string) error { return nil }

func (stubInference) Generate(context.Context, inference.GenerateRequest) (string, error) {
	return "stub description", nil
}

type memorySender struct {
	mu   sync.Mutex
	sent []string
}

func (s *memorySender) SendText(_ context.Context, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *memorySender) ReplyText(_ context.Context, _, _, text string) error {
	return s.SendText(context.Background(), "", text)
}

func (s *memorySender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newDaemonWithStore(t *testing.T, cfg *config.Config, store *ledger.Store, sender *memorySender) *daemon.Daemon {
	t.Helper()
	dispatcher := dispatch.New(store, sender, nil, cfg.Outbox.MaxDeliveryAttempts)
	manager, err := pipeline.NewManager(cfg, pipeline.Deps{
		Store:      store,
		Inference:  stubInference{},
		Dispatcher: dispatcher,
		Sender:     sender,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	d, err := daemon.New(cfg, daemon.Deps{
		Store:      store,
		Manager:    manager,
		Dispatcher: dispatcher,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	first := newDaemonWithStore(t, cfg, store, sender)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	t.Cleanup(first.Stop)

	second := newDaemonWithStore(t, cfg, store, sender)
	err := second.Start(context.Background())
	if err == nil {
		second.Stop()
		t.Fatal("second daemon instance started despite lock")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected lock error: %v", err)
	}
}

func TestStartupRecoveryDeliversInterruptedResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	ctx := context.Background()
	txn, err := store.Create(ctx, ledger.Submission{
		SubmissionID:   "sub-1",
		ConversationID: "conv-1",
		Kind:           ledger.KindImage,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkProcessing(ctx, txn.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := store.AttachResponse(ctx, txn.ID, "recovered description"); err != nil {
		t.Fatalf("attach response: %v", err)
	}
	if err := store.AttachRecoveryData(ctx, txn.ID, ledger.RecoveryData{
		Destination: "conv-1",
		MimeType:    "image/png",
	}); err != nil {
		t.Fatalf("attach recovery data: %v", err)
	}

	d := newDaemonWithStore(t, cfg, store, sender)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	recovered, err := store.Get(ctx, txn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if recovered.Status != ledger.StatusDelivered {
		t.Fatalf("expected delivered after recovery, got %s", recovered.Status)
	}
	sent := sender.all()
	if len(sent) != 1 || sent[0] != "recovered description" {
		t.Fatalf("unexpected recovery delivery: %v", sent)
	}
}

func TestStatusSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	d := newDaemonWithStore(t, cfg, store, sender)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	if !d.Running() {
		t.Fatal("daemon not reporting running")
	}

	snap, err := d.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, ok := snap.Stages[pipeline.StageUpload]; !ok {
		t.Fatal("snapshot missing upload stage")
	}
	if snap.Breaker == "" {
		t.Fatal("snapshot missing breaker state")
	}
	if snap.Pending != 0 {
		t.Fatalf("expected empty outbox, got %d", snap.Pending)
	}
}

func TestStopReleasesLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	first := newDaemonWithStore(t, cfg, store, sender)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	first.Stop()

	// Give the pipeline a moment to settle between lifecycles.
	time.Sleep(10 * time.Millisecond)

	second := newDaemonWithStore(t, cfg, store, sender)
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	second.Stop()
}
