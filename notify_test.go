package scratchnotebook

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []catalog.ChangeEvent
}

func (r *recordingNotifier) Publish(event catalog.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanoutNotifier_PublishesToEveryMember(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	f := fanoutNotifier([]catalog.Notifier{a, b})

	f.Publish(catalog.ChangeEvent{Kind: "created", TenantID: "acme", ScratchID: "sp_1"})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestFanoutNotifier_EmptyListIsInert(t *testing.T) {
	f := fanoutNotifier(nil)
	assert.NotPanics(t, func() {
		f.Publish(catalog.ChangeEvent{Kind: "deleted"})
	})
}

type blockingHook struct {
	called chan ChangeEvent
	err    error
}

func (h *blockingHook) OnPadChanged(_ context.Context, event ChangeEvent) error {
	h.called <- event
	return h.err
}

func TestHookNotifier_ConvertsAndDeliversAsynchronously(t *testing.T) {
	hook := &blockingHook{called: make(chan ChangeEvent, 1)}
	n := &hookNotifier{hook: hook, logger: discardLogger()}

	n.Publish(catalog.ChangeEvent{Kind: "appended", TenantID: "acme", ScratchID: "sp_1"})

	select {
	case got := <-hook.called:
		assert.Equal(t, ChangeEvent{Kind: "appended", TenantID: "acme", ScratchID: "sp_1"}, got)
	case <-time.After(time.Second):
		t.Fatal("hook was never invoked")
	}
}

func TestHookNotifier_ErrorIsLoggedNotPropagated(t *testing.T) {
	hook := &blockingHook{called: make(chan ChangeEvent, 1), err: assertErr}
	n := &hookNotifier{hook: hook, logger: discardLogger()}

	require.NotPanics(t, func() {
		n.Publish(catalog.ChangeEvent{Kind: "deleted", TenantID: "acme", ScratchID: "sp_1"})
	})

	select {
	case <-hook.called:
	case <-time.After(time.Second):
		t.Fatal("hook was never invoked")
	}
}

func TestPublicNotifiers_BuildsOneAdapterPerHook(t *testing.T) {
	notifiers := publicNotifiers([]ChangeHook{&blockingHook{called: make(chan ChangeEvent, 1)}, &blockingHook{called: make(chan ChangeEvent, 1)}}, discardLogger())
	assert.Len(t, notifiers, 2)
}

var assertErr = &testError{"hook failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
