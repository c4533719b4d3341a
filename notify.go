package scratchnotebook

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

// fanoutNotifier combines several catalog.Notifiers into one, so
// catalog.Store.SetNotifier only ever needs a single registration even
// when both the SSE broker and embedder-registered ChangeHooks are active.
type fanoutNotifierList []catalog.Notifier

func fanoutNotifier(notifiers []catalog.Notifier) catalog.Notifier {
	return fanoutNotifierList(notifiers)
}

func (f fanoutNotifierList) Publish(event catalog.ChangeEvent) {
	for _, n := range f {
		n.Publish(event)
	}
}

// hookNotifier adapts a ChangeHook to catalog.Notifier. Hook methods run
// in their own goroutine so a slow or blocking hook never delays the
// catalog commit path; failures are logged, not propagated.
type hookNotifier struct {
	hook   ChangeHook
	logger *slog.Logger
}

func publicNotifiers(hooks []ChangeHook, logger *slog.Logger) []catalog.Notifier {
	out := make([]catalog.Notifier, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, &hookNotifier{hook: h, logger: logger})
	}
	return out
}

func (n *hookNotifier) Publish(event catalog.ChangeEvent) {
	pub := ChangeEvent{Kind: event.Kind, TenantID: event.TenantID, ScratchID: event.ScratchID}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.hook.OnPadChanged(ctx, pub); err != nil {
			n.logger.Warn("change hook failed", "error", err, "kind", pub.Kind, "scratch_id", pub.ScratchID)
		}
	}()
}

var _ catalog.Notifier = (*hookNotifier)(nil)
var _ catalog.Notifier = fanoutNotifierList(nil)
