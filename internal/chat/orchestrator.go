// Package chat bridges the thread state store to the backend's live
// subscriptions and derives the merged, display-ready message list. The
// derivation is pure: confirmed page + unmatched optimistic messages +
// streaming overlays, with no writes back into the query cache, so a
// re-subscription can never trigger a recompute loop.
package chat

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/model"
	"github.com/parleyhq/parley/internal/stream"
	"github.com/parleyhq/parley/internal/thread"
)

// Orchestrator composes the thread store with the backend's live queries
type Orchestrator struct {
	store  *thread.Store
	client backend.Client
	broker *events.Broker

	mu       sync.Mutex
	merger   *stream.Merger
	lastPage backend.MessagePage
	streams  []model.Stream
	cancel   context.CancelFunc

	updates chan struct{}
}

// New creates an orchestrator over the given store, client, and broker.
func New(store *thread.Store, client backend.Client, broker *events.Broker) *Orchestrator {
	return &Orchestrator{
		store:   store,
		client:  client,
		broker:  broker,
		merger:  stream.NewMerger(),
		updates: make(chan struct{}, 1),
	}
}

// Updates signals that the derived message list may have changed. The channel
// is coalescing: slow consumers see at most one pending tick.
func (o *Orchestrator) Updates() <-chan struct{} { return o.updates }

func (o *Orchestrator) notify() {
	select {
	case o.updates <- struct{}{}:
	default:
	}
}

// Attach subscribes to the live queries for the given thread. Any previous
// subscription is released first; navigating views without switching threads
// keeps the subscription alive so returning does not re-subscribe.
func (o *Orchestrator) Attach(ctx context.Context, threadID string) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	subCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.merger = stream.NewMerger()
	o.lastPage = backend.MessagePage{}
	o.streams = nil
	o.mu.Unlock()

	listArgs := o.store.ListArgs(threadID)
	listCh, err := o.client.ListMessages(subCtx, listArgs)
	if err != nil {
		cancel()
		return err
	}

	deltaArgs := listArgs
	deltaArgs.Mode = backend.ModeDeltas
	deltaCh, err := o.client.ListMessages(subCtx, deltaArgs)
	if err != nil {
		cancel()
		return err
	}

	// The two queries update independently; each snapshot is handled on its
	// own and merged defensively, never assumed to arrive as a joint
	// atomic view.
	go o.consumeList(subCtx, listCh)
	go o.consumeDeltas(subCtx, deltaCh)
	return nil
}

// Detach releases the live subscriptions.
func (o *Orchestrator) Detach() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) consumeList(ctx context.Context, ch <-chan backend.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if snap.Err != nil {
				log.Warn("list subscription error", "err", snap.Err)
				continue
			}
			o.applyListSnapshot(snap.Page)
		}
	}
}

func (o *Orchestrator) applyListSnapshot(page backend.MessagePage) {
	o.mu.Lock()
	o.lastPage = page
	o.streams = page.Streams
	o.mu.Unlock()

	o.store.Reconcile(page.Messages)
	if page.Thread != nil {
		o.store.SetHandedOff(page.Thread.HandedOff)
	}

	streaming := false
	for _, s := range page.Streams {
		if s.Status == model.StreamStreaming {
			streaming = true
		} else {
			o.mu.Lock()
			o.merger.Drop(s.ID)
			o.mu.Unlock()
		}
	}
	o.store.SetStreaming(streaming)
	o.notify()
}

func (o *Orchestrator) consumeDeltas(ctx context.Context, ch <-chan backend.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if snap.Err != nil {
				log.Warn("delta subscription error", "err", snap.Err)
				continue
			}
			o.mu.Lock()
			o.merger.Apply(snap.Page.Deltas)
			o.mu.Unlock()
			o.notify()
		}
	}
}

// Messages derives the display-ready message list: the latest confirmed page,
// plus locally held optimistic messages without a confirmed counterpart,
// plus streaming overlay text keyed by message order.
func (o *Orchestrator) Messages() []model.Message {
	o.mu.Lock()
	confirmed := make([]model.Message, len(o.lastPage.Messages))
	copy(confirmed, o.lastPage.Messages)
	overlays := o.merger.Overlays(o.streams)
	o.mu.Unlock()

	covered := make(map[int]bool, len(confirmed))
	for i := range confirmed {
		covered[confirmed[i].Order] = true
		if ov, ok := overlays[confirmed[i].Order]; ok && confirmed[i].Role == model.RoleAssistant {
			if ov.Status == model.StreamStreaming || confirmed[i].Text == "" {
				confirmed[i].Text = ov.Text
				confirmed[i].Reasoning = ov.Reasoning
			}
			if ov.Status == model.StreamStreaming {
				confirmed[i].Status = model.StatusStreaming
			}
		}
	}

	// Streams whose message row has not landed in the page yet still get a
	// synthetic streaming entry so tokens show up immediately.
	for order, ov := range overlays {
		if covered[order] || ov.Status != model.StreamStreaming {
			continue
		}
		confirmed = append(confirmed, model.Message{
			ID:        model.OptimisticIDPrefix + ov.StreamID,
			Role:      model.RoleAssistant,
			Order:     order,
			Status:    model.StatusStreaming,
			Text:      ov.Text,
			Reasoning: ov.Reasoning,
		})
	}

	// Optimistic user messages the page has not confirmed yet go last, in
	// send order.
	optimistic := o.store.Optimistic()
	nextOrder := 0
	if n := len(confirmed); n > 0 {
		sort.SliceStable(confirmed, func(i, j int) bool {
			if confirmed[i].Order != confirmed[j].Order {
				return confirmed[i].Order < confirmed[j].Order
			}
			return confirmed[i].StepOrder < confirmed[j].StepOrder
		})
		nextOrder = confirmed[n-1].Order + 1
	}
	for _, m := range optimistic {
		if hasCounterpart(confirmed, m) {
			continue
		}
		m.Order = nextOrder
		nextOrder++
		confirmed = append(confirmed, m)
	}
	return confirmed
}

// hasCounterpart reports whether a confirmed message already represents the
// optimistic one, matched by identical role and text. This is a heuristic
// join; the store's Reconcile normally removes matches before display.
func hasCounterpart(confirmed []model.Message, opt model.Message) bool {
	for _, c := range confirmed {
		if !c.Optimistic() && c.Role == opt.Role && c.Text == opt.Text {
			return true
		}
	}
	return false
}

// Send sends a user message through the store and converts failures into
// user-visible state: a rate-limit error arms the countdown with the
// server-provided retry-after, anything else becomes an error toast.
// Validation refusals (empty text, turn in flight) issue no network call and
// no toast.
func (o *Orchestrator) Send(ctx context.Context, text string, opts thread.SendOptions) error {
	if o.store.IsRateLimited() {
		return thread.ErrBusy
	}
	res, err := o.store.SendMessage(ctx, o.client, text, opts)
	if err != nil {
		if errors.Is(err, thread.ErrEmptyMessage) || errors.Is(err, thread.ErrBusy) {
			return err
		}
		if retryAfter, ok := backend.AsRateLimit(err); ok {
			o.store.SetRateLimited(retryAfter)
			o.broker.Publish(events.ChatRateLimited, o.store.ThreadID(), "You're sending messages too quickly")
			return err
		}
		o.broker.Publish(events.ToastError, o.store.ThreadID(), "Failed to send message", err)
		return err
	}
	o.store.ClearDraft(o.store.ThreadID())
	o.broker.Publish(events.ChatMessageSent, o.store.ThreadID(), res.MessageID)
	o.notify()
	return nil
}

// RequestHandoff escalates to a human and surfaces failures as toasts.
func (o *Orchestrator) RequestHandoff(ctx context.Context) error {
	if err := o.store.RequestHandoff(ctx, o.client); err != nil {
		o.broker.Publish(events.ToastError, o.store.ThreadID(), "Failed to reach support", err)
		return err
	}
	o.broker.Publish(events.ChatHandoffRequested, o.store.ThreadID(), "")
	return nil
}

// SetNotificationEmail updates the notification address and surfaces the
// outcome as a toast.
func (o *Orchestrator) SetNotificationEmail(ctx context.Context, email string) error {
	if err := o.store.SetNotificationEmail(ctx, o.client, email); err != nil {
		o.broker.Publish(events.ToastError, o.store.ThreadID(), "Failed to update email", err)
		return err
	}
	o.broker.Publish(events.ToastSuccess, o.store.ThreadID(), "We'll email you at "+o.store.NotificationEmail())
	return nil
}
