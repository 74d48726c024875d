package drip_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/mailing"
	"github.com/postify/drip-engine/internal/repository/memory"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev domain.LifecycleEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) types() []domain.LifecycleType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.LifecycleType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	engine     *drip.Engine
	clock      *fakeClock
	users      *memory.UserStore
	events     *memory.EventLog
	sequences  *memory.SequenceStore
	pending    *memory.PendingQueue
	deliveries *memory.DeliveryLog
	gateway    *mailing.MockGateway
	notifier   *recordingNotifier
}

type harnessOption func(*drip.Settings, *drip.Deps)

func withGateway(g mailing.Gateway) harnessOption {
	return func(_ *drip.Settings, d *drip.Deps) { d.Gateway = g }
}

func wrapUsers(fn func(drip.UserStore) drip.UserStore) harnessOption {
	return func(_ *drip.Settings, d *drip.Deps) { d.Users = fn(d.Users) }
}

func withSettings(fn func(*drip.Settings)) harnessOption {
	return func(s *drip.Settings, _ *drip.Deps) { fn(s) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:      &fakeClock{t: t0},
		users:      memory.NewUserStore(),
		events:     memory.NewEventLog(),
		sequences:  memory.NewSequenceStore(),
		pending:    memory.NewPendingQueue(),
		deliveries: memory.NewDeliveryLog(),
		gateway:    mailing.NewMockGateway(),
		notifier:   &recordingNotifier{},
	}
	settings := drip.DefaultSettings()
	deps := drip.Deps{
		Events:     h.events,
		Sequences:  h.sequences,
		Pending:    h.pending,
		Deliveries: h.deliveries,
		Users:      h.users,
		Renderer:   mailing.NewTemplateRenderer("https://app.example.com"),
		Gateway:    h.gateway,
		Notifier:   h.notifier,
	}
	for _, opt := range opts {
		opt(&settings, &deps)
	}
	engine, err := drip.New(settings, deps, drip.WithClock(h.clock.Now))
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) addUser(id, plan string) {
	h.users.Put(domain.User{ID: id, Email: id + "@example.com", FullName: "Test " + id, Plan: plan, Locale: "en"})
}

func (h *harness) event(t *testing.T, userID string, kind domain.EventKind, at time.Time) {
	t.Helper()
	require.NoError(t, h.events.Append(context.Background(), &domain.BehaviorEvent{
		ID: userID + string(kind) + at.String(), UserID: userID, Kind: kind, Timestamp: at,
	}))
}

func (h *harness) activeSequence(t *testing.T, userID string) *domain.DripSequence {
	t.Helper()
	seq, err := h.sequences.Active(context.Background(), userID)
	require.NoError(t, err)
	return seq
}

// failingGateway reports every send as failed.
type failingGateway struct {
	mu    sync.Mutex
	calls int
}

func (g *failingGateway) Deliver(context.Context, string, string, string) domain.DeliveryResult {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return domain.DeliveryResult{Status: domain.OutcomeError, Mode: domain.ModeLive, Message: "smtp 554"}
}

// blockingGateway blocks each send until release is closed.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{entered: make(chan struct{}, 10), release: make(chan struct{})}
}

func (g *blockingGateway) Deliver(context.Context, string, string, string) domain.DeliveryResult {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.entered <- struct{}{}
	<-g.release
	return domain.DeliveryResult{Status: domain.OutcomeSuccess, ID: "blk", Mode: domain.ModeMock}
}

// hookGateway runs fn before reporting success.
type hookGateway struct {
	fn func()
}

func (g *hookGateway) Deliver(context.Context, string, string, string) domain.DeliveryResult {
	g.fn()
	return domain.DeliveryResult{Status: domain.OutcomeSuccess, ID: "hook", Mode: domain.ModeMock}
}

// flakyUsers fails Get for one user id.
type flakyUsers struct {
	drip.UserStore
	badID string
}

func (f *flakyUsers) Get(ctx context.Context, id string) (*domain.User, error) {
	if id == f.badID {
		return nil, errors.New("connection reset")
	}
	return f.UserStore.Get(ctx, id)
}
