package drip_test

import (
	"context"
	"testing"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/repository/memory"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresSteps(t *testing.T) {
	s := drip.DefaultSettings()
	s.Steps = nil
	_, err := drip.New(s, drip.Deps{})
	assert.ErrorIs(t, err, drip.ErrNoSteps)

	s = drip.DefaultSettings()
	s.Policy.Mode = "drop"
	_, err = drip.New(s, drip.Deps{})
	assert.Error(t, err)
}

func TestRecordEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown kind", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "free")
		_, err := h.engine.RecordEvent(ctx, "u1", "page_viewed", nil, nil)
		assert.ErrorIs(t, err, drip.ErrUnknownEventKind)
		assert.Equal(t, 0, h.events.Len())
	})

	t.Run("unknown user", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.RecordEvent(ctx, "ghost", domain.EventPricingViewed, nil, nil)
		assert.ErrorIs(t, err, drip.ErrUserNotFound)
	})

	t.Run("pricing view from free user schedules a check", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "free")
		ev, err := h.engine.RecordEvent(ctx, "u1", domain.EventPricingViewed, nil, map[string]any{"page": "/pricing"})
		require.NoError(t, err)
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, t0, ev.Timestamp)

		checks := h.pending.All()
		require.Len(t, checks, 1)
		assert.Equal(t, t0.Add(h.engine.Settings().TriggerAfter), checks[0].DueAt)
		assert.Equal(t, domain.CheckPending, checks[0].Status)
	})

	t.Run("pricing view from paid user is only logged", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "pro")
		_, err := h.engine.RecordEvent(ctx, "u1", domain.EventPricingViewed, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, h.events.Len())
		assert.Empty(t, h.pending.All())
	})

	t.Run("plan selected is only logged", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "free")
		plan := "pro"
		ev, err := h.engine.RecordEvent(ctx, "u1", domain.EventPlanSelected, &plan, nil)
		require.NoError(t, err)
		assert.Equal(t, "pro", *ev.Plan)
		assert.Empty(t, h.pending.All())
	})
}

func TestOnConversionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	startSequence(t, h, "u1")
	ctx := context.Background()

	cancelled, err := h.engine.OnConversion(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = h.engine.OnConversion(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestUnsubscribeAndResubscribe(t *testing.T) {
	h := newHarness(t)
	startSequence(t, h, "u1")
	ctx := context.Background()

	cancelled, err := h.engine.OnUnsubscribe(ctx, "u1", "not interested")
	require.NoError(t, err)
	assert.True(t, cancelled)

	all := h.sequences.All()
	require.Len(t, all, 1)
	assert.Equal(t, domain.CancelUnsubscribed, all[0].CancelReason)

	status, err := h.engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Subscribed)
	require.NotNil(t, status.UnsubscribedAt)
	assert.Equal(t, t0, *status.UnsubscribedAt)

	require.NoError(t, h.engine.Resubscribe(ctx, "u1"))
	status, err = h.engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Subscribed)
	assert.Nil(t, h.activeSequence(t, "u1"), "resubscribing does not restart a sequence")

	_, err = h.engine.OnUnsubscribe(ctx, "ghost", "")
	assert.ErrorIs(t, err, drip.ErrUserNotFound)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seq := startSequence(t, h, "u1")

	status, err := h.engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.ActiveSequence)
	assert.Equal(t, seq.ID, status.SequenceID)
	require.NotNil(t, status.CurrentStep)
	assert.Equal(t, 0, *status.CurrentStep)
	assert.Empty(t, status.RecentDeliveries)

	for i := 0; i < 7; i++ {
		_, err := h.engine.SendTemplate(ctx, "u1", "reminder", "admin@postify.ai")
		require.NoError(t, err)
		h.clock.Advance(1)
	}
	status, err = h.engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, status.RecentDeliveries, 5)
	assert.True(t, status.RecentDeliveries[0].SentAt.After(status.RecentDeliveries[4].SentAt))

	_, err = h.engine.Status(ctx, "ghost")
	assert.ErrorIs(t, err, drip.ErrUserNotFound)
}

func TestAbandonmentStatus(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		plan   string
		events []domain.EventKind
		inDrip bool
		want   drip.AbandonmentReport
	}{
		{
			name: "fresh user",
			plan: "free",
			want: drip.AbandonmentReport{},
		},
		{
			name:   "viewed and left",
			plan:   "free",
			events: []domain.EventKind{domain.EventPricingViewed},
			want:   drip.AbandonmentReport{IsAbandoned: true, HasViewedPricing: true, ShowReminderBanner: true},
		},
		{
			name:   "viewed and in drip",
			plan:   "free",
			events: []domain.EventKind{domain.EventPricingViewed},
			inDrip: true,
			want:   drip.AbandonmentReport{IsAbandoned: true, HasViewedPricing: true, InDripCampaign: true},
		},
		{
			name:   "converted",
			plan:   "pro",
			events: []domain.EventKind{domain.EventPricingViewed, domain.EventCheckoutCompleted},
			want:   drip.AbandonmentReport{HasViewedPricing: true, HasConverted: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", tt.plan)
			for _, k := range tt.events {
				h.event(t, "u1", k, t0)
			}
			if tt.inDrip {
				require.NoError(t, h.sequences.Create(ctx, &domain.DripSequence{
					ID: "s1", UserID: "u1", Status: domain.SequenceActive, CreatedAt: t0,
				}))
			}
			got, err := h.engine.AbandonmentStatus(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestSendTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.users.Put(domain.User{ID: "u1", Email: "ivan@example.com", FullName: "Иван Петров", Locale: "ru"})

	entry, err := h.engine.SendTemplate(ctx, "u1", "social_proof", "ops@postify.ai")
	require.NoError(t, err)
	assert.Equal(t, "", entry.SequenceID)
	assert.Equal(t, "ops@postify.ai", entry.QueuedBy)
	assert.Equal(t, domain.OutcomeSuccess, entry.Outcome)

	sent := h.gateway.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ivan@example.com", sent[0].Recipient)
	assert.Contains(t, sent[0].Subject, "Pro")

	require.NoError(t, h.users.SetUnsubscribed(ctx, "u1", true, t0, ""))
	_, err = h.engine.SendTemplate(ctx, "u1", "reminder", "ops@postify.ai")
	assert.ErrorIs(t, err, drip.ErrUnsubscribed)

	_, err = h.engine.SendTemplate(ctx, "ghost", "reminder", "ops@postify.ai")
	assert.ErrorIs(t, err, drip.ErrUserNotFound)
	assert.Len(t, h.deliveries.Entries(), 1)
}

var _ drip.SequenceStore = (*memory.SequenceStore)(nil)
var _ drip.PendingQueue = (*memory.PendingQueue)(nil)
var _ drip.DeliveryLog = (*memory.DeliveryLog)(nil)
var _ drip.EventLog = (*memory.EventLog)(nil)
var _ drip.UserStore = (*memory.UserStore)(nil)
