package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/notifier"
	"github.com/rafaeljc/herald/internal/ruleengine"
	"github.com/rafaeljc/herald/internal/stats"
	"github.com/rafaeljc/herald/internal/store"
)

// fakeDispatcher records dispatched rule ids and fails for the ids in failFor.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, rule *ruleengine.Rule, _ string, _ map[string]any) (*dispatch.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, rule.ID)
	if err, ok := f.failFor[rule.ID]; ok {
		return nil, err
	}
	return &dispatch.Receipt{ID: "rcpt-" + rule.ID, RuleID: rule.ID, Channel: dispatch.ChannelEmail}, nil
}

var monday = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	service    *notifier.Service
	store      *store.MemoryStore
	tracker    *stats.MemoryTracker
	dispatcher *fakeDispatcher
}

func newFixture(t *testing.T, rules ...ruleengine.Rule) *fixture {
	t.Helper()

	clock := func() time.Time { return monday }
	tracker, err := stats.NewMemoryTracker(100, 48*time.Hour, stats.WithClock(clock), stats.WithLocation(time.UTC))
	require.NoError(t, err)
	t.Cleanup(tracker.Close)

	s := store.NewMemoryStore()
	for _, r := range rules {
		r.Active = true
		require.NoError(t, s.AddRule(r))
	}

	engine := ruleengine.New(s, tracker, slog.New(slog.NewTextHandler(io.Discard, nil)), ruleengine.WithClock(clock))
	d := &fakeDispatcher{}

	return &fixture{service: notifier.New(engine, d), store: s, tracker: tracker, dispatcher: d}
}

func (f *fixture) dailyCount(t *testing.T, recipientID string) int {
	t.Helper()
	s, err := f.tracker.GetOrCreate(context.Background(), recipientID)
	require.NoError(t, err)
	return s.DailyCount
}

func contentRule(id string, priority int, action, conditions string) ruleengine.Rule {
	r := ruleengine.Rule{
		ID:               id,
		Name:             id,
		RecipientID:      "u1",
		Type:             ruleengine.RuleTypeContentBased,
		NotificationType: ruleengine.NotificationEmail,
		Priority:         priority,
		ActionType:       action,
	}
	if conditions != "" {
		r.Conditions = json.RawMessage(conditions)
	}
	return r
}

func TestService_Send(t *testing.T) {
	t.Parallel()

	t.Run("Should dispatch dispatchable matches and update stats once", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t,
			contentRule("email", 10, ruleengine.ActionSendNotification, ""),
			contentRule("allow", 5, ruleengine.ActionAllow, ""),
			contentRule("custom", 1, "FORWARD", ""),
		)

		out, err := f.service.Send(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi"})
		require.NoError(t, err)

		assert.False(t, out.Blocked)
		assert.Len(t, out.AppliedRules, 3)
		assert.Equal(t, []string{"email", "custom"}, f.dispatcher.calls)
		require.Len(t, out.Receipts, 2)
		assert.Equal(t, "rcpt-email", out.Receipts[0].ID)
		assert.Equal(t, 1, f.dailyCount(t, "u1"))
	})

	t.Run("Should not dispatch or count a blocked notification", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t,
			contentRule("notify", 10, ruleengine.ActionSendNotification, ""),
			contentRule("spam", 5, ruleengine.ActionBlock, `{"requiredKeywords": ["casino"]}`),
		)

		out, err := f.service.Send(context.Background(), notifier.Request{RecipientID: "u1", Content: "casino night"})
		require.NoError(t, err)

		assert.True(t, out.Blocked)
		assert.Equal(t, "Rule 'spam' blocked the notification", out.BlockReason)
		assert.Empty(t, out.Receipts)
		assert.Empty(t, f.dispatcher.calls)
		assert.Equal(t, 0, f.dailyCount(t, "u1"))
	})

	t.Run("Should count a send even when no rule dispatches", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		out, err := f.service.Send(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi"})
		require.NoError(t, err)
		assert.Empty(t, out.AppliedRules)
		assert.Empty(t, out.Receipts)
		assert.Equal(t, 1, f.dailyCount(t, "u1"))
	})

	t.Run("Should return the partial outcome and count the send when a later dispatch fails", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t,
			contentRule("first", 10, ruleengine.ActionSendNotification, ""),
			contentRule("second", 5, ruleengine.ActionSendNotification, ""),
		)
		deliveryErr := &dispatch.DeliveryError{Channel: dispatch.ChannelEmail, RuleID: "second", Err: errors.New("relay down")}
		f.dispatcher.failFor = map[string]error{"second": deliveryErr}

		out, err := f.service.Send(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi"})
		require.Error(t, err)
		require.NotNil(t, out)

		var target *dispatch.DeliveryError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "second", target.RuleID)
		assert.NotErrorIs(t, err, notifier.ErrStatsNotRecorded)

		assert.Equal(t, []string{"first", "second"}, f.dispatcher.calls)
		require.Len(t, out.Receipts, 1)
		assert.Equal(t, "rcpt-first", out.Receipts[0].ID)
		assert.Equal(t, 1, f.dailyCount(t, "u1"))
	})

	t.Run("Should return dispatch errors without touching stats", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t,
			contentRule("first", 10, ruleengine.ActionSendNotification, ""),
			contentRule("second", 5, ruleengine.ActionSendNotification, ""),
		)
		deliveryErr := &dispatch.DeliveryError{Channel: dispatch.ChannelEmail, RuleID: "first", Err: errors.New("relay down")}
		f.dispatcher.failFor = map[string]error{"first": deliveryErr}

		out, err := f.service.Send(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi"})
		require.Error(t, err)
		assert.Nil(t, out)

		var target *dispatch.DeliveryError
		assert.ErrorAs(t, err, &target)
		assert.Equal(t, []string{"first"}, f.dispatcher.calls)
		assert.Equal(t, 0, f.dailyCount(t, "u1"))
	})

	t.Run("Should enforce a daily limit across sends", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, ruleengine.Rule{
			ID:                     "cap",
			Name:                   "cap",
			RecipientID:            "u1",
			Type:                   ruleengine.RuleTypeFrequencyBased,
			MaxNotificationsPerDay: func() *int { v := 2; return &v }(),
			ActionType:             ruleengine.ActionBlock,
		})

		for range 2 {
			out, err := f.service.Send(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi"})
			require.NoError(t, err)
			require.False(t, out.Blocked)
		}

		out, err := f.service.Send(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi"})
		require.NoError(t, err)
		assert.True(t, out.Blocked)
		assert.Equal(t, 2, f.dailyCount(t, "u1"))
	})

	t.Run("Should reject a request without recipient", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.service.Send(context.Background(), notifier.Request{Content: "hi"})
		assert.ErrorIs(t, err, notifier.ErrInvalidRequest)
	})
}

func TestService_Evaluate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contentRule("email", 10, ruleengine.ActionSendNotification, ""))

	res, err := f.service.Evaluate(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, res.AppliedRules, 1)
	assert.Empty(t, f.dispatcher.calls)
	assert.Equal(t, 0, f.dailyCount(t, "u1"))

	_, err = f.service.Evaluate(context.Background(), notifier.Request{})
	assert.ErrorIs(t, err, notifier.ErrInvalidRequest)
}

func TestService_Evaluate_DecodedNumbers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contentRule("big-spender", 10, ruleengine.ActionSendNotification,
		`{"variableConditions": {"amount": {"equals": 1000000}}}`))

	var vars map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 1000000}`), &vars))

	res, err := f.service.Evaluate(context.Background(), notifier.Request{RecipientID: "u1", Content: "hi", Variables: vars})
	require.NoError(t, err)
	require.Len(t, res.AppliedRules, 1)
	assert.Equal(t, "big-spender", res.AppliedRules[0].ID)
}

func TestDispatchable(t *testing.T) {
	t.Parallel()

	assert.False(t, notifier.Dispatchable(ruleengine.ActionBlock))
	assert.False(t, notifier.Dispatchable(ruleengine.ActionAllow))
	assert.True(t, notifier.Dispatchable(ruleengine.ActionSendNotification))
	assert.True(t, notifier.Dispatchable("block"))
}

func TestNew_PanicsOnMissingDependencies(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { notifier.New(nil, &fakeDispatcher{}) })

	var nilEngine *ruleengine.Engine
	assert.Panics(t, func() { notifier.New(nilEngine, &fakeDispatcher{}) })
}
