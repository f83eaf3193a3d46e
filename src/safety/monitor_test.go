package safety

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/serializer"
	"tradeledger/src/testutil"
)

type fixture struct {
	db      *gorm.DB
	writer  *serializer.Serializer
	monitor *Monitor
	now     time.Time
	exits   []int
}

func testConfig() Config {
	return Config{
		Window:      time.Hour,
		MinSpan:     5 * time.Minute,
		MaxDrawdown: 0.5,
		ActionLog:   50,
		GracePeriod: 30 * time.Minute,
		ExitCode:    3,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	s := serializer.New(db, serializer.Config{RetryAttempts: 3, RetryBase: time.Millisecond, RetryMax: time.Millisecond})
	t.Cleanup(s.Close)

	f := &fixture{db: db, writer: s, now: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)}
	f.monitor = NewMonitor(db, s, testConfig(), "agent-1").
		WithClock(func() time.Time { return f.now }).
		WithExit(func(code int) { f.exits = append(f.exits, code) })
	return f
}

func (f *fixture) events(t *testing.T) []model.SafetyEvent {
	t.Helper()
	events, err := repository.NewSafetyEventRepository(f.db).FindLatest(context.Background(), 10)
	require.NoError(t, err)
	return events
}

func TestRapidDecayTerminates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(10000)))
	f.now = f.now.Add(6 * time.Minute)
	err := f.monitor.ObserveNAV(ctx, decimal.NewFromInt(4900))

	require.ErrorIs(t, err, ErrTerminated)
	require.Equal(t, []int{3}, f.exits)
	require.True(t, f.monitor.Terminated())

	events := f.events(t)
	require.Len(t, events, 1)
	require.Equal(t, model.SafetyEventTermination, events[0].Kind)
	require.Equal(t, RuleRapidDecay, events[0].Rule)
}

func TestRapidDecayNeedsMinimumSpan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(10000)))
	f.now = f.now.Add(2 * time.Minute)
	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(4900)))

	require.Empty(t, f.exits)
	require.Empty(t, f.events(t))
}

func TestRapidDecayComparesAgainstOldestSampleInWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(20000)))
	f.now = f.now.Add(61 * time.Minute)
	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(10000)))
	f.now = f.now.Add(10 * time.Minute)
	// 49% down from the oldest sample still in the window.
	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(5100)))
	require.Empty(t, f.exits)
}

func TestGracePeriodSuspendsRapidDecay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.SafetyEvent{Kind: model.SafetyEventTermination, Rule: RuleLoop, CreatedAt: f.now.Add(-time.Hour)}).Error)
	require.ErrorIs(t, f.monitor.CheckStartup(ctx), ErrHalted)

	require.NoError(t, f.db.Create(&model.SafetyEvent{Kind: model.SafetyEventReset, CreatedAt: f.now.Add(-10 * time.Minute)}).Error)
	require.NoError(t, f.monitor.CheckStartup(ctx))
	require.True(t, f.monitor.GraceActive())

	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(10000)))
	f.now = f.now.Add(6 * time.Minute)
	require.NoError(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(4900)))
	require.Empty(t, f.exits)

	// Grace ends 30 minutes after the reset.
	f.now = f.now.Add(20 * time.Minute)
	require.False(t, f.monitor.GraceActive())
	require.ErrorIs(t, f.monitor.ObserveNAV(ctx, decimal.NewFromInt(4800)), ErrTerminated)
}

func TestOldResetDoesNotGrantGrace(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.SafetyEvent{Kind: model.SafetyEventReset, CreatedAt: f.now.Add(-2 * time.Hour)}).Error)
	require.NoError(t, f.monitor.CheckStartup(context.Background()))
	require.False(t, f.monitor.GraceActive())
}

func TestFiftyIdenticalActionsTerminate(t *testing.T) {
	f := newFixture(t)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	for i := 0; i < 50; i++ {
		f.monitor.RecordAction(context.Background(), "BUY:BTC")
	}

	require.Equal(t, []int{3}, f.exits)
	events := f.events(t)
	require.Len(t, events, 1)
	require.Equal(t, RuleLoop, events[0].Rule)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["rule"] == RuleLoop {
			found = true
		}
	}
	require.True(t, found, "termination must be logged")
}

func TestFortyNineIdenticalPlusOneDifferentDoesNotTerminate(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 49; i++ {
		f.monitor.RecordAction(context.Background(), "BUY:BTC")
	}
	f.monitor.RecordAction(context.Background(), "SELL:BTC")

	require.Empty(t, f.exits)
	require.False(t, f.monitor.Terminated())
}

func TestActionLogIsBounded(t *testing.T) {
	f := newFixture(t)

	f.monitor.RecordAction(context.Background(), "SELL:BTC")
	for i := 0; i < 49; i++ {
		f.monitor.RecordAction(context.Background(), "BUY:BTC")
	}
	require.Empty(t, f.exits)

	// The different action falls out of the log.
	f.monitor.RecordAction(context.Background(), "BUY:BTC")
	require.Equal(t, []int{3}, f.exits)
}

func TestPurposeCollapse(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.monitor.ObservePurpose(context.Background(), 0.2))
	require.ErrorIs(t, f.monitor.ObservePurpose(context.Background(), 0), ErrTerminated)
	require.Equal(t, []int{3}, f.exits)

	// Fires once.
	require.ErrorIs(t, f.monitor.ObservePurpose(context.Background(), -1), ErrTerminated)
	require.Equal(t, []int{3}, f.exits)
	require.Len(t, f.events(t), 1)
}

func TestResetWritesMarker(t *testing.T) {
	f := newFixture(t)
	event, err := Reset(context.Background(), f.writer, "operator", "investigated")
	require.NoError(t, err)
	require.Equal(t, model.SafetyEventReset, event.Kind)
	require.NoError(t, f.monitor.CheckStartup(context.Background()))
}
