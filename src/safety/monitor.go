// Package safety is the fail-stop layer. It watches the NAV trajectory, the
// cadence of admitted actions and the purpose score, and ends the process
// when one of them collapses.
package safety

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/metrics"
	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/serializer"
)

var (
	// ErrTerminated is returned once the monitor has fired.
	ErrTerminated = errors.New("safety termination")
	// ErrHalted is returned at startup while a termination has not been reset.
	ErrHalted = errors.New("halted by an unreset safety termination")
)

// Rule names written to the audit log.
const (
	RuleRapidDecay      = "rapid_decay"
	RuleLoop            = "loop"
	RulePurposeCollapse = "purpose_collapse"
)

type sample struct {
	at  time.Time
	nav decimal.Decimal
}

type Monitor struct {
	db     *gorm.DB
	writer serializer.Writer
	config Config
	agent  string

	mu         sync.Mutex
	samples    []sample
	actions    []string
	graceUntil time.Time
	terminated bool

	now  func() time.Time
	exit func(code int)
}

func NewMonitor(db *gorm.DB, writer serializer.Writer, config Config, agent string) *Monitor {
	return &Monitor{
		db:     db,
		writer: writer,
		config: config,
		agent:  agent,
		now:    func() time.Time { return time.Now().UTC() },
		exit:   os.Exit,
	}
}

// WithClock replaces the time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// WithExit replaces os.Exit.
func (m *Monitor) WithExit(exit func(code int)) *Monitor {
	m.exit = exit
	return m
}

// CheckStartup refuses to run while the latest audit row is a TERMINATION.
// A RESET younger than the grace period suspends the rapid-decay rule until
// the period ends.
func (m *Monitor) CheckStartup(ctx context.Context) error {
	latest, err := repository.NewSafetyEventRepository(m.db).Latest(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		return nil
	}

	switch latest.Kind {
	case model.SafetyEventTermination:
		return fmt.Errorf("%w: %s at %s (%s)", ErrHalted, latest.Rule, latest.CreatedAt.Format(time.RFC3339), latest.Detail)
	case model.SafetyEventReset:
		until := latest.CreatedAt.Add(m.config.GracePeriod)
		if m.now().Before(until) {
			m.mu.Lock()
			m.graceUntil = until
			m.mu.Unlock()
			logger.WithFields(map[string]interface{}{
				"component": "SafetyMonitor",
				"until":     until.Format(time.RFC3339),
			}).Warn("Reset grace period active, rapid-decay rule suspended")
		}
	}
	return nil
}

// GraceActive reports whether a recent reset suspends the rapid-decay rule.
func (m *Monitor) GraceActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.graceUntil)
}

// Terminated reports whether the monitor has fired.
func (m *Monitor) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

// ObserveNAV adds a sample to the trailing window and checks for rapid decay.
func (m *Monitor) ObserveNAV(ctx context.Context, nav decimal.Decimal) error {
	m.mu.Lock()
	now := m.now()
	m.samples = append(m.samples, sample{at: now, nav: nav})
	cutoff := now.Add(-m.config.Window)
	i := 0
	for i < len(m.samples)-1 && m.samples[i].at.Before(cutoff) {
		i++
	}
	m.samples = m.samples[i:]
	oldest := m.samples[0]
	grace := now.Before(m.graceUntil)
	m.mu.Unlock()

	if grace || now.Sub(oldest.at) < m.config.MinSpan || !oldest.nav.IsPositive() {
		return nil
	}

	floor := oldest.nav.Mul(decimal.NewFromFloat(1 - m.config.MaxDrawdown))
	if nav.LessThan(floor) {
		drop := oldest.nav.Sub(nav).Div(oldest.nav).Mul(decimal.NewFromInt(100))
		detail := fmt.Sprintf("NAV %s down %s%% from %s at %s", nav.StringFixed(2), drop.StringFixed(2),
			oldest.nav.StringFixed(2), oldest.at.Format(time.RFC3339))
		return m.Terminate(ctx, RuleRapidDecay, detail)
	}
	return nil
}

// RecordAction logs an admitted action signature and checks for a loop.
func (m *Monitor) RecordAction(ctx context.Context, signature string) {
	m.mu.Lock()
	m.actions = append(m.actions, signature)
	if over := len(m.actions) - m.config.ActionLog; over > 0 {
		m.actions = append(m.actions[:0], m.actions[over:]...)
	}
	loop := m.config.ActionLog > 0 && len(m.actions) == m.config.ActionLog && identical(m.actions)
	m.mu.Unlock()

	if loop {
		_ = m.Terminate(ctx, RuleLoop, fmt.Sprintf("last %d admitted actions were all %s", m.config.ActionLog, signature))
	}
}

func identical(actions []string) bool {
	for _, a := range actions[1:] {
		if a != actions[0] {
			return false
		}
	}
	return true
}

// ObservePurpose terminates when the purpose score reaches zero.
func (m *Monitor) ObservePurpose(ctx context.Context, score float64) error {
	if score > 0 {
		return nil
	}
	return m.Terminate(ctx, RulePurposeCollapse, fmt.Sprintf("purpose score %.4f", score))
}

// Terminate writes the audit row and exits the process. It fires once; it
// returns ErrTerminated for callers whose exit func returns.
func (m *Monitor) Terminate(ctx context.Context, rule, detail string) error {
	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		return ErrTerminated
	}
	m.terminated = true
	m.mu.Unlock()

	fields := map[string]interface{}{
		"component": "SafetyMonitor",
		"agent":     m.agent,
		"rule":      rule,
	}
	metrics.SafetyTerminations.WithLabelValues(rule).Inc()

	event := &model.SafetyEvent{
		Kind:      model.SafetyEventTermination,
		Rule:      rule,
		Detail:    detail,
		Agent:     m.agent,
		CreatedAt: m.now(),
	}
	wctx := context.WithoutCancel(ctx)
	err := m.writer.Submit(wctx, serializer.PriorityCritical, "safety.terminate", func(tx *gorm.DB) error {
		return repository.NewSafetyEventRepository(tx).Create(wctx, event)
	})
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("Failed to write termination audit row")
	}

	logger.WithFields(fields).Error("Safety termination: " + detail)
	m.exit(m.config.ExitCode)
	return fmt.Errorf("%w: %s: %s", ErrTerminated, rule, detail)
}

// Reset writes the operator reset marker that lifts a termination halt.
func Reset(ctx context.Context, writer serializer.Writer, operator, detail string) (*model.SafetyEvent, error) {
	event := &model.SafetyEvent{
		Kind:      model.SafetyEventReset,
		Detail:    detail,
		Agent:     operator,
		CreatedAt: time.Now().UTC(),
	}
	err := writer.Submit(ctx, serializer.PriorityCritical, "safety.reset", func(tx *gorm.DB) error {
		return repository.NewSafetyEventRepository(tx).Create(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"component": "SafetyMonitor",
		"operator":  operator,
	}).Warn("Safety reset marker written")
	return event, nil
}
