package admission

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradeledger/src/externalmodel"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

// Store-backed lookups. Failures of these block the candidate.

type LiveOrders interface {
	ExistsLive(ctx context.Context, symbol, side string) (bool, error)
}

type TradeCounter interface {
	CountAdmittedSince(ctx context.Context, since time.Time) (int64, error)
}

// OutcomeHistory returns recent trade outcomes as fractional returns, newest first.
type OutcomeHistory interface {
	RecentOutcomes(ctx context.Context, symbol string, n int) ([]float64, error)
}

// LossStreaks returns the number of consecutive losing trades, newest first.
type LossStreaks interface {
	LossStreak(ctx context.Context) (int, error)
}

type FundingSource interface {
	TradingBalance(ctx context.Context) (decimal.Decimal, error)
	EstimateFee(notional decimal.Decimal) decimal.Decimal
}

// Advisory lookups published by external collaborators. Failures of these
// are logged and the gate passes.

type RiskScorer interface {
	RiskScore(ctx context.Context, symbol string) (float64, error)
}

type StressGauge interface {
	SystemStress(ctx context.Context) (float64, error)
}

type GovernanceScorer interface {
	GovernanceScore(ctx context.Context, symbol string) (float64, error)
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight scales a similarity by how bad the catalogued failure was.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.9
	case SeverityMedium:
		return 0.7
	default:
		return 0.5
	}
}

// FailureMatch is the closest catalogued past failure.
type FailureMatch struct {
	Pattern    string
	Similarity float64
	Severity   Severity
}

type FailureCatalog interface {
	Match(ctx context.Context, c *Candidate) (*FailureMatch, error)
}

type MoodProvider interface {
	Multiplier(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Recommendation is competitive advice. Zero fields mean no advice.
type Recommendation struct {
	Veto   bool
	Scale  decimal.Decimal
	Delay  time.Duration
	Slices int
	Reason string
}

type CompetitiveAdvisor interface {
	Recommend(ctx context.Context, symbol, side string, notional decimal.Decimal) (Recommendation, error)
}

// Neutral answers every advisory lookup with a value that never moves a gate.
type Neutral struct{}

func (Neutral) RiskScore(context.Context, string) (float64, error)       { return 0, nil }
func (Neutral) SystemStress(context.Context) (float64, error)            { return 0, nil }
func (Neutral) GovernanceScore(context.Context, string) (float64, error) { return 1, nil }
func (Neutral) Match(context.Context, *Candidate) (*FailureMatch, error) { return nil, nil }
func (Neutral) Multiplier(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}
func (Neutral) Recommend(context.Context, string, string, decimal.Decimal) (Recommendation, error) {
	return Recommendation{}, nil
}

// SignalAdvisory reads the latest published advisory values from the
// read-only signal database. Unpublished signals read as neutral.
type SignalAdvisory struct {
	repo *repository.AdvisorySignalRepository
}

func NewSignalAdvisory(readOnly *gorm.DB) *SignalAdvisory {
	return &SignalAdvisory{repo: repository.NewAdvisorySignalRepository(readOnly)}
}

func (a *SignalAdvisory) value(ctx context.Context, kind, symbol string, fallback float64) (float64, error) {
	s, err := a.repo.Latest(ctx, kind, symbol)
	if err != nil || s == nil {
		return fallback, err
	}
	return s.Value, nil
}

func (a *SignalAdvisory) RiskScore(ctx context.Context, symbol string) (float64, error) {
	return a.value(ctx, externalmodel.SignalRiskScore, symbol, 0)
}

func (a *SignalAdvisory) SystemStress(ctx context.Context) (float64, error) {
	return a.value(ctx, externalmodel.SignalSystemStress, "", 0)
}

func (a *SignalAdvisory) GovernanceScore(ctx context.Context, symbol string) (float64, error) {
	return a.value(ctx, externalmodel.SignalGovernanceScore, symbol, 1)
}

// PurposeScore is the agent purpose scalar watched by the safety monitor.
func (a *SignalAdvisory) PurposeScore(ctx context.Context) (float64, error) {
	return a.value(ctx, externalmodel.SignalPurposeScore, "", 1)
}

func (a *SignalAdvisory) Match(ctx context.Context, c *Candidate) (*FailureMatch, error) {
	s, err := a.repo.Latest(ctx, externalmodel.SignalFailureSimilarity, c.Symbol)
	if err != nil || s == nil {
		return nil, err
	}
	severity, pattern, _ := strings.Cut(s.Detail, ":")
	return &FailureMatch{
		Pattern:    strings.TrimSpace(pattern),
		Similarity: s.Value,
		Severity:   Severity(strings.ToLower(strings.TrimSpace(severity))),
	}, nil
}

// Recommend reads the latest competitive advice for the symbol. Advice is
// published per symbol and applies to both sides.
func (a *SignalAdvisory) Recommend(ctx context.Context, symbol, _ string, _ decimal.Decimal) (Recommendation, error) {
	s, err := a.repo.Latest(ctx, externalmodel.SignalCompetitiveAdvice, symbol)
	if err != nil || s == nil {
		return Recommendation{}, err
	}

	action, reason, _ := strings.Cut(s.Detail, ":")
	rec := Recommendation{Reason: strings.TrimSpace(reason)}
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "veto":
		rec.Veto = true
	case "scale":
		rec.Scale = decimal.NewFromFloat(s.Value)
	case "delay":
		rec.Delay = time.Duration(s.Value * float64(time.Second))
	case "split":
		rec.Slices = int(s.Value)
	}
	return rec, nil
}

// LedgerHistory derives outcome history and loss streaks from realized PnL.
type LedgerHistory struct {
	db *gorm.DB
}

func NewLedgerHistory(db *gorm.DB) *LedgerHistory {
	return &LedgerHistory{db: db}
}

func (h *LedgerHistory) RecentOutcomes(ctx context.Context, symbol string, n int) ([]float64, error) {
	rows, err := repository.NewPnLRepository(h.db).FindLatestBySymbol(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.RoiPct.Div(decimal.NewFromInt(100)).InexactFloat64())
	}
	return out, nil
}

func (h *LedgerHistory) LossStreak(ctx context.Context) (int, error) {
	rows, err := repository.NewPnLRepository(h.db).FindLatest(ctx, 50)
	if err != nil {
		return 0, err
	}
	return lossStreak(rows), nil
}

func lossStreak(rows []model.RealizedPnL) int {
	streak := 0
	for _, r := range rows {
		if r.ProfitAmount.IsPositive() {
			break
		}
		streak++
	}
	return streak
}
