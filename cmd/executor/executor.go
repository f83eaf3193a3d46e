package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tradeledger/src/admission"
	"tradeledger/src/audit"
	"tradeledger/src/connectors"
	"tradeledger/src/database"
	"tradeledger/src/execution"
	"tradeledger/src/executors"
	"tradeledger/src/ledger"
	"tradeledger/src/orders"
	"tradeledger/src/quotes"
	"tradeledger/src/repository"
	"tradeledger/src/risk"
	"tradeledger/src/safety"
	"tradeledger/src/serializer"
)

type Executor struct{}

func (t *Executor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	return t.Run(ctx)
}

// Run wires one agent against the shared store and blocks until ctx ends or
// the safety monitor terminates the session.
func (t *Executor) Run(ctx context.Context) error {
	config := GetConfig()
	agentConfig := executors.GetConfig()
	ledgerConfig := ledger.GetConfig()
	connConfig := connectors.GetConfig()
	log := logrus.WithField("agent", agentConfig.Agent)

	// Initialize main (read/write) database
	db, err := OpenMainDB()
	if err != nil {
		log.WithError(err).Error("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	readOnly, err := database.OpenReadOnlyDB(database.GetConfig())
	if err != nil {
		log.WithError(err).Error("Failed to connect to read-only database")
		return err
	}

	writer := serializer.New(db, serializer.GetConfig())
	defer writer.Close()

	monitor := safety.NewMonitor(db, writer, safety.GetConfig(), agentConfig.Agent)
	if err := monitor.CheckStartup(ctx); err != nil {
		log.WithError(err).Error("Refusing to start")
		return err
	}

	exchange, err := NewExchange(connConfig)
	if err != nil {
		return err
	}

	cache, closeCache, err := NewQuoteCache(ctx, quotes.GetConfig())
	if err != nil {
		log.WithError(err).Error("Failed to open quote cache")
		return err
	}
	defer closeCache()

	var source quotes.TickerSource
	if exchange != nil {
		source = exchange
	}
	reader := quotes.NewReader(cache, source)

	if config.StreamEnabled && len(connConfig.StreamSymbols) > 0 {
		stream := connectors.NewTickerStream(connConfig.StreamURL, connConfig.StreamSymbols, reader.Observe)
		go stream.Run(ctx)
	}

	engine := ledger.NewEngine(db, writer, ledgerConfig)
	queue := orders.NewQueue(db, writer, orders.GetConfig())
	orderRepo := repository.NewOrderRepository(db)
	signals := admission.NewSignalAdvisory(readOnly)
	history := admission.NewLedgerHistory(db)

	admissionConfig := admission.GetConfig()
	gates, err := admission.BuildGates(admissionConfig.Gates, admissionConfig, admission.Deps{
		Orders:     orderRepo,
		Trades:     orderRepo,
		Outcomes:   history,
		Streaks:    history,
		Funding:    engine,
		Risk:       signals,
		Stress:     signals,
		Failures:   signals,
		Governance: signals,
		Advisor:    signals,
		Mood:       risk.NewSessionSizer(risk.GetConfig()),
	})
	if err != nil {
		log.WithError(err).Error("Invalid admission pipeline")
		return err
	}
	controller := admission.NewController(gates, queue, reader, monitor, admissionConfig)

	execConfig := execution.GetConfig()
	client := execution.NewClient(exchange, execution.NewBudget(execConfig.CallBudgetPerHour, time.Hour), reader, execConfig).
		WithHoldings(engine)

	agent, err := executors.NewAgent(executors.Deps{
		Proposals: repository.NewTradeProposalRepository(readOnly),
		Admission: controller,
		Orders:    queue,
		Execution: client,
		Ledger:    engine,
		Prices:    reader,
		Safety:    monitor,
		Purpose:   signals,
		Ladder:    ledger.NewLadder(ledgerConfig.HarvestTiers),
		Audit:     audit.NewRecorder(writer, agentConfig.Agent),
	}, agentConfig)
	if err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"gates":     admissionConfig.Gates,
		"simulated": client.Simulated(),
	}).Info("Starting agent")

	if err := agent.StartLoop(ctx); err != nil {
		log.WithError(err).Error("Agent loop stopped")
		return err
	}
	return nil
}
