package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"gorm.io/gorm"

	"tradeledger/cmd/executor"
	"tradeledger/cmd/keys"
	"tradeledger/src/auth"
	"tradeledger/src/ledger"
	"tradeledger/src/orders"
	"tradeledger/src/quotes"
	"tradeledger/src/safety"
	"tradeledger/src/serializer"
	"tradeledger/src/server"
)

var Version string

func main() {
	defer handlePanic()

	app := cli.NewApp()
	app.Name = "tradeledger"
	app.Usage = "Trading agent, ledger and operator API"
	app.Version = Version
	app.Before = func(_ *cli.Context) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		SetupLogger()
		return nil
	}

	app.Commands = []cli.Command{
		agentCMD,
		serveCMD,
		migrateCMD,
		depositCMD,
		resetCMD,
		approveCMD,
		vetoCMD,
		tokenCMD,
		encryptCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func SetupLogger() {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logrus.WithError(fmt.Errorf("%+v", r)).Error("tradeledger panic")
		os.Exit(2)
	}
}

var (
	agentCMD = cli.Command{
		Name:        "agent",
		Usage:       "run a trading agent",
		Action:      agentAction,
		Description: `Run one agent loop against the shared store until interrupted or terminated by the safety monitor`,
	}
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the operator API",
		Action:      serveAction,
		Description: `Serve the read API for orders, positions, cash and audit records`,
	}
	migrateCMD = cli.Command{
		Name:   "migrate",
		Usage:  "migrate the schema and seed cash buckets",
		Action: migrateAction,
	}
	depositCMD = cli.Command{
		Name:   "deposit",
		Usage:  "credit cash to a bucket",
		Action: depositAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "bucket", Value: "trading", Usage: "bucket id"},
			cli.StringFlag{Name: "amount", Usage: "positive decimal amount"},
		},
	}
	resetCMD = cli.Command{
		Name:        "reset",
		Usage:       "clear a safety termination",
		Action:      resetAction,
		Description: `Record an operator reset so agents may start again`,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "operator", Usage: "who is resetting"},
			cli.StringFlag{Name: "detail", Usage: "why the reset is safe"},
		},
	}
	approveCMD = cli.Command{
		Name:      "approve",
		Usage:     "approve a pending order",
		ArgsUsage: "<order id>",
		Action:    approveAction,
	}
	vetoCMD = cli.Command{
		Name:      "veto",
		Usage:     "veto a pending or approved order",
		ArgsUsage: "<order id>",
		Action:    vetoAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "reason", Value: "vetoed by operator"},
		},
	}
	tokenCMD = cli.Command{
		Name:   "token",
		Usage:  "issue an operator API token",
		Action: tokenAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "operator", Usage: "operator name placed in the token"},
		},
	}
	encryptCMD = cli.Command{
		Name:        "encrypt",
		Usage:       "encrypt an exchange secret read from stdin",
		Action:      encryptAction,
		Description: `Print the value to put in EXCHANGE_API_SECRET_ENC`,
	}
)

func agentAction(_ *cli.Context) error {
	logrus.WithField("cmd", "agent").Info("Starting agent CMD")

	agent := &executor.Executor{}
	if err := agent.Start(); err != nil {
		logrus.WithError(err).Error("Agent stopped")
		return err
	}
	return nil
}

func serveAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "serve")
	log.Info("Starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := executor.OpenMainDB()
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}

	authConfig := auth.GetConfig()
	jwtSvc, err := auth.NewJWTService(authConfig.JWTSecret, authConfig.TokenTTL)
	if err != nil {
		return err
	}

	cache, closeCache, err := executor.NewQuoteCache(ctx, quotes.GetConfig())
	if err != nil {
		return err
	}
	defer closeCache()

	// The API only reads; it never books.
	engine := ledger.NewEngine(db, nil, ledger.GetConfig())

	router := server.NewRouter(server.GetConfig(), server.Deps{
		DB:     db,
		Engine: engine,
		Prices: quotes.NewReader(cache, nil),
		JWT:    jwtSvc,
	})
	return server.StartServer(ctx, server.GetConfig(), router)
}

func migrateAction(_ *cli.Context) error {
	if _, err := executor.OpenMainDB(); err != nil {
		logrus.WithError(err).Error("Migration failed")
		return err
	}
	logrus.Info("Schema up to date")
	return nil
}

// withWriter opens the store and runs fn with a serializer bound to it.
func withWriter(fn func(ctx context.Context, db *gorm.DB, writer *serializer.Serializer) error) error {
	db, err := executor.OpenMainDB()
	if err != nil {
		return err
	}
	writer := serializer.New(db, serializer.GetConfig())
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return fn(ctx, db, writer)
}

func depositAction(c *cli.Context) error {
	amount, err := decimal.NewFromString(c.String("amount"))
	if err != nil {
		return fmt.Errorf("invalid --amount: %w", err)
	}

	return withWriter(func(ctx context.Context, db *gorm.DB, writer *serializer.Serializer) error {
		balance, err := ledger.NewEngine(db, writer, ledger.GetConfig()).Deposit(ctx, c.String("bucket"), amount)
		if err != nil {
			return err
		}
		fmt.Printf("%s balance: %s\n", c.String("bucket"), balance)
		return nil
	})
}

func resetAction(c *cli.Context) error {
	operator := c.String("operator")
	if operator == "" {
		return errors.New("--operator is required")
	}

	return withWriter(func(ctx context.Context, _ *gorm.DB, writer *serializer.Serializer) error {
		event, err := safety.Reset(ctx, writer, operator, c.String("detail"))
		if err != nil {
			return err
		}
		fmt.Printf("safety reset recorded (event %d)\n", event.ID)
		return nil
	})
}

func orderID(c *cli.Context) (uint, error) {
	raw := c.Args().First()
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return uint(id), nil
}

func approveAction(c *cli.Context) error {
	id, err := orderID(c)
	if err != nil {
		return err
	}
	return withWriter(func(ctx context.Context, db *gorm.DB, writer *serializer.Serializer) error {
		if err := orders.NewQueue(db, writer, orders.GetConfig()).Approve(ctx, id); err != nil {
			return err
		}
		fmt.Printf("order %d approved\n", id)
		return nil
	})
}

func vetoAction(c *cli.Context) error {
	id, err := orderID(c)
	if err != nil {
		return err
	}
	return withWriter(func(ctx context.Context, db *gorm.DB, writer *serializer.Serializer) error {
		if err := orders.NewQueue(db, writer, orders.GetConfig()).Veto(ctx, id, c.String("reason")); err != nil {
			return err
		}
		fmt.Printf("order %d vetoed\n", id)
		return nil
	})
}

func tokenAction(c *cli.Context) error {
	operator := c.String("operator")
	if operator == "" {
		return errors.New("--operator is required")
	}

	config := auth.GetConfig()
	jwtSvc, err := auth.NewJWTService(config.JWTSecret, config.TokenTTL)
	if err != nil {
		return err
	}
	token, err := jwtSvc.Sign(operator)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func encryptAction(_ *cli.Context) error {
	return keys.Encrypt(os.Stdin, os.Stdout, "")
}
