package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/app"
	"github.com/newmedica/storefront/internal/outbox"
)

const (
	envEmail    = "STOREFRONT_EMAIL"
	envPassword = "STOREFRONT_PASSWORD"
)

const usage = `usage: storefront <command> [args]

commands:
  login <email>                      sign in (password from STOREFRONT_PASSWORD)
  logout                             sign out and clear the local cart
  whoami                             show the signed-in user
  cart show|add|set|remove ...       inspect and edit the cart
  checkout [flags]                   place an order from the cart
  complete -order-id|-session-id     confirm an order on the success page
  orders list|show <id>|retry <id>   order history
  addresses list|add|primary|delete  address book
  vouchers [-active]                 available vouchers
  profile                            profile completeness
  quote <product-id>                 request a quotation
`

var errUsage = errors.New("invalid usage")

// loadConfig подменяется в тестах.
var loadConfig = app.LoadConfig

// env — команда CLI с собранным ядром витрины.
type env struct {
	sf     *app.Storefront
	out    io.Writer
	getenv func(string) string
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	app.SetupLogger(cfg.LogLevel)
	logger := log.WithField("component", "storefront-cli")

	storage, err := app.OpenStorage(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "storage: %v\n", err)
		return 1
	}
	defer storage.Close()
	if cfg.StorageDriver == app.StorageDriverMemory {
		logger.Debug("memory storage: the session lasts for this command only")
	}

	sink, err := app.OpenEvents(cfg, logger.WithField("layer", "events"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "events: %v\n", err)
		return 1
	}
	defer sink.Close()

	deps := app.StorefrontDeps{
		Navigator:   newPrintNavigator(stdout, cfg.PublicOrigin),
		Snapshots:   storage.Snapshots,
		Idempotency: storage.Idempotency,
		Registerer:  prometheus.NewRegistry(),
		Logger:      logger,
	}
	if sink.Enabled() {
		deps.Outbox = storage.Outbox
	}
	sf, err := app.NewStorefront(cfg, deps)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "storefront: %v\n", err)
		return 1
	}
	defer sf.Close()

	if err := sf.Restore(ctx); err != nil {
		logger.WithError(err).Debug("stored session dropped")
	}

	e := &env{sf: sf, out: stdout, getenv: getenv}
	if needsSession(args[0]) && !sf.Session.IsAuthenticated() {
		if err := e.autoLogin(ctx); err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}

	err = e.dispatch(ctx, args[0], args[1:])
	sf.Close()

	if sink.Enabled() {
		worker := outbox.NewWorker(storage.Outbox, sink.Publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
		)
		report := worker.Drain(ctx)
		logger.WithField("report", fmt.Sprintf("%+v", report)).Debug("outbox drained")
	}

	switch {
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	case err != nil:
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return 0
}

func needsSession(command string) bool {
	switch command {
	case "login", "logout", "complete":
		return false
	}
	return true
}

// autoLogin входит по STOREFRONT_EMAIL/STOREFRONT_PASSWORD, если сохранённой сессии нет.
func (e *env) autoLogin(ctx context.Context) error {
	email := strings.TrimSpace(e.getenv(envEmail))
	password := e.getenv(envPassword)
	if email == "" || password == "" {
		return errors.New("not logged in: run `storefront login <email>` or set " + envEmail + " and " + envPassword)
	}
	if _, err := e.sf.Session.Login(ctx, email, password); err != nil {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
