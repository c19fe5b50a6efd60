package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/app"
	"github.com/newmedica/storefront/internal/messaging/kafka"
)

const (
	clientID           = "storefront-dlq-reprocess"
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// options — флаги поверх конфигурации витрины (STOREFRONT_KAFKA_*).
type options struct {
	brokers []string
	replay  kafka.ReplayConfig
}

func parseOptions(args []string, defaults app.Config) (options, error) {
	var (
		brokers string
		opts    options
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", strings.Join(defaults.KafkaBrokers, ","), "comma-separated Kafka brokers")
	fs.StringVar(&opts.replay.SourceTopic, "source-topic", defaults.KafkaDLQTopic, "dead letter topic to read")
	fs.StringVar(&opts.replay.TargetTopic, "target-topic", defaults.KafkaTopic, "topic to replay events into")
	fs.IntVar(&opts.replay.Limit, "limit", defaultReplayLimit, "max messages to scan")
	fs.BoolVar(&opts.replay.Execute, "execute", false, "publish replayed events (default: dry run)")
	fs.BoolVar(&opts.replay.FromNewest, "from-newest", false, "scan the newest messages first")
	fs.DurationVar(&opts.replay.IdleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.brokers = splitBrokers(brokers)
	opts.replay.SourceTopic = strings.TrimSpace(opts.replay.SourceTopic)
	opts.replay.TargetTopic = strings.TrimSpace(opts.replay.TargetTopic)

	var errs []error
	if len(opts.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (-brokers or STOREFRONT_KAFKA_BROKERS)"))
	}
	if opts.replay.SourceTopic == "" || opts.replay.TargetTopic == "" {
		errs = append(errs, errors.New("source and target topics are required"))
	}
	if opts.replay.Limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if opts.replay.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	return opts, errors.Join(errs...)
}

func splitBrokers(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
}

// replayDeps — подключения к Kafka; closers закрываются в обратном порядке.
type replayDeps struct {
	client   kafka.OffsetClient
	source   kafka.PartitionSource
	producer *kafka.Producer
	closers  []io.Closer
}

func (d replayDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
}

var newReplayDependencies = func(opts options) (replayDeps, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, cfg)
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	deps := replayDeps{client: client, closers: []io.Closer{client}}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps.source = kafka.SaramaSource{Consumer: consumer}
	deps.closers = append(deps.closers, consumer)

	if opts.replay.Execute {
		producer, err := kafka.NewProducer(opts.brokers, clientID)
		if err != nil {
			deps.Close()
			return replayDeps{}, err
		}
		deps.producer = producer
		deps.closers = append(deps.closers, producer)
	}
	return deps, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	log.WithFields(log.Fields{
		"source_topic": opts.replay.SourceTopic,
		"target_topic": opts.replay.TargetTopic,
		"limit":        opts.replay.Limit,
		"execute":      opts.replay.Execute,
	}).Info("dlq replay started")

	deps, err := newReplayDependencies(opts)
	if err != nil {
		return err
	}
	defer deps.Close()

	stats, err := kafka.NewReplayer(deps.client, deps.source, deps.producer, nil).Run(ctx, opts.replay)
	if err != nil {
		return err
	}

	mode := "dry run"
	if opts.replay.Execute {
		mode = "executed"
	}
	_, _ = fmt.Fprintf(out, "dlq replay %s: processed=%d replayed=%d skipped=%d\n",
		mode, stats.Processed, stats.Replayed, stats.Skipped)
	return nil
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fail("config: %v", err)
	}
	app.SetupLogger(cfg.LogLevel)

	opts, err := parseOptions(os.Args[1:], cfg)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func fail(format string, args ...any) {
	log.Errorf(format, args...)
	os.Exit(1)
}
