// Command innsearch resolves tax identifiers for every person in an input
// workbook and appends the results to an output workbook.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"innsearch/internal/anonymity"
	"innsearch/internal/challenge"
	"innsearch/internal/person"
	"innsearch/internal/platform/config"
	"innsearch/internal/platform/httpserver"
	"innsearch/internal/platform/logger"
	platformmetrics "innsearch/internal/platform/metrics"
	"innsearch/internal/platform/redis"
	"innsearch/internal/report"
	"innsearch/internal/resolution"
	"innsearch/internal/resolution/cache"
	"innsearch/internal/resolution/events"
	"innsearch/internal/resolution/metrics"
	"innsearch/internal/resolution/store"
	"innsearch/internal/retry"
	"innsearch/internal/source"
	"innsearch/internal/source/nalog"
	"innsearch/internal/source/ogu"
	"innsearch/internal/spreadsheet"
	liststrings "innsearch/pkg/platform/strings"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if cfg.Output == "" {
		cfg.Output = spreadsheet.DefaultOutputPath(time.Now())
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platform := platformmetrics.New()
	platform.IncrementRunsStarted()
	resMetrics := metrics.New(platform.Registry)

	health := map[string]httpserver.HealthCheck{}
	opts := []resolution.Option{
		resolution.WithLogger(log),
		resolution.WithMetrics(resMetrics),
		resolution.WithTracer(otel.Tracer("innsearch/resolution")),
		resolution.WithMaxConcurrent(cfg.Concurrency),
		resolution.WithRetryPolicy(retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxJitter:   cfg.Retry.MaxJitter,
		}),
	}
	if cfg.Breaker.Threshold > 0 {
		opts = append(opts, resolution.WithCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown))
	}

	// The session is released after every other component, including on a
	// failed run.
	var transport http.RoundTripper
	if cfg.Tor.Enabled {
		session, err := anonymity.New(cfg.Tor.Config,
			anonymity.WithLogger(log),
			anonymity.WithMetrics(resMetrics),
		)
		if err != nil {
			return err
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := session.Release(releaseCtx); err != nil {
				log.ErrorContext(releaseCtx, "anonymity session release failed", "error", err)
			}
			platform.SetProxyUp(false)
		}()
		if err := session.Acquire(ctx); err != nil {
			return fmt.Errorf("acquire anonymity session: %w", err)
		}
		platform.SetProxyUp(true)
		transport = session.Transport()
		opts = append(opts, resolution.WithGate(session))
	}

	var cleanups []func(context.Context)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i](shutdownCtx)
		}
	}()

	sources, err := buildSources(cfg, transport, log)
	if err != nil {
		return err
	}

	idCache, err := buildCache(ctx, cfg, health, &cleanups)
	if err != nil {
		return err
	}
	if idCache != nil {
		opts = append(opts, resolution.WithCache(idCache))
	}

	writer := spreadsheet.NewWriter(cfg.Output)
	sinks := store.Multi{writer}
	if cfg.Store.Driver != "" {
		sqlSink, err := store.Open(ctx, store.Dialect(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func(context.Context) { _ = sqlSink.Close() })
		sinks = append(sinks, sqlSink)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		worker, err := startEvents(ctx, cfg.Kafka, log, &cleanups)
		if err != nil {
			return err
		}
		opts = append(opts, resolution.WithEvents(worker))
	}

	if cfg.Metrics.Addr != "" {
		srv := httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(platform.Registry, health))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		cleanups = append(cleanups, func(ctx context.Context) { _ = srv.Shutdown(ctx) })
		log.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	svc, err := resolution.New(sources, sinks, opts...)
	if err != nil {
		return err
	}

	reader := countingReader{PersonSource: spreadsheet.NewReader(cfg.Input, log), metrics: platform}
	summary, err := svc.Run(ctx, reader)
	if err != nil {
		return err
	}

	if cfg.S3.Bucket != "" {
		uploadReport(ctx, cfg.S3, summary, writer.Path(), log)
	}
	return nil
}

func loadConfig(args []string) (*config.Config, error) {
	flags := pflag.NewFlagSet("innsearch", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", os.Getenv("INNSEARCH_CONFIG"), "path to a YAML config file")
	input := flags.StringP("input", "i", "", "input workbook with persons")
	output := flags.StringP("output", "o", "", "output workbook (default search_inn_<timestamp>.xlsx)")
	concurrency := flags.Int("concurrency", 0, "persons resolved at once")
	sourcesFlag := flags.String("sources", "", "comma separated sources in priority order (nalog, ogu)")
	noTor := flags.Bool("no-tor", false, "send requests directly instead of through the anonymity proxy")
	metricsAddr := flags.String("metrics-addr", "", "serve /metrics and /healthz on this address")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if flags.Changed("input") {
		cfg.Input = *input
	} else if flags.NArg() > 0 {
		cfg.Input = flags.Arg(0)
	}
	if flags.Changed("output") {
		cfg.Output = *output
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = *concurrency
	}
	if flags.Changed("sources") {
		cfg.Sources.Order = liststrings.DedupeAndTrimLower(liststrings.SplitList(*sourcesFlag))
	}
	if *noTor {
		cfg.Tor.Enabled = false
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = *metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func buildSources(cfg *config.Config, transport http.RoundTripper, log *slog.Logger) ([]source.Source, error) {
	var solver nalog.Solver
	if cfg.Challenge.ModelURL != "" {
		model := challenge.NewRemoteModel(cfg.Challenge.ModelURL, cfg.Challenge.Width, cfg.Challenge.Height, cfg.Challenge.Timeout)
		gateway, err := challenge.NewGateway(model, cfg.Challenge.Vocabulary, challenge.WithLogger(log))
		if err != nil {
			return nil, err
		}
		solver = gateway
	}

	out := make([]source.Source, 0, len(cfg.Sources.Order))
	for _, name := range cfg.Sources.Order {
		switch name {
		case nalog.Name:
			opts := []nalog.Option{
				nalog.WithTransport(transport),
				nalog.WithTimeout(cfg.Sources.Timeout),
				nalog.WithPolling(cfg.Sources.PollInterval, cfg.Sources.MaxPolls),
				nalog.WithLogger(log),
			}
			if cfg.Sources.NalogURL != "" {
				opts = append(opts, nalog.WithBaseURL(cfg.Sources.NalogURL))
			}
			if solver != nil {
				opts = append(opts, nalog.WithSolver(solver))
			}
			out = append(out, nalog.New(opts...))
		case ogu.Name:
			opts := []ogu.Option{
				ogu.WithTransport(transport),
				ogu.WithTimeout(cfg.Sources.Timeout),
				ogu.WithLogger(log),
			}
			if cfg.Sources.OGUURL != "" {
				opts = append(opts, ogu.WithBaseURL(cfg.Sources.OGUURL))
			}
			out = append(out, ogu.New(opts...))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return out, nil
}

func buildCache(ctx context.Context, cfg *config.Config, health map[string]httpserver.HealthCheck, cleanups *[]func(context.Context)) (resolution.IdentifierCache, error) {
	switch cfg.Cache.Driver {
	case "memory":
		return cache.NewInMemoryCache(cfg.Cache.TTL), nil
	case "redis":
		client, err := redis.New(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		health["redis"] = client.Health
		*cleanups = append(*cleanups, func(context.Context) { _ = client.Close() })
		return cache.NewRedisCache(client.Client, cfg.Cache.TTL), nil
	default:
		return nil, nil
	}
}

func startEvents(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger, cleanups *[]func(context.Context)) (*events.Worker, error) {
	client, err := events.NewClient(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	if err := events.EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions, cfg.Replication); err != nil {
		client.Close()
		return nil, err
	}
	publisher, err := events.NewKafkaPublisher(client, cfg.Topic)
	if err != nil {
		client.Close()
		return nil, err
	}
	worker := events.NewWorker(publisher, cfg.Buffer, log)
	go worker.Run(context.WithoutCancel(ctx))

	*cleanups = append(*cleanups, func(ctx context.Context) {
		if err := worker.Close(ctx); err != nil {
			log.WarnContext(ctx, "event backlog not flushed", "error", err)
		}
		if dropped := worker.Dropped(); dropped > 0 {
			log.WarnContext(ctx, "events dropped", "count", dropped)
		}
		client.Close()
	})
	return worker, nil
}

func uploadReport(ctx context.Context, cfg report.Config, summary resolution.Summary, path string, log *slog.Logger) {
	uploader, err := report.New(ctx, cfg)
	if err != nil {
		log.ErrorContext(ctx, "report upload disabled", "error", err)
		return
	}
	key, err := uploader.Upload(ctx, summary.RunID, path, map[string]string{
		"total":     strconv.Itoa(summary.Total),
		"found":     strconv.Itoa(summary.Found),
		"not-found": strconv.Itoa(summary.NotFound),
		"errors":    strconv.Itoa(summary.Errors),
	})
	if err != nil {
		log.ErrorContext(ctx, "report upload failed", "error", err)
		return
	}
	log.InfoContext(ctx, "report uploaded", "bucket", cfg.Bucket, "key", key)
}

// countingReader records how many persons the input yielded.
type countingReader struct {
	resolution.PersonSource
	metrics *platformmetrics.Metrics
}

func (r countingReader) Read(ctx context.Context) ([]person.Person, error) {
	persons, err := r.PersonSource.Read(ctx)
	r.metrics.SetPersonsLoaded(len(persons))
	return persons, err
}
