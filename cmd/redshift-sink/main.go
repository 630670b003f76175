package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/streamhouse/redshift-sink/internal/api"
	"github.com/streamhouse/redshift-sink/internal/buffer"
	"github.com/streamhouse/redshift-sink/internal/config"
	"github.com/streamhouse/redshift-sink/internal/encode"
	"github.com/streamhouse/redshift-sink/internal/journal"
	"github.com/streamhouse/redshift-sink/internal/keygen"
	"github.com/streamhouse/redshift-sink/internal/loader"
	"github.com/streamhouse/redshift-sink/internal/logger"
	"github.com/streamhouse/redshift-sink/internal/schema"
	"github.com/streamhouse/redshift-sink/internal/sink"
	"github.com/streamhouse/redshift-sink/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "redshift-sink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	mainLog := logger.Get("main")

	fileType, err := encode.ParseFileType(cfg.Sink.FileType)
	if err != nil {
		return err
	}
	delimiter := fileType.ResolveDelimiter(cfg.Sink.Delimiter)

	store, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(cfg.Journal.DBPath, log.Logger)
		if err != nil {
			return err
		}
		defer jrnl.Close()
	}

	enc, err := encode.New(fileType, delimiter, cfg.Sink.RecordLogField, log.Logger)
	if err != nil {
		return err
	}

	dsn := cfg.Redshift.DSN()
	fetcher := schema.NewFetcher(dsn, cfg.Redshift.Table, log.Logger)
	keys := keygen.New(store, cfg.Sink.PathPrefix, cfg.Sink.TimestampKey, cfg.Sink.UTC, log.Logger)
	ld := loader.New(dsn, cfg.Redshift.Table, delimiter, fileType == encode.FileTypeMsgpack,
		loader.Credentials{AccessKey: cfg.Storage.S3AccessKey, SecretKey: cfg.Storage.S3SecretKey},
		log.Logger)

	var flushJournal sink.FlushJournal
	if jrnl != nil {
		flushJournal = jrnl
	}
	out := sink.New(cfg.Redshift.Table, enc, fetcher, keys, store, ld, flushJournal, log.Logger)

	buf := buffer.New(out, buffer.Config{
		MaxRecords:    cfg.Buffer.MaxRecords,
		MaxBytes:      cfg.Buffer.MaxBytes,
		FlushInterval: time.Duration(cfg.Buffer.FlushInterval) * time.Second,
		RetryLimit:    cfg.Buffer.RetryLimit,
		RetryWait:     time.Duration(cfg.Buffer.RetryWaitMS) * time.Millisecond,
	}, log.Logger)

	server := api.NewServer(api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}, buf, jrnl, log.Logger)

	mainLog.Info().
		Str("table", cfg.Redshift.Table).
		Str("file_type", string(fileType)).
		Str("storage", store.Type()).
		Msg("Starting redshift-sink")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Listen()
	})

	g.Go(func() error {
		// Run returns after draining when gctx is cancelled
		return buf.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		mainLog.Info().Msg("Shutting down")
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	mainLog.Info().Msg("Shutdown complete")
	return nil
}

func newBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Backend(&storage.S3Config{
			Bucket:    cfg.Storage.S3Bucket,
			Region:    cfg.Storage.S3Region,
			Endpoint:  cfg.Storage.S3Endpoint,
			AccessKey: cfg.Storage.S3AccessKey,
			SecretKey: cfg.Storage.S3SecretKey,
			UseSSL:    cfg.Storage.S3UseSSL,
			PathStyle: cfg.Storage.S3PathStyle,
		}, log.Logger)
	case "local":
		return storage.NewLocalBackend(cfg.Storage.LocalPath, log.Logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
