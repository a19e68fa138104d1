package main

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/driver"
	"github.com/sqleval/sqleval/internal/evaluator"
	"github.com/sqleval/sqleval/internal/server"
)

type serveOptions struct {
	configPath string
	model      string
	cachePath  string
	verbose    bool
}

func runServe(ctx context.Context, opts serveOptions) error {
	a, err := setup(ctx, setupOptions{
		configPath: opts.configPath,
		model:      opts.model,
		cachePath:  opts.cachePath,
		verbose:    opts.verbose,
		needJudge:  true,
	})
	if err != nil {
		return err
	}
	defer a.close()

	registry := a.registry()
	dopts := []driver.Option{
		driver.WithThreshold(a.cfg.Threshold),
		driver.WithSchema(a.corpus.Schema()),
		driver.WithModel(a.cfg.Model, string(a.cfg.Provider())),
		driver.WithTelemetry(a.tracer, a.metrics),
		driver.WithLogger(a.logger.Named("driver")),
	}
	if a.store != nil {
		dopts = append(dopts, driver.WithHistory(a.store.History, evaluator.DefaultDynamicConfig))
	}
	d := driver.New(nil, registry, dopts...)

	srv := server.New(os.Stdin, os.Stdout, a.logger.Named("server"))
	server.RegisterHandlers(srv, &server.Engine{
		Version:  version,
		Corpus:   a.corpus,
		Driver:   d,
		Metrics:  registry.Names(),
		Model:    a.cfg.Model,
		Provider: string(a.cfg.Provider()),
	})
	a.logger.Info("serving on stdio", zap.String("run_id", d.RunID()))

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return &exitError{code: driver.ExitFailed, err: err}
	}
	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Telemetry.MetricsFile); err != nil {
			a.logger.Warn("metrics textfile not written", zap.Error(err))
		}
	}
	return nil
}
