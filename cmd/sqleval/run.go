package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/agent"
	"github.com/sqleval/sqleval/internal/driver"
	"github.com/sqleval/sqleval/internal/evaluator"
	"github.com/sqleval/sqleval/internal/report"
	"github.com/sqleval/sqleval/pkg/types"
)

// Agent kinds accepted by --agent.
const (
	agentPlaceholder = "placeholder"
	agentLLM         = "llm"
)

type runOptions struct {
	configPath string
	difficulty string
	model      string
	benchmark  bool
	testID     string
	substring  string
	agentKind  string
	output     string
	markdown   string
	cachePath  string
	verbose    bool
}

// benchmarkFilter selects benchmark mode when given to -k.
const benchmarkFilter = "benchmark"

func runEvaluation(ctx context.Context, stdout io.Writer, opts runOptions) error {
	if strings.EqualFold(strings.TrimSpace(opts.substring), benchmarkFilter) {
		opts.benchmark = true
		opts.substring = ""
	}
	var filter driver.Filter
	if opts.difficulty != "" {
		d, err := types.ParseDifficulty(opts.difficulty)
		if err != nil {
			return configError(err)
		}
		filter.Difficulty = d
	}
	filter.TestID = opts.testID
	filter.Substring = opts.substring
	if opts.agentKind != agentPlaceholder && opts.agentKind != agentLLM {
		return configError(fmt.Errorf("unknown agent %q (want %s or %s)", opts.agentKind, agentPlaceholder, agentLLM))
	}

	a, err := setup(ctx, setupOptions{
		configPath: opts.configPath,
		model:      opts.model,
		cachePath:  opts.cachePath,
		verbose:    opts.verbose,
		needJudge:  !opts.benchmark || opts.agentKind == agentLLM,
	})
	if err != nil {
		return err
	}
	defer a.close()
	log := a.logger

	cases, err := filter.Apply(a.corpus.All())
	if err != nil {
		return configError(err)
	}

	runner := buildAgent(a, opts.agentKind)
	fmt.Fprintf(stdout, "Using model: %s (provider: %s)\n", a.cfg.Model, a.cfg.Provider())
	fmt.Fprintf(stdout, "Running %d cases...\n", len(cases))

	dopts := []driver.Option{
		driver.WithThreshold(a.cfg.Threshold),
		driver.WithSchema(a.corpus.Schema()),
		driver.WithModel(a.cfg.Model, string(a.cfg.Provider())),
		driver.WithTelemetry(a.tracer, a.metrics),
		driver.WithLogger(log.Named("driver")),
	}
	if a.store != nil {
		dopts = append(dopts, driver.WithHistory(a.store.History, evaluator.DefaultDynamicConfig))
	}
	if opts.verbose && !opts.benchmark {
		dopts = append(dopts, driver.WithProgress(func(c *types.CaseResult) {
			if err := report.PrintCase(stdout, c); err != nil {
				log.Debug("print case", zap.Error(err))
			}
		}))
	}

	var registry *evaluator.Registry
	if !opts.benchmark {
		registry = a.registry()
	}
	d := driver.New(runner, registry, dopts...)

	var rep *types.Report
	var runErr error
	if opts.benchmark {
		rep, runErr = d.Benchmark(ctx, cases)
	} else {
		rep, runErr = d.Run(ctx, cases)
	}
	if rep == nil {
		return &exitError{code: driver.ExitConfigError, err: runErr}
	}
	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) {
			return &exitError{code: driver.ExitFailed, err: runErr}
		}
		log.Warn("run interrupted, writing partial report", zap.Int("cases", len(rep.Cases)))
	}

	if err := writeReports(a, rep, opts); err != nil {
		log.Error("write report", zap.Error(err))
		return &exitError{code: driver.ExitFailed, err: err}
	}
	if err := report.PrintSummary(stdout, rep); err != nil {
		return err
	}

	code := driver.ExitCode(rep)
	if runErr != nil {
		code = driver.ExitFailed
	}
	resultsPath := resultsPath(a, opts)
	if code == driver.ExitOK {
		fmt.Fprintf(stdout, "\nEvaluation completed successfully.\nResults saved to: %s\n", resultsPath)
		return nil
	}
	fmt.Fprintf(stdout, "\nEvaluation failed.\nResults saved to: %s\n", resultsPath)
	return &exitError{code: code}
}

func buildAgent(a *app, kind string) agent.Runner {
	if kind == agentLLM {
		return agent.NewLLMAgent(a.provider, a.corpus.Schema(), agent.WithAgentLogger(a.logger.Named("agent")))
	}
	return agent.NewPlaceholder(a.corpus.Schema(), a.cfg.Model)
}

func resultsPath(a *app, opts runOptions) string {
	if opts.output != "" {
		return opts.output
	}
	return a.cfg.Data.ResultsPath
}

func writeReports(a *app, rep *types.Report, opts runOptions) error {
	if err := report.WriteJSON(resultsPath(a, opts), rep); err != nil {
		return err
	}

	md := opts.markdown
	if md == "" {
		md = a.cfg.Data.MarkdownPath
	}
	if md != "" {
		f, err := os.Create(md)
		if err != nil {
			return fmt.Errorf("write markdown: %w", err)
		}
		if err := report.WriteMarkdown(f, rep); err != nil {
			f.Close()
			return fmt.Errorf("write markdown: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write markdown: %w", err)
		}
	}

	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Telemetry.MetricsFile); err != nil {
			a.logger.Warn("metrics textfile not written", zap.Error(err))
		}
	}
	a.logger.Info("reports written",
		zap.String("results", resultsPath(a, opts)),
		zap.String("markdown", md),
		zap.Duration("elapsed", time.Since(rep.Timestamp)))
	return nil
}
