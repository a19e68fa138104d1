package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sqleval/sqleval/internal/config"
	"github.com/sqleval/sqleval/internal/driver"
	"github.com/sqleval/sqleval/pkg/types"
)

func buildRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "sqleval",
		Short:         "Evaluation harness for SQL-generating agents",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML or .env config file (default: sqleval.yaml and .env when present)")

	root.AddCommand(
		buildRunCmd(&configPath),
		buildModelsCmd(),
		buildConfigCmd(&configPath),
		buildServeCmd(&configPath),
		buildVersionCmd(),
	)
	return root
}

func buildRunCmd(configPath *string) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent over the test cases and score the results",
		Example: `  # Evaluate every case with the configured judge
  sqleval run

  # Only complex cases, judged by Claude
  sqleval run --difficulty complex --model claude-3-5-sonnet-20241022

  # Agent success rate and timing only
  sqleval run --benchmark`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.configPath = *configPath
			return runEvaluation(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.difficulty, "difficulty", "", "Only run cases of this difficulty (simple, medium, complex)")
	f.StringVar(&opts.model, "model", "", "Judge model, overrides EVAL_MODEL")
	f.BoolVar(&opts.benchmark, "benchmark", false, "Run the agent only and report success rate and timing")
	f.StringVar(&opts.testID, "test-id", "", "Run a single case by id")
	f.StringVarP(&opts.substring, "filter", "k", "", "Only run cases whose id contains this substring; \"benchmark\" selects --benchmark")
	f.StringVar(&opts.agentKind, "agent", agentPlaceholder, "Agent under test: placeholder or llm")
	f.StringVarP(&opts.output, "output", "o", "", "Results JSON path (default EVAL_RESULTS_PATH or evaluation_results.json)")
	f.StringVar(&opts.markdown, "markdown", "", "Also write a Markdown report to this path")
	f.StringVar(&opts.cachePath, "cache", "", "SQLite file for judge cache and score history")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Print per-case details and development logs")
	return cmd
}

func buildModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List recommended judge models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.PrintRecommendations(cmd.OutOrStdout())
		},
	}
}

func buildConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return configError(err)
			}
			out := cmd.OutOrStdout()
			masked := cfg.Masked()
			data, err := yaml.Marshal(&masked)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Current configuration:\n  EVAL_MODEL: %s\n  Provider: %s\n", cfg.Model, cfg.Provider())
			for _, kv := range [][2]string{
				{"GEMINI_API_KEY", masked.Credentials.GeminiAPIKey},
				{"ANTHROPIC_API_KEY", masked.Credentials.AnthropicAPIKey},
				{"OPENAI_API_KEY", masked.Credentials.OpenAIAPIKey},
				{"EVAL_OBSERVABILITY_KEY", masked.Telemetry.ObservabilityKey},
			} {
				if kv[1] != "" {
					fmt.Fprintf(out, "  %s: %s\n", kv[0], kv[1])
				}
			}
			fmt.Fprintf(out, "\n%s", data)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "\nConfiguration error: %v\n", err)
				return &exitError{code: driver.ExitConfigError}
			}
			fmt.Fprintln(out, "\nConfiguration is valid.")
			return nil
		},
	}
}

func buildServeCmd(configPath *string) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Score agent results submitted as NDJSON JSON-RPC on stdin",
		Long: `Serve speaks JSON-RPC 2.0, one message per line, on stdin and stdout.
Methods: initialize, list_cases, evaluate_case, shutdown.
Logs are written to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.configPath = *configPath
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.model, "model", "", "Judge model, overrides EVAL_MODEL")
	cmd.Flags().StringVar(&opts.cachePath, "cache", "", "SQLite file for judge cache and score history")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Development logs")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqleval %s (commit: %s, metrics: %d)\n", version, commit, len(types.MetricNames))
		},
	}
}
