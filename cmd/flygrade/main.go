// Command flygrade grades machine-generated flight-state predictions
// against the nineteen-field avionics schema and writes per-sample records,
// task summaries, and model profiles with a reproducibility envelope.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/aerograde/flygrade/infrastructure/adjudicators"
	"github.com/aerograde/flygrade/infrastructure/dataio"
	"github.com/aerograde/flygrade/infrastructure/llm"
	"github.com/aerograde/flygrade/infrastructure/middleware"
	"github.com/aerograde/flygrade/infrastructure/verifiers"
	"github.com/aerograde/flygrade/internal/application"
	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// env carries the judge credentials. Only adjudicator=llm needs them.
type env struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIAPIBase string `env:"OPENAI_API_BASE"`
	JudgeModel    string `env:"FLYGRADE_JUDGE_MODEL"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flygrade",
		Short:         "Evidence-driven grading of flight-state predictions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		taskFlag        string
		outputDir       string
		models          []string
		samplesPerModel int
		configPath      string
		adjudicatorName string
		enableMetrics   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate model replies and write records, summaries, and profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := clog.FromContext(ctx)

			cfg, err := application.LoadConfig(configPath)
			if err != nil {
				return err
			}

			tasks, err := parseTasks(taskFlag)
			if err != nil {
				return err
			}

			var collector ports.MetricsCollector
			if enableMetrics {
				collector = middleware.NewPrometheusMetrics()
			}

			adjudicator, judgeModel, err := buildAdjudicator(ctx, cfg, adjudicatorName, collector)
			if err != nil {
				return err
			}

			graph, err := buildGraph(cfg)
			if err != nil {
				return err
			}

			history := application.NewPredictionHistory()
			ledger := application.NewLedger(cfg)
			evaluator := application.NewSampleEvaluator(cfg, graph, adjudicator, history, ledger,
				application.WithMetrics(collector),
				application.WithJudgeModel(judgeModel),
			)

			sink, err := dataio.NewResultWriter(outputDir)
			if err != nil {
				return err
			}
			defer sink.Close()

			runner := application.NewRunner(cfg, evaluator, history, ledger,
				dataio.NewReplyCorpus(cfg.Data.RepliesDir),
				dataio.NewReferenceFiles(cfg.Data.ReferenceDir, cfg.TaskSpecs),
				dataio.NewConfidenceFiles(cfg.Data.ConfidenceFiles),
				sink, judgeModel)

			log.Info("starting run",
				"tasks", taskFlag, "adjudicator", adjudicatorName, "output", outputDir)
			return runner.Run(ctx, application.RunOptions{
				Tasks:           tasks,
				Models:          models,
				SamplesPerModel: samplesPerModel,
			})
		},
	}

	cmd.Flags().StringVar(&taskFlag, "task", "all", "task to evaluate: S1, M1, M3, or all")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "directory for records, summaries, and profiles")
	cmd.Flags().StringSliceVar(&models, "models", nil, "restrict evaluation to these model names")
	cmd.Flags().IntVar(&samplesPerModel, "samples-per-model", 0, "cap samples per (task, model); 0 means all")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config overriding the defaults")
	cmd.Flags().StringVar(&adjudicatorName, "adjudicator", "rule", "adjudicator: rule or llm")
	cmd.Flags().BoolVar(&enableMetrics, "metrics", false, "register Prometheus metrics")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the reproducibility envelope for the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := application.LoadConfig("")
			if err != nil {
				return err
			}
			ledger := application.NewLedger(cfg)
			envelope := map[string]string{
				"evaluator_version":   application.EvaluatorVersion,
				"config_hash":         ledger.ConfigHash(),
				"constraint_lib_hash": ledger.ConstraintLibHash(),
				"schema_hash_s1":      ledger.SchemaHash(domain.TaskS1),
				"schema_hash_m1":      ledger.SchemaHash(domain.TaskM1),
				"schema_hash_m3":      ledger.SchemaHash(domain.TaskM3),
				"timestamp":           time.Now().UTC().Format(time.RFC3339),
			}
			out, err := json.MarshalIndent(envelope, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func parseTasks(flag string) ([]domain.TaskID, error) {
	if strings.EqualFold(flag, "all") {
		return nil, nil
	}
	var tasks []domain.TaskID
	for _, part := range strings.Split(flag, ",") {
		id := domain.TaskID(strings.ToUpper(strings.TrimSpace(part)))
		if !domain.ValidTask(id) {
			return nil, fmt.Errorf("unknown task %q (expected S1, M1, M3, or all)", part)
		}
		tasks = append(tasks, id)
	}
	return tasks, nil
}

// buildGraph wires the six verifier nodes with their dependencies.
func buildGraph(cfg *application.Config) (*application.VerifierGraph, error) {
	graph := application.NewVerifierGraph()
	angles := cfg.AngleFieldSet()

	wiring := []struct {
		verifier ports.Verifier
		deps     []string
	}{
		{verifiers.NewNumericValidity(), nil},
		{verifiers.NewRangeSanity(cfg.LimitPairs()), []string{verifiers.NumericValidityID}},
		{verifiers.NewJumpDynamics(cfg.JumpThresholds, angles), []string{verifiers.NumericValidityID}},
		{verifiers.NewCrossFieldConsistency(), []string{verifiers.RangeSanityID}},
		{verifiers.NewPhysicsConstraint(cfg.JumpThresholds, angles), []string{verifiers.RangeSanityID}},
		{verifiers.NewSafetyConstraint(), []string{verifiers.RangeSanityID}},
	}
	for _, w := range wiring {
		if err := graph.Add(w.verifier, w.deps...); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

// buildAdjudicator selects and assembles the grading backend. The LLM judge
// wraps its provider in timeout, retry, rate-limit, and circuit-breaker
// middleware; metrics and tracing attach when a collector is present.
func buildAdjudicator(ctx context.Context, cfg *application.Config, name string, collector ports.MetricsCollector) (ports.Adjudicator, string, error) {
	switch name {
	case "rule":
		return adjudicators.NewRuleAdjudicator(), "", nil
	case "llm":
		var e env
		if err := envconfig.Process(ctx, &e); err != nil {
			return nil, "", fmt.Errorf("read environment: %w", err)
		}
		if e.OpenAIAPIKey == "" {
			return nil, "", fmt.Errorf("%w: OPENAI_API_KEY is required when adjudicator=llm", domain.ErrInvalidConfiguration)
		}
		model := cfg.Judge.Model
		if e.JudgeModel != "" {
			model = e.JudgeModel
		}

		mw := []llm.Middleware{
			llm.TimeoutMiddleware(time.Duration(cfg.Judge.TimeoutSeconds) * time.Second),
			llm.RetryMiddleware(cfg.Judge.MaxRetries, 500*time.Millisecond, 30*time.Second),
			llm.CircuitBreakerMiddleware(5, 30*time.Second),
		}
		if cfg.Judge.RequestsPerSecond > 0 {
			mw = append(mw, llm.RateLimitMiddleware(rate.Limit(cfg.Judge.RequestsPerSecond), 1))
		}
		if collector != nil {
			mw = append([]llm.Middleware{
				llm.MetricsMiddleware(collector),
				llm.TracingMiddleware("flygrade"),
			}, mw...)
		}

		client, err := llm.NewClient(cfg.Judge.Provider, llm.ClientConfig{
			APIKey:     e.OpenAIAPIKey,
			Model:      model,
			BaseURL:    e.OpenAIAPIBase,
			Middleware: mw,
		})
		if err != nil {
			return nil, "", err
		}
		judge, err := adjudicators.NewLLMJudge(client, cfg.Judge.MaxRetries,
			adjudicators.WithJudgeMetrics(collector),
			adjudicators.WithMaxTokens(cfg.Judge.MaxTokens))
		if err != nil {
			return nil, "", err
		}
		return judge, model, nil
	default:
		return nil, "", fmt.Errorf("unknown adjudicator %q (expected rule or llm)", name)
	}
}
