package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// RunOptions narrows a run to specific tasks, models, or sample counts.
type RunOptions struct {
	// Tasks to evaluate; empty means all configured tasks.
	Tasks []domain.TaskID
	// Models restricts evaluation to the named models; empty means every
	// model found in the reply corpus.
	Models []string
	// SamplesPerModel caps samples per (task, model); zero means no cap.
	SamplesPerModel int
}

// Runner orchestrates a full evaluation run: per-model ordered sample
// queues, model-level parallelism, aggregation, and output. Jump-dynamics
// correctness depends on the ordering contract: samples of one model are
// evaluated strictly in sample-index order on a single worker goroutine.
type Runner struct {
	cfg        *Config
	evaluator  *SampleEvaluator
	history    *PredictionHistory
	ledger     *Ledger
	replies    ports.ReplySource
	reference  ports.ReferenceStore
	confidence ports.ConfidenceSource
	sink       ports.ResultSink
	judgeModel string
}

// NewRunner wires a run from its collaborators.
func NewRunner(cfg *Config, evaluator *SampleEvaluator, history *PredictionHistory, ledger *Ledger,
	replies ports.ReplySource, reference ports.ReferenceStore, confidence ports.ConfidenceSource,
	sink ports.ResultSink, judgeModel string) *Runner {
	return &Runner{
		cfg:        cfg,
		evaluator:  evaluator,
		history:    history,
		ledger:     ledger,
		replies:    replies,
		reference:  reference,
		confidence: confidence,
		sink:       sink,
		judgeModel: judgeModel,
	}
}

// Run evaluates every selected (task, model) stream and writes records,
// task summaries, model profiles, and the reproducibility envelope.
// Cancellation stops enqueueing new samples; in-flight sample evaluations
// complete and their records are still emitted.
func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	log := clog.FromContext(ctx)

	tasks := opts.Tasks
	if len(tasks) == 0 {
		for _, t := range domain.TaskIDs {
			if _, ok := r.cfg.TaskSpecs[t]; ok {
				tasks = append(tasks, t)
			}
		}
	}

	var priors map[string]domain.ModelConfidence
	if r.confidence != nil {
		loaded, err := r.confidence.Load(ctx)
		if err != nil {
			// Partial aggregation: profiles proceed without priors.
			log.Warn("confidence priors unavailable", "error", err)
		} else {
			priors = loaded
		}
	}

	var allRecords []domain.Record
	for _, task := range tasks {
		records, err := r.runTask(ctx, task, opts)
		if err != nil {
			return err
		}
		allRecords = append(allRecords, records...)
		if ctx.Err() != nil {
			break
		}
	}

	// Downstream aggregation sorts by (task, model, sample) regardless of
	// emission order.
	sort.SliceStable(allRecords, func(i, j int) bool {
		a, b := allRecords[i], allRecords[j]
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if a.ModelName != b.ModelName {
			return a.ModelName < b.ModelName
		}
		return a.SampleID < b.SampleID
	})

	for _, rec := range allRecords {
		if err := r.sink.WriteRecord(rec); err != nil {
			return fmt.Errorf("write record %s/%s: %w", rec.ModelName, rec.SampleID, err)
		}
	}

	byTask := make(map[domain.TaskID][]domain.Record)
	byModel := make(map[string][]domain.Record)
	for _, rec := range allRecords {
		byTask[rec.TaskID] = append(byTask[rec.TaskID], rec)
		byModel[rec.ModelName] = append(byModel[rec.ModelName], rec)
	}

	for _, task := range tasks {
		if err := r.sink.WriteTaskSummary(BuildTaskSummary(task, byTask[task])); err != nil {
			return fmt.Errorf("write task summary %s: %w", task, err)
		}
	}

	models := make([]string, 0, len(byModel))
	for model := range byModel {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		var prior *domain.ModelConfidence
		if p, ok := priors[model]; ok {
			prior = &p
		}
		if err := r.sink.WriteModelProfile(BuildModelProfile(model, byModel[model], prior)); err != nil {
			return fmt.Errorf("write model profile %s: %w", model, err)
		}
	}

	envelope := r.ledger.Stamp("", r.judgeModel, time.Now())
	if err := r.sink.WriteEnvelope(envelope); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	log.Info("run complete", "records", len(allRecords), "run_id", r.ledger.RunID())
	return nil
}

// runTask evaluates every selected model of one task. Models fan out on an
// errgroup bounded by MaxParallelModels; each model's samples run
// sequentially in index order on its own goroutine.
func (r *Runner) runTask(ctx context.Context, task domain.TaskID, opts RunOptions) ([]domain.Record, error) {
	log := clog.FromContext(ctx).With("task", string(task))

	models, err := r.replies.Models(task)
	if err != nil {
		return nil, fmt.Errorf("list models for task %s: %w", task, err)
	}
	if len(opts.Models) > 0 {
		models = intersect(models, opts.Models)
	}
	sort.Strings(models)
	log.Info("evaluating task", "models", len(models))

	results := make(chan domain.Record, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxParallelModels)

	for _, model := range models {
		g.Go(func() error {
			return r.runModel(gctx, task, model, opts.SamplesPerModel, results)
		})
	}

	collectDone := make(chan struct{})
	var records []domain.Record
	go func() {
		defer close(collectDone)
		for rec := range results {
			records = append(records, rec)
		}
	}()

	err = g.Wait()
	close(results)
	<-collectDone
	if err != nil {
		return records, err
	}
	return records, nil
}

// runModel evaluates one model's reply stream in sample-index order.
// Cancellation is checked between samples, so an in-flight evaluation
// always completes and emits its record.
func (r *Runner) runModel(ctx context.Context, task domain.TaskID, model string, limit int, out chan<- domain.Record) error {
	replies, err := r.replies.Replies(task, model)
	if err != nil {
		return fmt.Errorf("load replies for %s/%s: %w", task, model, err)
	}
	if limit > 0 && len(replies) > limit {
		replies = replies[:limit]
	}

	// Single-step jump checks must not observe predictions from another
	// task's stream.
	r.history.Reset(model)

	for i, reply := range replies {
		if ctx.Err() != nil {
			return nil
		}
		gold := domain.Gold{}
		if r.reference != nil {
			g, err := r.reference.Gold(task, i)
			if err == nil {
				gold = g
			}
		}
		sample := domain.Sample{
			SampleID: reply.SampleID,
			TaskID:   task,
			Context:  domain.SampleContext{RecordIdx: i},
			Gold:     gold,
		}
		if sample.SampleID == "" {
			sample.SampleID = fmt.Sprintf("%s_%03d", task, i)
		}
		out <- r.evaluator.Evaluate(ctx, sample, reply)
	}
	return nil
}

func intersect(have, want []string) []string {
	wanted := make(map[string]struct{}, len(want))
	for _, w := range want {
		wanted[w] = struct{}{}
	}
	var out []string
	for _, h := range have {
		if _, ok := wanted[h]; ok {
			out = append(out, h)
		}
	}
	return out
}
