package application

import (
	"context"
	"math"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// SampleEvaluator drives one sample through the state machine:
// Received -> Parsed|ParseFailed -> Verified -> Gated -> Adjudicated ->
// Scored -> Emitted. Transport and parse failures go straight to Emitted
// with the fixed terminal record shape.
type SampleEvaluator struct {
	cfg         *Config
	graph       *VerifierGraph
	adjudicator ports.Adjudicator
	history     *PredictionHistory
	ledger      *Ledger
	judgeModel  string
	metrics     ports.MetricsCollector
	now         func() time.Time
}

// EvaluatorOption customizes a SampleEvaluator.
type EvaluatorOption func(*SampleEvaluator)

// WithMetrics attaches a metrics collector.
func WithMetrics(m ports.MetricsCollector) EvaluatorOption {
	return func(e *SampleEvaluator) { e.metrics = m }
}

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *SampleEvaluator) { e.now = now }
}

// WithJudgeModel stamps the judge model identifier into record traces.
func WithJudgeModel(model string) EvaluatorOption {
	return func(e *SampleEvaluator) { e.judgeModel = model }
}

// NewSampleEvaluator assembles the per-sample pipeline around a frozen
// configuration, a verifier graph, and one adjudicator.
func NewSampleEvaluator(cfg *Config, graph *VerifierGraph, adjudicator ports.Adjudicator, history *PredictionHistory, ledger *Ledger, opts ...EvaluatorOption) *SampleEvaluator {
	e := &SampleEvaluator{
		cfg:         cfg,
		graph:       graph,
		adjudicator: adjudicator,
		history:     history,
		ledger:      ledger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate produces the record for one (sample, reply) pair. A record is
// always emitted: per-sample failures are absorbed into the record, never
// returned.
func (e *SampleEvaluator) Evaluate(ctx context.Context, sample domain.Sample, reply domain.ModelReply) domain.Record {
	log := clog.FromContext(ctx).With(
		"task", string(sample.TaskID), "model", reply.ModelName, "sample", sample.SampleID)
	start := e.now()

	ids := &domain.IDAllocator{}

	if IsTransportError(reply.Response) {
		log.Warn("transport failure in reply")
		return e.terminalRecord(sample, reply, ids, "transport_error",
			"transport failure detected in raw reply", domain.ErrTransportFailure.Error())
	}

	fields, parseErr := ParseReply(reply.Response)
	if parseErr != nil {
		log.Warn("response parse failure")
		return e.terminalRecord(sample, reply, ids, "parse_error",
			"no field map could be extracted from reply", "JSON parsing failed")
	}

	protocol := SummarizeProtocol(fields, nil, e.cfg.RequiredFields)

	vctx := &ports.VerifyContext{
		TaskID:         sample.TaskID,
		RequiredFields: e.cfg.RequiredFields,
		Previous:       e.history.Snapshot(reply.ModelName),
		Gold:           sample.Gold,
		IDs:            ids,
	}
	pack := &domain.EvidencePack{}
	pack.Append(e.graph.Execute(ctx, sample, fields, vctx)...)

	eligibility, gatingReasons := Gate(pack, protocol)

	in := ports.AdjudicationInput{
		TaskID:           sample.TaskID,
		Evidence:         pack,
		ProtocolResult:   protocol,
		TaskSpec:         e.cfg.TaskSpecMap(sample.TaskID),
		ConditionalError: conditionalError(fields, sample.Gold, e.cfg.RequiredFields),
	}

	adj, err := e.adjudicator.Adjudicate(ctx, in)
	if err != nil {
		// Adjudicators degrade internally; an error here means the
		// implementation itself broke. Fall back rather than drop the sample.
		log.Error("adjudicator error, using fallback", "error", err)
		adj = fallbackAdjudication(in, err.Error())
	}

	record := domain.Record{
		SampleID:       sample.SampleID,
		ModelName:      reply.ModelName,
		TaskID:         sample.TaskID,
		ProtocolResult: protocol,
		EvidencePack:   *pack,
		AgentOutput: domain.AgentOutput{
			Adjudication:  eligibility,
			Attribution:   BuildAttribution(pack),
			Checklist:     BuildChecklist(e.graph.Capabilities(), pack),
			GatingReasons: gatingReasons,
		},
		Scores: deriveScores(adj, in, eligibility, gatingReasons),
		Trace:  e.ledger.Stamp(sample.TaskID, e.judgeModel, e.now()),
	}

	// Commit happens last so jump checks always read the previous sample.
	e.history.Commit(reply.ModelName, fields, e.cfg.RequiredFields)

	if e.metrics != nil {
		e.metrics.RecordHistogram("sample_evaluation_seconds", e.now().Sub(start).Seconds(),
			map[string]string{"task": string(sample.TaskID), "model": reply.ModelName})
		e.metrics.RecordCounter("samples_evaluated_total", 1,
			map[string]string{"task": string(sample.TaskID), "model": reply.ModelName, "eligibility": string(eligibility)})
	}
	return record
}

// terminalRecord is the fixed record shape for transport and parse
// failures: one synthetic critical atom describing the cause, ineligible,
// every dimension D.
func (e *SampleEvaluator) terminalRecord(sample domain.Sample, reply domain.ModelReply, ids *domain.IDAllocator, rule, message, parseError string) domain.Record {
	pack := &domain.EvidencePack{}
	pack.Append(domain.FailAtom(
		ids.Next(), domain.EvidenceNumericValidity, "",
		domain.SeverityCritical, domain.ScopeSample,
		message,
		map[string]any{"checker": "ResponseParser", "rule": rule},
	))

	protocol := SummarizeProtocol(nil, domain.ErrParseFailure, e.cfg.RequiredFields)
	protocol.Parsing.Error = parseError

	in := ports.AdjudicationInput{
		TaskID:         sample.TaskID,
		Evidence:       pack,
		ProtocolResult: protocol,
		TaskSpec:       e.cfg.TaskSpecMap(sample.TaskID),
	}
	eligibility, gatingReasons := Gate(pack, protocol)
	adj := fallbackAdjudication(in, message)

	return domain.Record{
		SampleID:       sample.SampleID,
		ModelName:      reply.ModelName,
		TaskID:         sample.TaskID,
		ProtocolResult: protocol,
		EvidencePack:   *pack,
		AgentOutput: domain.AgentOutput{
			Adjudication:  eligibility,
			Attribution:   BuildAttribution(pack),
			Checklist:     BuildChecklist(e.graph.Capabilities(), pack),
			GatingReasons: gatingReasons,
		},
		Scores: deriveScores(adj, in, eligibility, gatingReasons),
		Trace:  e.ledger.Stamp(sample.TaskID, e.judgeModel, e.now()),
	}
}

// conditionalError computes MAE and RMSE over per-field absolute errors
// between prediction and gold. Arrays pair element-wise on the shorter
// operand; non-numeric values on either side are skipped. Nil without gold
// or when no field pairs up.
func conditionalError(fields domain.FieldMap, gold domain.Gold, required []string) *domain.ConditionalError {
	if !gold.Available || fields == nil {
		return nil
	}
	var errs []float64
	for _, field := range required {
		predRaw, okPred := fields[field]
		goldRaw, okGold := gold.Fields[field]
		if !okPred || !okGold {
			continue
		}
		predVals := normalizeList(predRaw)
		goldVals := normalizeList(goldRaw)
		n := len(predVals)
		if len(goldVals) < n {
			n = len(goldVals)
		}
		for i := 0; i < n; i++ {
			p, okP := domain.Float(predVals[i])
			g, okG := domain.Float(goldVals[i])
			if !okP || !okG || math.IsNaN(p) || math.IsNaN(g) {
				continue
			}
			errs = append(errs, math.Abs(p-g))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	var sum, sumSq float64
	for _, e := range errs {
		sum += e
		sumSq += e * e
	}
	mae := sum / float64(len(errs))
	rmse := math.Sqrt(sumSq / float64(len(errs)))
	return domain.NewConditionalError(mae, rmse)
}

func normalizeList(v any) []any {
	if v == nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}
