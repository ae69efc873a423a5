package application

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aerograde/flygrade/internal/domain"
)

// hashHexLen truncates content hashes to a 16-hex-character prefix, long
// enough to be collision-safe at run scale while keeping traces readable.
const hashHexLen = 16

// canonicalHash hashes the canonical JSON encoding of v. Map keys are
// sorted by encoding/json, so identical content yields identical hashes.
func canonicalHash(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		// Hash the error text rather than silently omitting the stamp.
		raw = []byte(err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:hashHexLen]
}

// Ledger computes and caches the reproducibility hashes for one frozen
// configuration. Identical configuration bytes produce byte-identical
// hashes across runs.
type Ledger struct {
	cfg        *Config
	runID      string
	configHash string
	constraint string
	// schemaHashes is precomputed per task: the schema hash covers the
	// required field list plus the task identity.
	schemaHashes map[domain.TaskID]string
}

// NewLedger freezes the configuration into a ledger with a fresh run ID.
func NewLedger(cfg *Config) *Ledger {
	l := &Ledger{
		cfg:   cfg,
		runID: uuid.NewString(),
		configHash: canonicalHash(map[string]any{
			"version":     cfg.Version,
			"methodology": cfg.Methodology,
			"task_specs":  cfg.TaskSpecs,
			"judge":       cfg.Judge,
		}),
		constraint: canonicalHash(map[string]any{
			"field_limits":    cfg.FieldLimits,
			"jump_thresholds": cfg.JumpThresholds,
			"angle_fields":    cfg.AngleFields,
		}),
		schemaHashes: make(map[domain.TaskID]string, len(cfg.TaskSpecs)),
	}
	for task := range cfg.TaskSpecs {
		l.schemaHashes[task] = canonicalHash(map[string]any{
			"required_fields": cfg.RequiredFields,
			"task_id":         task,
		})
	}
	return l
}

// RunID returns the run's UUID.
func (l *Ledger) RunID() string { return l.runID }

// ConfigHash returns the configuration content hash.
func (l *Ledger) ConfigHash() string { return l.configHash }

// ConstraintLibHash returns the constraint-library content hash.
func (l *Ledger) ConstraintLibHash() string { return l.constraint }

// SchemaHash returns the schema hash for a task.
func (l *Ledger) SchemaHash(task domain.TaskID) string { return l.schemaHashes[task] }

// Stamp builds the trace for one record. The judge model is empty under the
// deterministic adjudicator.
func (l *Ledger) Stamp(task domain.TaskID, judgeModel string, now time.Time) domain.Trace {
	return domain.Trace{
		ConfigHash:        l.configHash,
		SchemaHash:        l.schemaHashes[task],
		ConstraintLibHash: l.constraint,
		EvaluatorVersion:  EvaluatorVersion,
		RunID:             l.runID,
		Timestamp:         now.UTC().Format(time.RFC3339),
		JudgeModel:        judgeModel,
	}
}
