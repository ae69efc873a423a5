package application

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aerograde/flygrade/internal/domain"
)

// EvaluatorVersion is stamped into every record trace.
const EvaluatorVersion = "1.0.0"

// Range is an inclusive [lower, upper] bound pair for one field.
type Range struct {
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
}

// TaskSpec describes one prediction task for prompts, hashing, and the
// reference loader.
type TaskSpec struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// Protocol is single_value or array_value.
	Protocol string `yaml:"protocol" json:"protocol" validate:"required,oneof=single_value array_value"`
	// ArrayLength is the expected array length for array_value tasks.
	ArrayLength int `yaml:"array_length,omitempty" json:"array_length,omitempty" validate:"min=0"`
	// ReferenceSource names the gold JSONL file, relative to the reference
	// directory.
	ReferenceSource string `yaml:"reference_source" json:"reference_source" validate:"required"`
	// IndexOffset shifts the gold lookup: gold index = sample index +
	// offset. Dataset-specific; defaults to zero.
	IndexOffset int `yaml:"index_offset,omitempty" json:"index_offset,omitempty"`
}

// JudgeConfig configures the LLM adjudicator.
type JudgeConfig struct {
	Provider string `yaml:"provider" json:"provider" validate:"required,oneof=openai anthropic google"`
	Model    string `yaml:"model" json:"model" validate:"required"`
	// Temperature must stay 0 for deterministic reruns.
	Temperature    float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens" validate:"min=50,max=8000"`
	MaxRetries     int     `yaml:"max_retries" json:"max_retries" validate:"min=0,max=10"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds" validate:"min=1,max=600"`
	// RequestsPerSecond caps the judge request rate; zero disables the
	// limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty" validate:"min=0"`
}

// DataConfig locates the input corpora.
type DataConfig struct {
	// RepliesDir holds one subdirectory per task, each with one
	// <model>.jsonl reply stream per model.
	RepliesDir string `yaml:"replies_dir" json:"replies_dir"`
	// ReferenceDir holds the gold JSONL files named by TaskSpec.
	ReferenceDir string `yaml:"reference_dir" json:"reference_dir"`
	// ConfidenceFiles maps a task to its calibration score JSON file.
	ConfidenceFiles map[domain.TaskID]string `yaml:"confidence_files,omitempty" json:"confidence_files,omitempty"`
}

// Config is the frozen run configuration. It is loaded once, validated,
// hashed, and never mutated afterwards; its hash is stamped into every
// record.
type Config struct {
	Version     string `yaml:"version" json:"version" validate:"required"`
	Methodology string `yaml:"methodology" json:"methodology" validate:"required"`

	// RequiredFields is the ordered schema; defaults to the nineteen
	// avionics fields.
	RequiredFields []string `yaml:"required_fields" json:"required_fields" validate:"required,min=1"`

	FieldLimits    map[string]Range   `yaml:"field_limits" json:"field_limits" validate:"required,min=1"`
	JumpThresholds map[string]float64 `yaml:"jump_thresholds" json:"jump_thresholds" validate:"required,min=1"`
	AngleFields    []string           `yaml:"angle_fields" json:"angle_fields"`

	TaskSpecs map[domain.TaskID]TaskSpec `yaml:"task_specs" json:"task_specs" validate:"required,min=1,dive"`

	Judge JudgeConfig `yaml:"judge" json:"judge"`
	Data  DataConfig  `yaml:"data" json:"data"`

	// MaxParallelModels bounds how many models evaluate concurrently.
	// Samples for one model always run sequentially in index order.
	MaxParallelModels int `yaml:"max_parallel_models" json:"max_parallel_models" validate:"min=1,max=64"`
}

// DefaultConfig returns the built-in configuration: the nineteen-field
// schema, the constraint library, and task specs. Limits and thresholds can
// be overridden from a YAML file.
func DefaultConfig() *Config {
	return &Config{
		Version:        "1.0.0",
		Methodology:    "evidence-driven flight grading",
		RequiredFields: domain.SchemaFields(),
		FieldLimits: map[string]Range{
			domain.FieldLatitude:        {Lower: -90, Upper: 90},
			domain.FieldLongitude:       {Lower: -180, Upper: 180},
			domain.FieldGPSAltitude:     {Lower: -1000, Upper: 60000},
			domain.FieldGroundTrack:     {Lower: 0, Upper: 360},
			domain.FieldMagneticHeading: {Lower: 0, Upper: 360},
			domain.FieldVelocityE:       {Lower: -200, Upper: 200},
			domain.FieldVelocityN:       {Lower: -200, Upper: 200},
			domain.FieldVelocityU:       {Lower: -100, Upper: 100},
			domain.FieldGroundSpeed:     {Lower: 0, Upper: 400},
			domain.FieldRoll:            {Lower: -90, Upper: 90},
			domain.FieldPitch:           {Lower: -90, Upper: 90},
			domain.FieldTurnRate:        {Lower: -60, Upper: 60},
			domain.FieldSlipSkid:        {Lower: -2, Upper: 2},
			domain.FieldNormalAccel:     {Lower: -2, Upper: 6},
			domain.FieldLateralAccel:    {Lower: -2, Upper: 2},
			domain.FieldVerticalSpeed:   {Lower: -6000, Upper: 6000},
			domain.FieldAirspeed:        {Lower: 0, Upper: 250},
			domain.FieldBaroAltitude:    {Lower: -1000, Upper: 60000},
			domain.FieldPressureAlt:     {Lower: -1000, Upper: 60000},
		},
		JumpThresholds: map[string]float64{
			domain.FieldLatitude:        0.01,
			domain.FieldLongitude:       0.01,
			domain.FieldGPSAltitude:     200,
			domain.FieldGroundTrack:     30,
			domain.FieldMagneticHeading: 30,
			domain.FieldVelocityE:       20,
			domain.FieldVelocityN:       20,
			domain.FieldVelocityU:       10,
			domain.FieldGroundSpeed:     20,
			domain.FieldRoll:            30,
			domain.FieldPitch:           20,
			domain.FieldTurnRate:        20,
			domain.FieldSlipSkid:        0.5,
			domain.FieldNormalAccel:     1.0,
			domain.FieldLateralAccel:    0.5,
			domain.FieldVerticalSpeed:   1500,
			domain.FieldAirspeed:        20,
			domain.FieldBaroAltitude:    200,
			domain.FieldPressureAlt:     200,
		},
		AngleFields: []string{domain.FieldGroundTrack, domain.FieldMagneticHeading},
		TaskSpecs: map[domain.TaskID]TaskSpec{
			domain.TaskS1: {
				Name:            "Next Second Prediction",
				Protocol:        "single_value",
				ReferenceSource: "next_second_pairs.jsonl",
			},
			domain.TaskM1: {
				Name:            "Next Second from 3-Window",
				Protocol:        "single_value",
				ReferenceSource: "flight_3window_samples.jsonl",
			},
			domain.TaskM3: {
				Name:            "Next 3 Seconds from 3-Window",
				Protocol:        "array_value",
				ArrayLength:     3,
				ReferenceSource: "flight_3window_samples.jsonl",
			},
		},
		Judge: JudgeConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			Temperature:    0,
			MaxTokens:      2000,
			MaxRetries:     3,
			TimeoutSeconds: 120,
		},
		Data: DataConfig{
			RepliesDir:   "data/model_results",
			ReferenceDir: "data/reference_data",
		},
		MaxParallelModels: 4,
	}
}

// LoadConfig reads a YAML config file over the defaults and validates the
// result. An empty path returns the validated defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural validity and the cross-field invariants the
// struct tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	verr := domain.NewValidationError("config")
	for field, r := range c.FieldLimits {
		if r.Lower >= r.Upper {
			verr.AddError(fmt.Sprintf("field limit for %q has lower >= upper", field))
		}
	}
	for field, t := range c.JumpThresholds {
		if t <= 0 {
			verr.AddError(fmt.Sprintf("jump threshold for %q must be positive", field))
		}
	}
	for id := range c.TaskSpecs {
		if !domain.ValidTask(id) {
			verr.AddError(fmt.Sprintf("unknown task id %q", id))
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// AngleFieldSet returns the angle fields as a set.
func (c *Config) AngleFieldSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.AngleFields))
	for _, f := range c.AngleFields {
		set[f] = struct{}{}
	}
	return set
}

// LimitPairs converts the field limits to the [2]float64 form consumed by
// the range verifier.
func (c *Config) LimitPairs() map[string][2]float64 {
	out := make(map[string][2]float64, len(c.FieldLimits))
	for f, r := range c.FieldLimits {
		out[f] = [2]float64{r.Lower, r.Upper}
	}
	return out
}

// TaskSpecMap renders a task's spec as the deterministic map used in judge
// prompts and cache keys.
func (c *Config) TaskSpecMap(task domain.TaskID) map[string]any {
	spec, ok := c.TaskSpecs[task]
	if !ok {
		return map[string]any{"task_id": string(task)}
	}
	m := map[string]any{
		"task_id":  string(task),
		"name":     spec.Name,
		"protocol": spec.Protocol,
	}
	if spec.ArrayLength > 0 {
		m["array_length"] = spec.ArrayLength
	}
	return m
}
