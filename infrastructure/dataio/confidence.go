package dataio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.ConfidenceSource = (*ConfidenceFiles)(nil)

// confidenceFile is the on-disk shape of one task's calibration output.
type confidenceFile struct {
	Results []struct {
		ModelName string   `json:"model_name"`
		CScore    *float64 `json:"c_score"`
	} `json:"results"`
	Source  string `json:"calculation_source"`
	Version string `json:"version"`
}

// ConfidenceFiles merges per-task calibration score files into per-model
// priors. A missing file leaves that task's score nil; the prior is a
// pass-through and never interpreted here.
type ConfidenceFiles struct {
	paths map[domain.TaskID]string
}

// NewConfidenceFiles creates the loader over a task-to-path map.
func NewConfidenceFiles(paths map[domain.TaskID]string) *ConfidenceFiles {
	return &ConfidenceFiles{paths: paths}
}

// Load reads every configured file and merges scores by model name.
func (c *ConfidenceFiles) Load(_ context.Context) (map[string]domain.ModelConfidence, error) {
	out := make(map[string]domain.ModelConfidence)
	for _, task := range domain.TaskIDs {
		path, ok := c.paths[task]
		if !ok || path == "" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read confidence file %s: %w", path, err)
		}
		var file confidenceFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("decode confidence file %s: %w", path, err)
		}
		for _, result := range file.Results {
			if result.ModelName == "" {
				continue
			}
			prior, ok := out[result.ModelName]
			if !ok {
				prior = domain.ModelConfidence{
					ModelName: result.ModelName,
					Source:    file.Source,
					Version:   file.Version,
				}
			}
			switch task {
			case domain.TaskS1:
				prior.S1Score = result.CScore
			case domain.TaskM1:
				prior.M1Score = result.CScore
			case domain.TaskM3:
				prior.M3Score = result.CScore
			}
			out[result.ModelName] = prior
		}
	}
	return out, nil
}
