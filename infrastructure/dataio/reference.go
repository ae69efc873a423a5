package dataio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aerograde/flygrade/internal/application"
	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.ReferenceStore = (*ReferenceFiles)(nil)

// ReferenceFiles resolves gold records from the per-task JSONL files named
// by the task specs. Files load lazily on first access and are cached;
// reads are serialized per store since multiple model workers share it.
//
// Gold lookup applies the task's configured index offset: gold index =
// sample index + offset. The single-step M1 task extracts the first
// element of each T+1 array.
type ReferenceFiles struct {
	dir   string
	specs map[domain.TaskID]application.TaskSpec

	mu    sync.Mutex
	cache map[domain.TaskID][]map[string]any
}

// NewReferenceFiles creates the store over a reference directory.
func NewReferenceFiles(dir string, specs map[domain.TaskID]application.TaskSpec) *ReferenceFiles {
	return &ReferenceFiles{
		dir:   dir,
		specs: specs,
		cache: make(map[domain.TaskID][]map[string]any),
	}
}

// Gold returns the reference next state for a sample index. Missing files
// and out-of-range indices yield an unavailable Gold, not an error:
// gold-dependent scores are marked unavailable downstream.
func (r *ReferenceFiles) Gold(task domain.TaskID, idx int) (domain.Gold, error) {
	spec, ok := r.specs[task]
	if !ok {
		return domain.Gold{}, fmt.Errorf("no task spec for %s", task)
	}

	records, err := r.load(task, spec.ReferenceSource)
	if err != nil {
		return domain.Gold{}, err
	}

	refIdx := idx + spec.IndexOffset
	if refIdx < 0 || refIdx >= len(records) {
		return domain.Gold{}, nil
	}
	record := records[refIdx]

	switch task {
	case domain.TaskS1:
		if next, ok := record["next_second"].(map[string]any); ok {
			return domain.Gold{Available: true, Fields: next}, nil
		}
	case domain.TaskM1:
		if tPlus1, ok := record["T+1"].(map[string]any); ok {
			fields := make(map[string]any, len(tPlus1))
			for field, v := range tPlus1 {
				if arr, isArr := v.([]any); isArr {
					if len(arr) > 0 {
						fields[field] = arr[0]
					}
					continue
				}
				fields[field] = v
			}
			return domain.Gold{Available: true, Fields: fields}, nil
		}
	case domain.TaskM3:
		if tPlus1, ok := record["T+1"].(map[string]any); ok {
			return domain.Gold{Available: true, Fields: tPlus1}, nil
		}
	}
	return domain.Gold{}, nil
}

// load reads and caches one task's reference file. A missing file caches
// an empty slice so every sample of the task degrades the same way.
func (r *ReferenceFiles) load(task domain.TaskID, source string) ([]map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[task]; ok {
		return cached, nil
	}

	path := filepath.Join(r.dir, source)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.cache[task] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("open reference %s: %w", path, err)
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan reference %s: %w", path, err)
	}
	r.cache[task] = records
	return records, nil
}
