// Package dataio implements the file-backed data boundaries: the reply
// corpus reader, the lazy gold reference store, the confidence prior
// loader, and the result writers. All inputs are JSONL or JSON files.
package dataio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.ReplySource = (*ReplyCorpus)(nil)

// replyLine is the on-disk shape of one reply record.
type replyLine struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// ReplyCorpus reads model replies from <root>/<task>/<model>.jsonl.
type ReplyCorpus struct {
	root string
}

// NewReplyCorpus creates a corpus reader rooted at dir.
func NewReplyCorpus(dir string) *ReplyCorpus {
	return &ReplyCorpus{root: dir}
}

// Models lists the model names with a reply stream for the task, sorted.
func (c *ReplyCorpus) Models(task domain.TaskID) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, string(task)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read replies dir for task %s: %w", task, err)
	}
	var models []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		models = append(models, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	sort.Strings(models)
	return models, nil
}

// Replies loads a model's replies in file (sample-index) order. Malformed
// lines are skipped; blank lines are ignored.
func (c *ReplyCorpus) Replies(task domain.TaskID, model string) ([]domain.ModelReply, error) {
	path := filepath.Join(c.root, string(task), model+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reply stream %s: %w", path, err)
	}
	defer f.Close()

	var replies []domain.ModelReply
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec replyLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		replies = append(replies, domain.ModelReply{
			ModelName: model,
			SampleID:  rec.ID,
			TaskID:    task,
			Response:  rec.Response,
			Timestamp: rec.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan reply stream %s: %w", path, err)
	}
	return replies, nil
}
