package scheduler

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shaonote/starbot/internal/chat"
)

// Table is the declarative reminder file.
//
//	schedules:
//	  - schedule: "30 21 2 2,4,6,8,10,12 *"
//	    description: remind the house to read the meter
//	    prompt: "Today is {{ .Now.Format \"1/2\" }}, remind everyone to read the meter."
//	    target: { platform: line, id: "${LINE_HOUSE_ID}" }
//	    range: { from: "12/1", to: "12/25" }
type Table struct {
	Schedules []Entry `yaml:"schedules"`
}

// Entry is one row of the table.
type Entry struct {
	Schedule    string      `yaml:"schedule"`
	Description string      `yaml:"description"`
	Prompt      string      `yaml:"prompt"`
	Target      chat.Target `yaml:"target"`
	Range       *struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"range"`
}

// PromptData is what prompt templates see.
type PromptData struct {
	Now time.Time
}

// ParseTable decodes a table. Target ids are expanded from the environment.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse schedule table: %w", err)
	}
	for i := range t.Schedules {
		e := &t.Schedules[i]
		e.Target.ID = strings.TrimSpace(os.ExpandEnv(e.Target.ID))
		e.Target.Platform = chat.Platform(strings.ToLower(string(e.Target.Platform)))
		if e.Target.Platform == "" {
			e.Target.Platform = chat.PlatformLine
		}
	}
	return &t, nil
}

// Job converts an entry, compiling its prompt template.
func (e Entry) Job() (Job, error) {
	j := Job{
		Schedule:    e.Schedule,
		Description: e.Description,
		Prompt:      e.Prompt,
		Target:      e.Target,
	}
	if e.Range != nil {
		r, err := ParseDateRange(e.Range.From, e.Range.To)
		if err != nil {
			return Job{}, err
		}
		j.Range = &r
	}
	if strings.Contains(e.Prompt, "{{") {
		tmpl, err := template.New(e.Description).Option("missingkey=error").Parse(e.Prompt)
		if err != nil {
			return Job{}, fmt.Errorf("prompt template: %w", err)
		}
		j.Build = func(now time.Time) (string, error) {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, PromptData{Now: now}); err != nil {
				return "", err
			}
			return buf.String(), nil
		}
	}
	return j, nil
}

// LoadFile reads the table at path and registers every entry. Bad entries are
// logged and skipped; the number registered is returned.
func (s *Scheduler) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read schedule table: %w", err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return 0, err
	}
	return s.Load(t), nil
}

// Load registers every entry of t and returns how many were accepted.
func (s *Scheduler) Load(t *Table) int {
	n := 0
	for _, e := range t.Schedules {
		j, err := e.Job()
		if err != nil {
			s.log.Error("schedule entry skipped", zap.String("job", e.Description), zap.Error(err))
			continue
		}
		if err := s.Register(j); err != nil {
			continue
		}
		n++
	}
	return n
}
