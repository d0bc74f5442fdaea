package scheduler

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// File — содержимое файла расписаний (SCHEDULES_FILE).
//
//	schedules:
//	  - name: daily-digest
//	    cron: "0 9 * * *"
//	    timezone: Europe/Moscow
//	    enabled: true
//	    request:
//	      agentId: digest-bot
//	      flow:
//	        steps: [...]
type File struct {
	Schedules []domain.Schedule `yaml:"schedules"`
}

// LoadFile читает и проверяет расписания. Имена должны быть уникальны.
func LoadFile(path string) ([]domain.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML с расписаниями.
func Parse(data []byte) ([]domain.Schedule, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}

	seen := make(map[string]bool, len(f.Schedules))
	for i := range f.Schedules {
		sched := &f.Schedules[i]
		if err := Validate(sched); err != nil {
			return nil, err
		}
		if seen[sched.Name] {
			return nil, fmt.Errorf("duplicate schedule name: %s", sched.Name)
		}
		seen[sched.Name] = true
	}
	return f.Schedules, nil
}
