package main

import (
	"fmt"
	"strings"
)

// step is a pipeline stage selectable from the command line.
type step int

const (
	generateTasks step = iota
	sendBatch
	tryGetResults
	processOutput
)

var steps = []step{generateTasks, sendBatch, tryGetResults, processOutput}

func (s step) String() string {
	switch s {
	case generateTasks:
		return "generate-tasks"
	case sendBatch:
		return "send-batch"
	case tryGetResults:
		return "try-get-results"
	case processOutput:
		return "process-output"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func stepNames() string {
	ns := []string{}
	for _, s := range steps {
		ns = append(ns, s.String())
	}
	return strings.Join(ns, ", ")
}

// parseStep accepts step names with dashes or underscores.
func parseStep(name string) (step, error) {
	n := strings.ReplaceAll(strings.TrimSpace(name), "_", "-")
	for _, s := range steps {
		if s.String() == n {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown step %q, want one of: %s", name, stepNames())
}
