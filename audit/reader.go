package audit

import (
	"bytes"
	"encoding/json"
)

// ExecutionHistory returns up to limit execution records in append order,
// filtered by script path when scriptPath is non-empty. A missing log file
// yields an empty result; malformed lines are skipped with a warning.
func (l *Log) ExecutionHistory(scriptPath string, limit int) ([]*ExecutionRecord, error) {
	lines, err := l.readLines(executionLogFile)
	if err != nil {
		return nil, err
	}

	records := make([]*ExecutionRecord, 0, limit)
	for _, line := range lines {
		if len(records) >= limit {
			break
		}

		var record ExecutionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			l.logger.Warn().Err(err).Msg("skipping malformed execution record")
			continue
		}
		if scriptPath != "" && record.ScriptPath != scriptPath {
			continue
		}
		records = append(records, &record)
	}

	return records, nil
}

// SecurityEvents returns up to limit security events in append order,
// filtered by kind when kind is non-empty. Same tolerance as
// ExecutionHistory.
func (l *Log) SecurityEvents(kind EventKind, limit int) ([]*SecurityEvent, error) {
	lines, err := l.readLines(securityLogFile)
	if err != nil {
		return nil, err
	}

	events := make([]*SecurityEvent, 0, limit)
	for _, line := range lines {
		if len(events) >= limit {
			break
		}

		var event SecurityEvent
		if err := json.Unmarshal(line, &event); err != nil {
			l.logger.Warn().Err(err).Msg("skipping malformed security event")
			continue
		}
		if kind != "" && event.Kind != kind {
			continue
		}
		events = append(events, &event)
	}

	return events, nil
}

// Summary counts both audit streams.
func (l *Log) Summary() (*Summary, error) {
	executions, err := l.countLines(executionLogFile)
	if err != nil {
		return nil, err
	}

	eventLines, err := l.readLines(securityLogFile)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Executions:   executions,
		EventsByKind: make(map[EventKind]int),
	}
	for _, line := range eventLines {
		var event SecurityEvent
		if err := json.Unmarshal(line, &event); err != nil {
			l.logger.Warn().Err(err).Msg("skipping malformed security event")
			continue
		}
		summary.SecurityEvents++
		summary.EventsByKind[event.Kind]++
	}

	return summary, nil
}

// readLines returns the non-empty lines of a stream, empty when the stream
// does not exist yet.
func (l *Log) readLines(file string) ([][]byte, error) {
	if exists, _ := l.safePath.Exists(file); !exists {
		return nil, nil
	}

	data, err := l.safePath.ReadFile(file)
	if err != nil {
		return nil, err
	}

	raw := bytes.Split(data, []byte{'\n'})
	lines := make([][]byte, 0, len(raw))
	for _, line := range raw {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (l *Log) countLines(file string) (int, error) {
	lines, err := l.readLines(file)
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}
