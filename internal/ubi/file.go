package ubi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// FileSource reads events from a JSON lines export of the UBI events index.
// The file is re-read on every call so appended events are picked up.
type FileSource struct {
	path string
	log  *logger.Logger
}

// NewFileSource creates a file-backed event source.
func NewFileSource(path string, log *logger.Logger) *FileSource {
	if log == nil {
		log = logger.Default()
	}
	return &FileSource{path: path, log: log}
}

// Events implements EventSource. Malformed lines are skipped.
func (s *FileSource) Events(ctx context.Context, from, to *time.Time) ([]Event, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)

	const maxScanTokenSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	line, skipped := 0, 0
	for scanner.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			skipped++
			continue
		}
		if inWindow(e.Timestamp, from, to) {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan events file: %w", err)
	}

	if skipped > 0 {
		s.log.Warn("Skipped malformed UBI events", "path", s.path, "skipped", skipped)
	}
	s.log.Debug("Loaded UBI events", "path", s.path, "events", len(events))

	return events, nil
}
