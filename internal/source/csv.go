package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"log/slog"
)

type CSVSource struct {
	path     string
	logger   *slog.Logger
	observer IngestObserver
}

func NewCSVSource(path string, logger *slog.Logger, observer IngestObserver) *CSVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{
		path:     path,
		logger:   logger,
		observer: observer,
	}
}

// Run reads the whole file, emitting one transaction per valid row.
// Malformed rows are logged at warn and dropped; only failure to open the
// file is fatal.
func (s *CSVSource) Run(ctx context.Context, emit Emit) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open input %s: %w", s.path, err)
	}
	defer f.Close()

	return s.read(ctx, f, emit)
}

func (s *CSVSource) read(ctx context.Context, r io.Reader, emit Emit) error {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	first := true
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			s.dropRow(err)
			continue
		}

		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}

		tx, err := parseFields(fields)
		if err != nil {
			s.dropRow(err)
			continue
		}

		if err := emit(ctx, tx); err != nil {
			return err
		}
		if s.observer != nil {
			s.observer.ObserveIngested()
		}
	}
}

func (s *CSVSource) dropRow(err error) {
	s.logger.Warn("dropping malformed row", "error", err)
	if s.observer != nil {
		s.observer.ObserveMalformed()
	}
}

func isHeader(fields []string) bool {
	return len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "type")
}
