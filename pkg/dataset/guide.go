package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lessonloop/churnkit/pkg/dedup"
	"github.com/lessonloop/churnkit/pkg/subscription"
)

// Guide file column names. The file is tabular (exported from the curator's
// spreadsheet): one row per duplicate group, keyed by a member's customer
// name with the disposition decision in the result column.
const (
	guideNameColumn   = "Customer Name"
	guideResultColumn = "Result"
)

// LoadGuide reads the curated duplicate disposition guide. Rows with an
// empty result cell are skipped; rows with an unrecognized label are skipped
// with a warning so one typo never blocks a run.
func LoadGuide(r io.Reader, log *slog.Logger) (dedup.Guide, error) {
	if log == nil {
		log = slog.Default()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return dedup.Guide{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read guide header: %w", err)
	}

	nameIdx, resultIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case guideNameColumn:
			nameIdx = i
		case guideResultColumn:
			resultIdx = i
		}
	}
	if nameIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, guideNameColumn)
	}
	if resultIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, guideResultColumn)
	}

	guide := dedup.Guide{}
	for rowNum := 0; ; rowNum++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read guide row %d: %w", rowNum+2, err)
		}
		if nameIdx >= len(row) || resultIdx >= len(row) {
			continue
		}

		name := subscription.Normalize(row[nameIdx])
		label := strings.TrimSpace(row[resultIdx])
		if name == "" || label == "" {
			continue
		}

		disposition, err := dedup.ParseDisposition(label)
		if err != nil {
			log.Warn("skipping guide row with unrecognized disposition",
				slog.String("customer", name),
				slog.String("label", label),
			)
			continue
		}
		guide[name] = disposition
	}

	return guide, nil
}
