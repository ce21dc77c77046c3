package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// table buffers one CSV report.
type table struct {
	buf *bytes.Buffer
	w   *csv.Writer
}

func newTable(headers ...string) (*table, error) {
	buf := &bytes.Buffer{}
	t := &table{buf: buf, w: csv.NewWriter(buf)}
	if err := t.w.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return t, nil
}

func (t *table) row(fields ...string) error {
	if err := t.w.Write(fields); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (t *table) done() (io.Reader, error) {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return t.buf, nil
}

func timestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
