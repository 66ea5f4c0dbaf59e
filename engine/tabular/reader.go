package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

// errBadRow marks a row the reader could not parse; callers count these
// against the malformed-row tolerance instead of aborting immediately.
var errBadRow = errors.New("tabular: malformed row")

// rowReader yields one serialized row per call, terminated by io.EOF.
type rowReader interface {
	// ReadRow returns the serialized bytes of the next row including its
	// trailing newline, errBadRow for a tolerable parse failure, or io.EOF.
	ReadRow() ([]byte, error)
}

// csvRowReader streams delimited records and re-serializes each one, so
// output chunks stay valid CSV regardless of source quoting.
type csvRowReader struct {
	reader  *csv.Reader
	scratch bytes.Buffer
	writer  *csv.Writer
}

func newCSVRowReader(r io.Reader, delimiter rune) *csvRowReader {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	reader := &csvRowReader{reader: cr}
	reader.writer = csv.NewWriter(&reader.scratch)
	reader.writer.Comma = delimiter
	return reader
}

func (c *csvRowReader) ReadRow() ([]byte, error) {
	record, err := c.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, errBadRow
		}
		return nil, err
	}
	c.scratch.Reset()
	if err := c.writer.Write(record); err != nil {
		return nil, errBadRow
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return nil, err
	}
	row := make([]byte, c.scratch.Len())
	copy(row, c.scratch.Bytes())
	return row, nil
}

// lineRowReader treats each line as a row. It backs the streaming path for
// oversized text-like files that must never be loaded whole; lines longer
// than the cap are split into synthetic rows to keep memory bounded.
type lineRowReader struct {
	reader  *bufio.Reader
	maxLine int
}

func newLineRowReader(r io.Reader, maxLine int) *lineRowReader {
	if maxLine <= 0 {
		maxLine = 1 << 20
	}
	return &lineRowReader{reader: bufio.NewReaderSize(r, 64*1024), maxLine: maxLine}
}

func (l *lineRowReader) ReadRow() ([]byte, error) {
	row := make([]byte, 0, 256)
	for {
		chunk, err := l.reader.ReadSlice('\n')
		row = append(row, chunk...)
		if err == nil || err == io.EOF {
			if len(row) == 0 && err == io.EOF {
				return nil, io.EOF
			}
			return row, nil
		}
		if err == bufio.ErrBufferFull {
			if len(row) >= l.maxLine {
				return row, nil
			}
			continue
		}
		return nil, err
	}
}
