package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// BOM is the UTF-8 byte-order mark prefixed to every table payload.
const BOM = "\uFEFF"

// EncodeTable renders records as a BOM-prefixed CSV payload: a header row
// in types.Columns order, then one row per record. Every field is wrapped
// in double quotes with embedded quotes doubled; rows are joined with "\n".
func EncodeTable(records []types.Record) []byte {
	var b bytes.Buffer
	b.WriteString(BOM)
	writeRow(&b, types.Columns)
	for _, r := range records {
		b.WriteByte('\n')
		writeRow(&b, r.Values())
	}
	return b.Bytes()
}

func writeRow(b *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
}

// DecodeTable parses a payload produced by EncodeTable back into records.
// The header row must match types.Columns.
func DecodeTable(data []byte) ([]types.Record, error) {
	data = bytes.TrimPrefix(data, []byte(BOM))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(types.Columns)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range types.Columns {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, header[i], col)
		}
	}

	var records []types.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		records = append(records, types.RecordFromValues(row))
	}
	return records, nil
}
