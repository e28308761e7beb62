package attachment

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
)

// csvBatch is the number of data rows grouped under one heading.
const csvBatch = 20

// CSVConverter handles CSV files. Each data row becomes a bulleted item of
// header: value pairs, grouped in batches under a heading.
type CSVConverter struct{}

func (c *CSVConverter) Convert(r io.Reader, filename string) (*block.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	b := newBuilder(filename)
	if len(records) == 0 {
		return b.doc, nil
	}

	headers := records[0]
	b.paragraph("Columns: " + strings.Join(headers, ", "))

	rows := records[1:]
	for i := 0; i < len(rows); i += csvBatch {
		end := min(i+csvBatch, len(rows))
		b.heading(3, fmt.Sprintf("Rows %d-%d", i+2, end+1)) // 1-indexed, after the header row
		for _, row := range rows[i:end] {
			var text strings.Builder
			for j, cell := range row {
				if j > 0 {
					text.WriteString(", ")
				}
				if j < len(headers) {
					text.WriteString(headers[j] + ": ")
				}
				text.WriteString(cell)
			}
			b.item(text.String(), false)
		}
	}
	return b.doc, nil
}
