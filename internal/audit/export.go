package audit

import (
	"bytes"
	"encoding/csv"
)

// CSVExporter renders timeline rows as a CSV document.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// WriteCSV serialises timeline rows to a CSV document.
func (CSVExporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Occurred At", "Actor", "Action", "Entity", "Entity ID", "Meta"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format("2006-01-02 15:04:05"),
			row.Actor,
			row.Action,
			row.Entity,
			row.EntityID,
			row.Meta,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
