package export

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/tealeg/xlsx"
)

const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet is a single-sheet workbook: a header row followed by data rows.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
}

func (s Sheet) Build() (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(s.Name)
	if err != nil {
		return nil, fmt.Errorf("add sheet %s: %w", s.Name, err)
	}

	header := sheet.AddRow()
	for _, h := range s.Headers {
		header.AddCell().SetValue(h)
	}

	for _, values := range s.Rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetValue(v)
		}
	}

	return file, nil
}

// Write renders the workbook fully before touching w, so a failure can still be
// reported as a JSON error by the caller.
func (s Sheet) Write(w http.ResponseWriter, filename string) error {
	file, err := s.Build()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(buf.Bytes())
	return err
}
