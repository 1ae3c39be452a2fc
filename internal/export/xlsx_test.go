package export

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
)

func TestSheetWrite(t *testing.T) {
	sheet := Sheet{
		Name:    "Orders",
		Headers: []string{"ID", "Status", "Total"},
		Rows: [][]any{
			{"order-1", "Pending", "45.00"},
			{"order-2", "Shipped", "10.00"},
		},
	}

	rec := httptest.NewRecorder()
	require.NoError(t, sheet.Write(rec, "orders.xlsx"))

	assert.Equal(t, contentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "orders.xlsx")

	file, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)

	rows := file.Sheets[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0].Cells[0].String())
	assert.Equal(t, "order-2", rows[2].Cells[0].String())
	assert.Equal(t, "Shipped", rows[2].Cells[1].String())
}
