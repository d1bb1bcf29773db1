package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gosegment/domain/segmentation"
	"gosegment/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeCodebook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", DefaultSheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(DefaultSheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "codebook.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestCodebookCatalogReadsExcel(t *testing.T) {
	path := writeCodebook(t, [][]any{
		{"Name", "Label", "Type", "Subtype"},
		{"q1_satisfaction", "Overall satisfaction", "numeric", "Likert"},
		{"q2_spend", "", "Numeric", ""},
		{"region", "Region", "categorical", "nominal"},
		{"", "blank row", "numeric", ""},
		{"q1_satisfaction", "duplicate", "text", ""},
	})

	catalog := NewCodebookCatalog(path, "", nil)
	vars, err := catalog.ListVariables(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []segmentation.Variable{
		{Name: "q1_satisfaction", Label: "Overall satisfaction", Type: segmentation.TypeNumeric, Subtype: "likert"},
		{Name: "q2_spend", Type: segmentation.TypeNumeric},
		{Name: "region", Label: "Region", Type: segmentation.TypeCategorical, Subtype: "nominal"},
	}, vars)

	clusterable, err := ports.ClusterableVariables(context.Background(), catalog)
	require.NoError(t, err)
	assert.Len(t, clusterable, 2)
}

func TestCodebookCatalogReadsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codebook.csv")
	require.NoError(t, os.WriteFile(path, []byte("variable,type,measure\nq1,numeric,scale\nq2,categorical\n"), 0o644))

	vars, err := NewCodebookCatalog(path, "", nil).ListVariables(context.Background())
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "scale", vars[0].Subtype)
	assert.Empty(t, vars[1].Subtype)
}

func TestCodebookCatalogErrors(t *testing.T) {
	_, err := NewCodebookCatalog(filepath.Join(t.TempDir(), "missing.xlsx"), "", nil).ListVariables(context.Background())
	assert.ErrorContains(t, err, "not found")

	path := writeCodebook(t, [][]any{{"Label", "Type"}, {"x", "numeric"}})
	_, err = NewCodebookCatalog(path, "", nil).ListVariables(context.Background())
	assert.ErrorContains(t, err, "no name column")

	_, err = NewCodebookCatalog(path, "Other", nil).ListVariables(context.Background())
	assert.Error(t, err)
}
