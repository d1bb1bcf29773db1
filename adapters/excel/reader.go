package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gosegment/domain/segmentation"
	"gosegment/internal/logging"
	"gosegment/ports"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// DefaultSheet is the codebook sheet read when none is configured.
const DefaultSheet = "Variables"

// CodebookCatalog serves variable metadata from an xlsx or csv codebook with
// a header row naming the columns name, label, type and subtype.
type CodebookCatalog struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *zap.Logger

	mu        sync.RWMutex
	variables []segmentation.Variable
	loaded    bool
}

var _ ports.VariableCatalog = (*CodebookCatalog)(nil)

// NewCodebookCatalog creates a catalog for the codebook at filePath. The file
// is read lazily on first use.
func NewCodebookCatalog(filePath, sheet string, logger *zap.Logger) *CodebookCatalog {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &CodebookCatalog{
		filePath: filePath,
		fileType: fileType,
		sheet:    sheet,
		logger:   logging.OrNop(logger).Named("codebook"),
	}
}

// ListVariables returns every codebook entry in file order.
func (c *CodebookCatalog) ListVariables(ctx context.Context) ([]segmentation.Variable, error) {
	c.mu.RLock()
	if c.loaded {
		out := append([]segmentation.Variable(nil), c.variables...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c.ListVariables(ctx)
}

// Reload re-reads the codebook from disk.
func (c *CodebookCatalog) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	if _, err := os.Stat(c.filePath); os.IsNotExist(err) {
		return fmt.Errorf("%s codebook not found: %s", strings.ToUpper(c.fileType), c.filePath)
	}

	var rows [][]string
	var err error
	switch c.fileType {
	case "csv":
		rows, err = c.readCSVRows()
	default:
		rows, err = c.readExcelRows()
	}
	if err != nil {
		return err
	}

	variables, err := parseRows(rows)
	if err != nil {
		return fmt.Errorf("codebook %s: %w", c.filePath, err)
	}

	c.mu.Lock()
	c.variables = variables
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("codebook loaded",
		zap.String("file", c.filePath),
		zap.Int("variables", len(variables)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *CodebookCatalog) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(c.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(c.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", c.sheet, err)
	}
	return rows, nil
}

func (c *CodebookCatalog) readCSVRows() ([][]string, error) {
	file, err := os.Open(c.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// parseRows maps a header row plus data rows onto variables. Rows without a
// name are skipped; a repeated name keeps its first entry.
func parseRows(rows [][]string) ([]segmentation.Variable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("codebook is empty")
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "variable", "variable_name":
			cols["name"] = i
		case "label", "question", "description":
			cols["label"] = i
		case "type", "variable_type":
			cols["type"] = i
		case "subtype", "sub_type", "measure":
			cols["subtype"] = i
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("header row has no name column")
	}
	if _, ok := cols["type"]; !ok {
		return nil, fmt.Errorf("header row has no type column")
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	seen := make(map[string]bool)
	variables := make([]segmentation.Variable, 0, len(rows)-1)
	for _, row := range rows[1:] {
		name := cell(row, "name")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		variables = append(variables, segmentation.Variable{
			Name:    name,
			Label:   cell(row, "label"),
			Type:    segmentation.VariableType(strings.ToLower(cell(row, "type"))),
			Subtype: strings.ToLower(cell(row, "subtype")),
		})
	}
	return variables, nil
}
