package excel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"hypolab/domain/core"
	"hypolab/internal/scorecard"
)

// DataReader reads contribution score sheets from xlsx or csv files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *zap.Logger
}

// NewDataReader creates a reader; the file type follows the extension
func NewDataReader(filePath string, logger *zap.Logger) *DataReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger}
}

// ReadData reads the raw rows of the file
func (r *DataReader) ReadData() (*SheetData, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, eris.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads the Scores sheet, falling back to the first sheet
func (r *DataReader) readExcelData() (*SheetData, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := SheetScores
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read sheet %s", sheet)
	}
	r.logger.Debug("sheet read",
		zap.String("sheet", sheet),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)))

	return r.processRows(rows)
}

func (r *DataReader) readCSVData() (*SheetData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "failed to read CSV file")
	}
	return r.processRows(rows)
}

// processRows converts raw string rows into SheetData, skipping blank lines
func (r *DataReader) processRows(rows [][]string) (*SheetData, error) {
	if len(rows) < 2 {
		return nil, eris.New("score sheet must have a header row and at least one data row")
	}

	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.ToLower(strings.TrimSpace(header))
	}

	var dataRows []RawRowData
	for _, row := range rows[1:] {
		rowData := make(RawRowData)
		blank := true
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
				if rowData[headers[j]] != "" {
					blank = false
				}
			}
		}
		if !blank {
			dataRows = append(dataRows, rowData)
		}
	}

	return &SheetData{Headers: headers, Rows: dataRows}, nil
}

// NamedContribution is a contribution with the label it had in the sheet
type NamedContribution struct {
	Name         string
	Contribution scorecard.Contribution
}

// ReadContributions groups score rows by their contribution column, in order of first appearance
func (r *DataReader) ReadContributions() ([]NamedContribution, error) {
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	for _, col := range []string{ColContribution, ColRole, ColCriterion, ColScore} {
		if !hasHeader(data.Headers, col) {
			return nil, eris.Errorf("score sheet is missing the %q column", col)
		}
	}

	var out []NamedContribution
	index := make(map[string]int)
	for i, row := range data.Rows {
		line := i + 2
		name := row[ColContribution]
		if name == "" {
			return nil, eris.Errorf("row %d: contribution is empty", line)
		}

		pos, seen := index[name]
		if !seen {
			pos = len(out)
			index[name] = pos
			out = append(out, NamedContribution{
				Name:         name,
				Contribution: scorecard.Contribution{Role: scorecard.Role(row[ColRole]), Scores: map[string]int{}},
			})
		}
		c := &out[pos].Contribution
		if string(c.Role) != row[ColRole] {
			return nil, eris.Errorf("row %d: %s changes role from %s to %s", line, name, c.Role, row[ColRole])
		}

		if criterion := row[ColCriterion]; criterion != "" {
			score, err := strconv.Atoi(row[ColScore])
			if err != nil {
				return nil, eris.Wrapf(err, "row %d: score %q is not a number", line, row[ColScore])
			}
			c.Scores[criterion] = score
		}
		for _, a := range splitList(row[ColAnchors]) {
			c.Anchors = append(c.Anchors, core.Anchor(a))
		}
		c.ClaimsKill = c.ClaimsKill || truthy(row[ColClaimsKill])
		c.MissingPotencyCheck = c.MissingPotencyCheck || truthy(row[ColMissingPotencyCheck])
	}

	r.logger.Info("contributions read",
		zap.String("file", r.filePath),
		zap.Int("contributions", len(out)))
	return out, nil
}

func hasHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' || r == ' ' }) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truthy(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
