package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"golmer/domain/table"
	"golmer/internal"
)

// Reader loads delimited files into raw header and row form.
// CSV and XLSX are supported; the format is inferred from the extension
// unless set explicitly. Delimited text defaults to comma-separated cells,
// tab-separated for .tsv and .tab files.
type Reader struct {
	path      string
	format    string // "csv" or "xlsx"
	delimiter rune
	logger    *internal.Logger
}

// NewReader creates a reader, inferring the file format from the extension
func NewReader(path string) *Reader {
	format := "csv"
	delimiter := ','
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		format = "xlsx"
	case ".tsv", ".tab":
		delimiter = '\t'
	}
	r := NewReaderWithFormat(path, format)
	r.delimiter = delimiter
	return r
}

// NewReaderWithFormat creates a reader with an explicit format
func NewReaderWithFormat(path, format string) *Reader {
	return &Reader{
		path:      path,
		format:    strings.ToLower(format),
		delimiter: ',',
		logger:    internal.DefaultLogger.Component("Reader"),
	}
}

// Read returns the header row and the raw data rows as strings
func (r *Reader) Read() ([]string, [][]string, error) {
	return r.read(r.delimiter)
}

func (r *Reader) read(delimiter rune) ([]string, [][]string, error) {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("data file not found: %s", r.path)
	}

	var rows [][]string
	var err error
	start := time.Now()
	switch r.format {
	case "csv":
		rows, err = r.readCSV(delimiter)
	case "xlsx":
		rows, err = r.readXLSX()
	default:
		return nil, nil, fmt.Errorf("unsupported data format: %s", r.format)
	}
	if err != nil {
		return nil, nil, err
	}
	r.logger.Debug("%s read in %.2fms (%d rows)",
		strings.ToUpper(r.format), float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("data file needs a header row and at least one data row: %s", r.path)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return headers, rows[1:], nil
}

// Load reads the file and coerces it into a typed table
func (r *Reader) Load(opts Options) (*table.Table, error) {
	delimiter := r.delimiter
	if opts.Delimiter != 0 {
		delimiter = opts.Delimiter
	}
	headers, rows, err := r.read(delimiter)
	if err != nil {
		return nil, err
	}
	return BuildTable(headers, rows, opts)
}

func (r *Reader) readCSV(delimiter rune) ([][]string, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

func (r *Reader) readXLSX() ([][]string, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets: %s", r.path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// FileSource adapts a Reader to ports.TableSourcePort
type FileSource struct {
	reader *Reader
	opts   Options
}

// NewFileSource creates a table source backed by a local file
func NewFileSource(path string, opts Options) *FileSource {
	return &FileSource{reader: NewReader(path), opts: opts}
}

// NewFileSourceWithFormat creates a file source with an explicit format
func NewFileSourceWithFormat(path, format string, opts Options) *FileSource {
	return &FileSource{reader: NewReaderWithFormat(path, format), opts: opts}
}

// Load implements ports.TableSourcePort
func (s *FileSource) Load(ctx context.Context) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.reader.Load(s.opts)
}
