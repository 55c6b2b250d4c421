package tabular

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"golmer/domain/table"
	"golmer/internal"
)

// HTTPSourceConfig configures a JSON-over-HTTP table source
type HTTPSourceConfig struct {
	URL         string            `json:"url"`
	RecordsPath string            `json:"records_path"` // gjson path to the record array
	Headers     map[string]string `json:"headers,omitempty"`
	Timeout     time.Duration     `json:"timeout"`
}

// HTTPSource fetches a JSON document and coerces its record array into a
// table. It performs a single request; the endpoint must return the full
// dataset, because baseline and candidate fits need identical observations.
type HTTPSource struct {
	config HTTPSourceConfig
	opts   Options
	client *http.Client
	logger *internal.Logger
}

// NewHTTPSource creates an HTTP table source
func NewHTTPSource(config HTTPSourceConfig, opts Options) *HTTPSource {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		config: config,
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: internal.DefaultLogger.Component("HTTPSource"),
	}
}

// Load implements ports.TableSourcePort
func (s *HTTPSource) Load(ctx context.Context) (*table.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(body))
	}
	s.logger.Debug("fetched %d bytes in %.2fms", len(body), float64(time.Since(start).Nanoseconds())/1e6)

	headers, rows, err := recordsToRows(body, s.config.RecordsPath)
	if err != nil {
		return nil, err
	}
	return BuildTable(headers, rows, s.opts)
}

// recordsToRows flattens the record array into header and row form. Column
// order is the key order of first appearance, so the same document always
// produces the same table.
func recordsToRows(body []byte, recordsPath string) ([]string, [][]string, error) {
	path := recordsPath
	if path == "" {
		path = "@this"
	}
	records := gjson.GetBytes(body, path)
	if !records.Exists() {
		return nil, nil, fmt.Errorf("records path %q not found in response", recordsPath)
	}
	if !records.IsArray() {
		return nil, nil, fmt.Errorf("records path %q is not an array", recordsPath)
	}

	var headers []string
	index := make(map[string]int)
	var parsed []map[string]string

	records.ForEach(func(_, record gjson.Result) bool {
		row := make(map[string]string)
		record.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if _, ok := index[name]; !ok {
				index[name] = len(headers)
				headers = append(headers, name)
			}
			row[name] = cellString(value)
			return true
		})
		parsed = append(parsed, row)
		return true
	})
	if len(parsed) == 0 {
		return nil, nil, fmt.Errorf("records path %q matched an empty array", recordsPath)
	}

	rows := make([][]string, len(parsed))
	for i, record := range parsed {
		row := make([]string, len(headers))
		for name, cell := range record {
			row[index[name]] = cell
		}
		rows[i] = row
	}
	return headers, rows, nil
}

func cellString(value gjson.Result) string {
	switch value.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return value.Str
	default:
		return value.Raw
	}
}
