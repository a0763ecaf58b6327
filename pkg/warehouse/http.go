package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/malbeclabs/eventlens/pkg/rowset"
)

const maxErrorBody = 500

// HTTP runs queries through the ClickHouse HTTP interface using FORMAT JSON.
type HTTP struct {
	url    string
	client *http.Client
}

func NewHTTP(url string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &HTTP{url: url, client: client}
}

func (h *HTTP) Execute(ctx context.Context, sql string) (*rowset.Set, error) {
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if sql == "" {
		return nil, errors.New("empty query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(sql+" FORMAT JSON"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return nil, fmt.Errorf("warehouse returned %d: %s", resp.StatusCode, msg)
	}

	var chResp struct {
		Meta []struct {
			Name string `json:"name"`
		} `json:"meta"`
		Data []rowset.Row `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&chResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	columns := make([]string, 0, len(chResp.Meta))
	for _, m := range chResp.Meta {
		columns = append(columns, m.Name)
	}
	for _, row := range chResp.Data {
		for k, v := range row {
			row[k] = fromNumber(v)
		}
	}
	return rowset.New(columns, chResp.Data), nil
}

func fromNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
