package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteModel calls an inference server that hosts the recognition network.
// The server receives the tensor as JSON and answers {"scores": [[...], ...]}.
type RemoteModel struct {
	url    string
	width  int
	height int
	client *http.Client
}

func NewRemoteModel(url string, width, height int, timeout time.Duration) *RemoteModel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteModel{
		url:    url,
		width:  width,
		height: height,
		client: &http.Client{Timeout: timeout},
	}
}

func (m *RemoteModel) InputSize() (int, int) {
	return m.width, m.height
}

type inferResponse struct {
	Scores [][]float32 `json:"scores"`
}

func (m *RemoteModel) Infer(ctx context.Context, img Tensor) ([][]float32, error) {
	body, err := json.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("encode tensor: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("inference server returned %d: %s", resp.StatusCode, msg)
	}
	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if len(out.Scores) == 0 {
		return nil, fmt.Errorf("inference response has no scores")
	}
	return out.Scores, nil
}
