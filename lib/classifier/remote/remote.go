// Package remote classifies digits with a model served over HTTP by an
// MLflow-style serving proxy.
//
// The request is POST {url}/models/predict/{model}/[{version}/] with the
// body {"inputs": [[784 floats]]}. The proxy answers {"predictions": ...}
// holding either a batch of ten scores or a batch of digits.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/inkwell-labs/scribble"
	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/imaging"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 1 << 20

type Client struct {
	url     *url.URL
	model   string
	version string
	client  *http.Client
}

func NewClient(_url, model, version string, client *http.Client) (*Client, error) {
	u, err := url.Parse(_url)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &Client{url: u, model: model, version: version, client: client}, nil
}

type predictRequest struct {
	Inputs [][]float32 `json:"inputs"`
}

type predictResponse struct {
	Predictions json.RawMessage `json:"predictions"`
}

func (c *Client) endpoint() string {
	parts := []string{"models", "predict", c.model}
	if c.version != "" {
		parts = append(parts, c.version)
	}
	// the serving proxy routes on the trailing slash
	return c.url.JoinPath(parts...).String() + "/"
}

func (c *Client) Classify(ctx context.Context, t *imaging.Tensor) (int, error) {
	body, err := json.Marshal(predictRequest{Inputs: [][]float32{t.Flat()}})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: create request: %w", classifier.ErrBackendUnavailable, err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", "inkwell-scribble/"+scribble.Version)

	response, err := c.client.Do(request)
	if err != nil {
		return 0, fmt.Errorf("%w: send request: %w", classifier.ErrBackendUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		resp, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return 0, fmt.Errorf("%w: server response status code: %d, body: %s", classifier.ErrBackendUnavailable, response.StatusCode, resp)
	}

	var resp predictResponse
	if err = json.NewDecoder(io.LimitReader(response.Body, maxResponseSize)).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: read response body: %w", classifier.ErrBackendUnavailable, err)
		}
		return 0, fmt.Errorf("%w: decode response body: %w", classifier.ErrBackendProtocol, err)
	}

	return classifier.DigitFromPredictions(resp.Predictions)
}
