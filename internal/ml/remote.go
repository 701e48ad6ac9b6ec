package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteClassifier sends the bridge protocol to an HTTP inference endpoint
// (POST {base}/predict) that hosts the model and its explainer.
type RemoteClassifier struct {
	base          string
	columns       []string
	positiveClass int
	rest          *resty.Client
}

func NewRemoteClassifier(base string, columns []string, positiveClass int, timeout time.Duration) *RemoteClassifier {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Content-Type", "application/json")
	return &RemoteClassifier{
		base:          strings.TrimRight(base, "/"),
		columns:       append([]string(nil), columns...),
		positiveClass: positiveClass,
		rest:          r,
	}
}

func (c *RemoteClassifier) Predict(ctx context.Context, rows [][]float64) ([]string, error) {
	resp, err := c.post(ctx, opPredict, rows)
	if err != nil {
		return nil, err
	}
	if len(resp.Labels) != len(rows) {
		return nil, fmt.Errorf("expected %d labels, got %d", len(rows), len(resp.Labels))
	}
	return resp.Labels, nil
}

func (c *RemoteClassifier) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	resp, err := c.post(ctx, opPredictProba, rows)
	if err != nil {
		return nil, err
	}
	if len(resp.Probabilities) != len(rows) {
		return nil, fmt.Errorf("expected %d probability rows, got %d", len(rows), len(resp.Probabilities))
	}
	return resp.Probabilities, nil
}

func (c *RemoteClassifier) Explain(ctx context.Context, rows [][]float64) (Explanation, error) {
	resp, err := c.post(ctx, opExplain, rows)
	if err != nil {
		return Explanation{}, err
	}
	return resp.explanation()
}

func (c *RemoteClassifier) post(ctx context.Context, op string, rows [][]float64) (*bridgeResponse, error) {
	out := &bridgeResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(bridgeRequest{Op: op, Columns: c.columns, Rows: rows, PositiveClass: c.positiveClass}).
		SetResult(out).
		SetError(out).
		Post(c.base + "/predict")
	if err != nil {
		return nil, fmt.Errorf("remote model request failed: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("remote model: %s", out.Error)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote model: %s", resp.Status())
	}
	return out, nil
}
