package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/gateway/httpclient"
)

// DiagnosticsHeader carries non-fatal predictor warnings alongside a valid body.
const DiagnosticsHeader = "X-Predictor-Diagnostics"

const maxPredictorBody = 1 << 20

// RemoteScorer posts the aggregates payload to an external predictor and
// reads the risk payload back. Transport timeouts are retried; every other
// failure is returned as a *PredictorError.
type RemoteScorer struct {
	url      string
	client   *http.Client
	attempts int
}

func NewRemoteScorer(url string, timeout time.Duration) *RemoteScorer {
	return &RemoteScorer{
		url:      url,
		client:   httpclient.New(timeout),
		attempts: 2,
	}
}

func (s *RemoteScorer) Score(ctx context.Context, agg models.Aggregates) (Result, error) {
	body, err := json.Marshal(agg)
	if err != nil {
		return Result{}, &PredictorError{Reason: "encoding aggregates", Err: err}
	}

	var res Result
	err = httpclient.Retry(ctx, s.attempts, 200*time.Millisecond, func() error {
		out, callErr := s.call(ctx, body)
		if callErr != nil {
			if httpclient.IsRetriable(callErr) {
				return callErr
			}
			return httpclient.Permanent(callErr)
		}
		res = out
		return nil
	})
	if err != nil {
		if IsPredictorError(err) {
			return Result{}, err
		}
		return Result{}, &PredictorError{Reason: "predictor unreachable", Err: err}
	}

	for _, w := range res.Warnings {
		logger.Log.WithField("predictor", s.url).Warn("predictor diagnostics: " + w)
	}
	return res, nil
}

func (s *RemoteScorer) call(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, &PredictorError{Reason: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPredictorBody))
	if err != nil {
		return Result{}, &PredictorError{Reason: "reading response", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &PredictorError{
			Reason:      "predictor returned an error",
			Status:      resp.StatusCode,
			Diagnostics: strings.TrimSpace(string(raw)),
		}
	}

	var payload models.RiskPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{}, &PredictorError{
			Reason:      "unparsable predictor output",
			Status:      resp.StatusCode,
			Diagnostics: strings.TrimSpace(string(raw)),
			Err:         err,
		}
	}
	if err := ValidatePayload(payload); err != nil {
		return Result{}, &PredictorError{
			Reason:      "malformed predictor output",
			Status:      resp.StatusCode,
			Diagnostics: strings.TrimSpace(string(raw)),
			Err:         err,
		}
	}

	var warnings []string
	for _, v := range resp.Header.Values(DiagnosticsHeader) {
		if v = strings.TrimSpace(v); v != "" {
			warnings = append(warnings, fmt.Sprintf("predictor: %s", v))
		}
	}
	return Result{Predictions: payload, Warnings: warnings}, nil
}
