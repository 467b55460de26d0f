package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/security"
)

// maxBody bounds how much of a response is read.
const maxBody = 16 << 20

// request describes one JSON GET issued by an adapter.
type request struct {
	source     string
	instrument string
	url        string
	headers    map[string]string
}

// getJSON performs a GET and decodes the JSON body into target, mapping
// failures onto adapter outcomes:
//
//	transport errors, timeouts, 408, 429, 5xx -> Unavailable
//	404                                        -> NotFound
//	other 4xx, undecodable body                -> BadData
func getJSON(ctx context.Context, client *http.Client, logger zerolog.Logger, r request, target interface{}) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return apperrors.BadData(r.source, r.instrument, "building request", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		err = security.RedactError(err)
		logging.LogAPICall(logger, http.MethodGet, req.URL.Path, 0, time.Since(start), err)
		return apperrors.Unavailable(r.source, r.instrument, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	logging.LogAPICall(logger, http.MethodGet, req.URL.Path, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return apperrors.Unavailable(r.source, r.instrument, fmt.Errorf("reading body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound(r.source, r.instrument, "status 404")
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return apperrors.Unavailable(r.source, r.instrument, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return apperrors.BadData(r.source, r.instrument, fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(body)), nil)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return apperrors.BadData(r.source, r.instrument, "decoding response", err)
	}
	return nil
}

// classify turns any error returned by a Source into an AdapterError
// attributed to source. Context expiry maps to Unavailable.
func classify(source, instrument string, err error) *apperrors.AdapterError {
	var ae *apperrors.AdapterError
	if errors.As(err, &ae) {
		if ae.Source == source {
			return ae
		}
		tagged := *ae
		tagged.Source = source
		return &tagged
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Unavailable(source, instrument, err)
	}
	switch apperrors.KindOf(err) {
	case apperrors.ErrNotFound:
		return apperrors.NotFound(source, instrument, err.Error())
	case apperrors.ErrBadData:
		return apperrors.BadData(source, instrument, "", err)
	default:
		return apperrors.Unavailable(source, instrument, err)
	}
}

func snippet(body []byte) string {
	const n = 120
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
