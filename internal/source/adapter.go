// Package source wraps the external solunar, weather and LLM providers behind
// one Adapter contract and fans calls out to them.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"musky.app/forecast/internal/model"
)

// Adapter fetches one provider's prediction for a location and date. Fetch
// never returns an error: failures are reported in SourceResult.Error.
// Implementations must be safe for concurrent use.
type Adapter interface {
	ID() string
	Confidence() model.Confidence
	Fetch(ctx context.Context, loc model.Location, date time.Time) model.SourceResult
}

// BaseAdapter carries the static identity of an adapter plus its upstream
// rate limiter and HTTP client.
type BaseAdapter struct {
	id         string
	confidence model.Confidence
	weight     float64
	limiter    *rate.Limiter
	http       *http.Client
}

// NewBaseAdapter allows ratePerMin requests per minute; zero or less disables
// limiting.
func NewBaseAdapter(id string, confidence model.Confidence, weight float64, ratePerMin int, client *http.Client) BaseAdapter {
	limit := rate.Inf
	if ratePerMin > 0 {
		limit = rate.Limit(float64(ratePerMin) / 60.0)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return BaseAdapter{
		id:         id,
		confidence: confidence,
		weight:     weight,
		limiter:    rate.NewLimiter(limit, 1),
		http:       client,
	}
}

func (b *BaseAdapter) ID() string {
	return b.id
}

func (b *BaseAdapter) Confidence() model.Confidence {
	return b.confidence
}

func (b *BaseAdapter) Weight() float64 {
	return b.weight
}

func (b *BaseAdapter) window(kind model.WindowKind, start, end int) model.TimeWindow {
	return model.TimeWindow{Start: start, End: end, Kind: kind, SourceID: b.id, Weight: b.weight}
}

func (b *BaseAdapter) ok() model.SourceResult {
	return model.SourceResult{SourceID: b.id, Confidence: b.confidence}
}

// fail converts err into a failed result, classifying it by kind.
func (b *BaseAdapter) fail(err error) model.SourceResult {
	kind, msg := classify(err)
	return model.Failed(b.id, b.confidence, kind, msg)
}

// fetchError tags an error with the kind it should be reported as.
type fetchError struct {
	kind model.SourceErrorKind
	err  error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func kindError(kind model.SourceErrorKind, format string, args ...any) error {
	return &fetchError{kind: kind, err: fmt.Errorf(format, args...)}
}

func classify(err error) (model.SourceErrorKind, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.SourceErrorTimeout, "timeout"
	}
	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.kind, fe.Error()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.SourceErrorTimeout, "timeout"
	}
	return model.SourceErrorNetwork, err.Error()
}

// getJSON waits for the rate limiter, performs a GET and decodes a JSON body.
func (b *BaseAdapter) getJSON(ctx context.Context, url string, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return kindError(model.SourceErrorRateLimited, "rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return kindError(model.SourceErrorRateLimited, "upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return kindError(model.SourceErrorUpstream, "upstream returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return kindError(model.SourceErrorDecode, "decoding response: %w", err)
	}
	return nil
}
