// Package packagepoll waits for an offline package build to finish by
// polling the status endpoint until it reports ready, the attempt budget
// runs out or the context is cancelled.
package packagepoll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// maxInterval bounds how long a client sits between polls so a
	// finished package is noticed promptly.
	maxInterval = 5 * time.Second

	defaultInterval    = 2 * time.Second
	defaultMaxAttempts = 120
)

// Status is the poll endpoint's JSON response.
type Status struct {
	PackageID int64  `json:"packageId"`
	Status    string `json:"status"`
	FileName  string `json:"fileName,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
}

// SleepFunc pauses for d or returns early with ctx.Err(). Tests inject a
// fake to run without real time.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Poller struct {
	client      *http.Client
	baseURL     string
	interval    time.Duration
	maxAttempts int
	sleep       SleepFunc
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

func WithSleep(fn SleepFunc) Option {
	return func(p *Poller) { p.sleep = fn }
}

// New builds a poller for a server at baseURL, e.g. "http://localhost:8080".
func New(client *http.Client, baseURL string, opts ...Option) *Poller {
	p := &Poller{
		client:      client,
		baseURL:     baseURL,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		sleep:       realSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 || p.interval > maxInterval {
		p.interval = maxInterval
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	return p
}

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait polls packageID until its status is ready and returns the final
// status. It fails once the attempt budget is exhausted.
func (p *Poller) Wait(ctx context.Context, packageID int64) (Status, error) {
	var last Status
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				return last, err
			}
		}

		st, err := p.check(ctx, packageID)
		if err != nil {
			return last, err
		}
		last = st
		if st.Status == "ready" {
			return st, nil
		}
	}
	return last, fmt.Errorf("package %d not ready after %d attempts", packageID, p.maxAttempts)
}

func (p *Poller) check(ctx context.Context, packageID int64) (Status, error) {
	url := fmt.Sprintf("%s/api/offline-package/%d", p.baseURL, packageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("package status request returned %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("decode package status: %w", err)
	}
	return st, nil
}
