// Package loadtest dispara requisições concorrentes contra um endpoint
// limitado e conta quantas passaram e quantas foram barradas.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	URL         string
	Requests    int
	Connections int
	Duration    time.Duration // 0 = sem limite de tempo
	Client      *http.Client
}

type Result struct {
	Success   int64 // 2xx
	Limited   int64 // 429
	Other     int64 // demais status
	Errors    int64 // falhas de transporte
	Unmarked  int64 // 2xx sem X-RateLimit-Limit
	Degraded  int64 // respostas com X-RateLimit-Status
	Elapsed   time.Duration
	Requested int64
}

// Passed diz se o limite foi respeitado: no máximo expected sucessos e
// ao menos um 429.
func (r Result) Passed(expected int64) bool {
	return r.Success <= expected && r.Limited > 0
}

func (r Result) String() string {
	return fmt.Sprintf("requests=%d 2xx=%d 429=%d other=%d errors=%d degraded=%d elapsed=%s",
		r.Requested, r.Success, r.Limited, r.Other, r.Errors, r.Degraded, r.Elapsed.Round(time.Millisecond))
}

// Run distribui Requests entre Connections workers. Para cedo se ctx
// terminar ou Duration expirar.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.URL == "" {
		return Result{}, fmt.Errorf("url is required")
	}
	if opts.Requests <= 0 {
		opts.Requests = 200
	}
	if opts.Connections <= 0 {
		opts.Connections = 100
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	var (
		success, limited, other, failed, unmarked, degraded, sent atomic.Int64
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Connections)
	for i := 0; i < opts.Requests; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, opts.URL, nil)
			if err != nil {
				return err
			}
			sent.Add(1)
			resp, err := client.Do(req)
			if err != nil {
				failed.Add(1)
				return nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			if resp.Header.Get("X-RateLimit-Status") != "" {
				degraded.Add(1)
			}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				limited.Add(1)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				success.Add(1)
				if resp.Header.Get("X-RateLimit-Limit") == "" {
					unmarked.Add(1)
				}
			default:
				other.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	return Result{
		Success:   success.Load(),
		Limited:   limited.Load(),
		Other:     other.Load(),
		Errors:    failed.Load(),
		Unmarked:  unmarked.Load(),
		Degraded:  degraded.Load(),
		Elapsed:   time.Since(start),
		Requested: sent.Load(),
	}, err
}
