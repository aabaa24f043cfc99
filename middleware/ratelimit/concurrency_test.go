package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"limitguard/middleware/ratelimit/infra"
)

// holdingHandler segura cada requisição até release fechar.
func holdingHandler(entered chan<- struct{}, release <-chan struct{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
}

func TestConcurrencyMiddleware_RejectsWithJSONWhenPoolIsFull(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	pool := infra.NewChanPool(1)

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Pool:           pool,
		AcquireTimeout: 20 * time.Millisecond,
	})(holdingHandler(entered, release))

	firstCode := make(chan int, 1)
	go func() {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		firstCode <- rr.Code
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		close(release)
		t.Fatalf("first request never reached the handler")
	}
	if pool.InUse() != 1 || pool.Capacity() != 1 {
		t.Fatalf("expected shared pool 1/1, got %d/%d", pool.InUse(), pool.Capacity())
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while the slot is held, got %d", rr.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Error != "Service Unavailable" {
		t.Fatalf("expected JSON rejection body, got %q (err=%v)", rr.Body.String(), err)
	}

	close(release)
	if code := <-firstCode; code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", code)
	}
	if pool.InUse() != 0 {
		t.Fatalf("slot must be released after the handler returns, in use=%d", pool.InUse())
	}
}

func TestConcurrencyMiddleware_CustomRejectStatus(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		RejectStatus:   http.StatusTooManyRequests,
		AcquireTimeout: 10 * time.Millisecond,
	})(holdingHandler(entered, release))

	go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	<-entered

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected custom reject status, got %d", rr.Code)
	}
}

func TestConcurrencyMiddleware_DisabledWhenNoMax(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := ConcurrencyMiddleware(ConcurrencyOptions{})(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", w.Code)
	}
}
