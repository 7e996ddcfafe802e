package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ethpandaops/labkeeper/pkg/config"
)

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "forwarded chain", remoteAddr: "10.0.0.1:5555", xff: "203.0.113.7, 10.0.0.2", want: "203.0.113.7"},
		{name: "no port", remoteAddr: "10.0.0.9", want: "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, extractIP(req))
		})
	}
}

func TestRateLimiterMap_Evict(t *testing.T) {
	rl := newRateLimiterMap(60)
	defer rl.stop()

	rl.getLimiter("a")
	rl.getLimiter("b")

	rl.evict(time.Now().Add(rateLimitEntryTTL + time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()

	assert.Empty(t, rl.limiters)
}

func TestRateLimitMiddleware(t *testing.T) {
	s := &server{}

	mw := s.rateLimitMiddleware(config.RateLimitTier{RequestsPerMinute: 2})
	defer s.limiters[0].stop()

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Len(t, s.limiters, 1)
}
