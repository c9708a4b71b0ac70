package httpx

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatusCode() int
}

// StatusOf digs the HTTP status out of err, if any layer carries one.
func StatusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode(), true
	}
	return 0, false
}

// Retryable reports transient failures: timeouts, dropped connections, 408/429 and 5xx.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := StatusOf(err); ok {
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var quotaMarkers = []string{"429", "quota", "rate limit", "resource_exhausted"}

// QuotaExhausted reports rate-limit or quota rejections, the only failures that justify
// switching to another API key.
func QuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := StatusOf(err); ok && code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Backoff doubles from Base up to Cap and spreads each wait by +/-20%.
// A Retry-After header on the failed response replaces the computed delay.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b Backoff) Delay(attempt int, resp *http.Response) time.Duration {
	d := b.Base << attempt
	if secs := retryAfter(resp); secs > 0 {
		d = time.Duration(secs) * time.Second
	}
	if b.Cap > 0 && (d > b.Cap || d <= 0) {
		d = b.Cap
	}
	return jitter(d)
}

func retryAfter(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
	if err != nil {
		return 0
	}
	return secs
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.2
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

// Sleep waits d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
