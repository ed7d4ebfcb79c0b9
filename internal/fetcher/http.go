package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/martstalk/internal/config"
	"github.com/IshaanNene/martstalk/internal/identity"
	"github.com/IshaanNene/martstalk/internal/types"
)

// Client is the retrying HTTP client used for image downloads. Pages go
// through the browser; images are plain GETs that only need the same
// exit IP, which the identity's proxy provides.
type Client struct {
	cfg        *config.FetcherConfig
	logger     *slog.Logger
	retryCodes map[int]bool
}

// NewClient creates an image download client.
func NewClient(cfg *config.FetcherConfig, logger *slog.Logger) *Client {
	codes := make(map[int]bool, len(cfg.RetryStatusCodes))
	for _, c := range cfg.RetryStatusCodes {
		codes[c] = true
	}
	return &Client{
		cfg:        cfg,
		logger:     logger.With("component", "http_client"),
		retryCodes: codes,
	}
}

// Get downloads rawURL through the identity's proxy (direct when id is
// nil), retrying transient failures with linear backoff.
func (c *Client) Get(ctx context.Context, rawURL string, id *identity.Identity) ([]byte, error) {
	client := c.httpClient(id)
	defer client.CloseIdleConnections()

	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.get(ctx, client, rawURL, id)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var fe *types.FetchError
		if errors.As(err, &fe) && !fe.Retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}

		if attempt < attempts {
			delay := RandomDelay(c.cfg.RetryDelay * time.Duration(attempt))
			c.logger.Debug("retrying download",
				"url", rawURL, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", types.ErrMaxRetries, lastErr)
}

// get performs a single attempt.
func (c *Client) get(ctx context.Context, client *http.Client, rawURL string, id *identity.Identity) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/*;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if id != nil {
		if ua := id.Fingerprint.UserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		for k, v := range id.Headers {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "martstalk/"+config.Version)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable:  c.retryCodes[resp.StatusCode],
		}
	}

	var reader io.Reader = resp.Body
	if c.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, c.cfg.MaxBodySize)
	}
	reader, err = decompressReader(resp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}
	return body, nil
}

// httpClient builds a client wired to the identity's proxy. The
// precomputed Proxy-Authorization rides the CONNECT request, and extra
// provider headers (tunnel pinning) go with it.
func (c *Client) httpClient(id *identity.Identity) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.cfg.TLSInsecure,
		},
		DisableCompression: true, // decompression handled here, including brotli
	}

	if id != nil {
		proxyURL := id.ProxyURL()
		transport.Proxy = http.ProxyURL(proxyURL)

		connectHeader := make(http.Header)
		if id.AuthHeader != "" {
			connectHeader.Set("Proxy-Authorization", id.AuthHeader)
		}
		for k, v := range id.Headers {
			connectHeader.Set(k, v)
		}
		if len(connectHeader) > 0 {
			transport.ProxyConnectHeader = connectHeader
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
// Covers timeouts, connection resets, unexpected EOF, and connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellation is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if netErr, ok := err.(net.Error); ok {
		if netErr.Timeout() {
			return true
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// RandomDelay returns a random delay around the base duration (±25%).
func RandomDelay(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	jitter := float64(base) * 0.25
	return base + time.Duration(rand.Float64()*2*jitter-jitter)
}
