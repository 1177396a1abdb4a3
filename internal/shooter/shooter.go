package shooter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/studiowebux/loadcheck/internal/config"
)

const (
	// HTTP client configuration timeouts
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
)

// Outcome is the result of one shot. A transport or timeout failure is
// reported as StatusCode 0 with the error text; it never propagates as an
// error so a single failed shot cannot abort the load loop.
type Outcome struct {
	Succeeded  bool
	LatencyMs  float64
	StatusCode int
	Err        string
}

// Shooter issues single HTTP requests against the routine target using a
// shared connection-pooled client. Safe for concurrent use up to the
// configured concurrency bound.
type Shooter struct {
	routine *config.Routine
	client  *http.Client
}

// New builds a Shooter with a client pooled for the routine's concurrency
func New(routine *config.Routine) (*Shooter, error) {
	client, err := buildHTTPClient(routine)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}
	return &Shooter{routine: routine, client: client}, nil
}

// Shoot issues exactly one HTTP request and reports the outcome.
// The latency of a failed shot is the elapsed time until the failure.
func (s *Shooter) Shoot(ctx context.Context) Outcome {
	start := time.Now()

	var bodyReader io.Reader
	if s.routine.Payload != "" {
		bodyReader = strings.NewReader(s.routine.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, s.routine.Method, s.routine.TargetURL, bodyReader)
	if err != nil {
		return Outcome{
			LatencyMs: elapsedMs(start),
			Err:       fmt.Sprintf("failed to create request: %v", err),
		}
	}

	for key, value := range s.routine.Headers {
		req.Header.Set(key, value)
	}
	if s.routine.Payload != "" && jsonContentType(s.routine.Headers) {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Connection failure, timeout, or other network error
		return Outcome{
			LatencyMs: elapsedMs(start),
			Err:       err.Error(),
		}
	}
	defer resp.Body.Close()

	// Drain the body so the connection can be reused by the pool
	_, _ = io.Copy(io.Discard, resp.Body)
	latency := elapsedMs(start)

	return Outcome{
		Succeeded:  s.routine.IsSuccessStatus(resp.StatusCode),
		LatencyMs:  latency,
		StatusCode: resp.StatusCode,
	}
}

// elapsedMs returns the time since start in fractional milliseconds
func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// jsonContentType reports whether the payload should be sent as JSON:
// either a JSON content type is declared, or none is set at all
func jsonContentType(headers map[string]string) bool {
	for key, value := range headers {
		if strings.EqualFold(key, "Content-Type") {
			return strings.Contains(strings.ToLower(value), "application/json")
		}
	}
	return true
}

// buildHTTPClient creates an HTTP client optimized for load generation
// with connection pooling, timeouts, and resource limits
func buildHTTPClient(routine *config.Routine) (*http.Client, error) {
	transport := &http.Transport{
		// Connection pool settings to prevent resource exhaustion
		MaxIdleConns:        routine.Concurrency,
		MaxIdleConnsPerHost: routine.Concurrency,
		MaxConnsPerHost:     routine.Concurrency * 2,
		IdleConnTimeout:     IdleConnTimeout,
		DisableKeepAlives:   false,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,

		// Timeouts for connection establishment
		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,

		TLSHandshakeTimeout: TLSHandshakeTimeout,

		// Timeout for reading response headers
		ResponseHeaderTimeout: routine.Timeout(),

		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	if routine.TLS != nil {
		tlsCfg := &tls.Config{
			InsecureSkipVerify: routine.TLS.InsecureSkipVerify,
		}

		// Load client certificate if provided (for mTLS)
		if routine.TLS.CertFile != "" && routine.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(routine.TLS.CertFile, routine.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}

		// Load CA certificate if provided (for server verification)
		if routine.TLS.CAFile != "" {
			caCert, err := os.ReadFile(routine.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse CA certificate")
			}
			tlsCfg.RootCAs = caCertPool
		}

		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Timeout:   routine.Timeout(),
		Transport: transport,
	}, nil
}
