package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/breatheroute/envwatch/internal/environment"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a request.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the upstream in logs, breaker state and the registry.
	Name string

	// Timeout bounds each individual attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Zero disables retries.
	MaxRetries uint64

	// InitialInterval is the first retry backoff interval.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the retry backoff interval.
	// Default: 2 seconds
	MaxInterval time.Duration

	// RequestsPerSecond enables a token bucket limiter when > 0.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Default: 1
	Burst int

	// CircuitBreaker configures the breaker. If nil, DefaultCircuitBreakerConfig is used.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives this client and its success/failure history.
	Registry *Registry

	// Meter records call durations and attempt counts.
	// Default: the global meter provider.
	Meter metric.Meter

	Logger zerolog.Logger
}

// DefaultClientConfig returns the configuration used for the public upstreams.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Burst:           1,
		CircuitBreaker:  &cb,
		Logger:          zerolog.Nop(),
	}
}

// Client executes HTTP requests with a per-attempt timeout, retries with
// exponential backoff, a circuit breaker and optional rate limiting.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	limiter    *rate.Limiter
	registry   *Registry
	config     ClientConfig
	logger     zerolog.Logger

	callDuration metric.Float64Histogram
	attempts     metric.Int64Counter
}

const meterName = "github.com/breatheroute/envwatch/internal/provider/resilience"

// NewClient creates a resilient client and registers it when a registry is configured.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	logger := cfg.Logger.With().Str("provider", cfg.Name).Logger()

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	if cbConfig.OnStateChange == nil {
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	// Instrument creation only fails on invalid names.
	callDuration, _ := meter.Float64Histogram(
		"envwatch.upstream.call.duration",
		metric.WithDescription("Duration of upstream calls including retries"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"envwatch.upstream.attempts",
		metric.WithDescription("Upstream HTTP attempts, including retries"),
		metric.WithUnit("{attempt}"),
	)

	c := &Client{
		callDuration: callDuration,
		attempts:     attempts,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		breaker:      NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		registry:     cfg.Registry,
		config:       cfg,
		logger:       logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes req using its context.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes req, retrying network errors and 5xx responses.
// 4xx responses are returned without retry. When retries are exhausted on a
// 5xx the last response is returned with a nil error so callers can inspect it.
// Errors are classified into environment.ErrTimeout or environment.ErrNetworkFailure.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response
	attempt := 0
	start := time.Now()
	providerAttr := attribute.String("provider", c.config.Name)
	defer func() {
		c.attempts.Add(ctx, int64(attempt), metric.WithAttributes(providerAttr))
	}()

	operation := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			r, err := c.httpClient.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				if lastResp != nil {
					_ = lastResp.Body.Close()
				}
				lastResp = resp
			}
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("upstream attempt failed")
			return err
		}

		if lastResp != nil {
			_ = lastResp.Body.Close()
		}
		lastResp = resp
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil && lastResp == nil {
		err = classify(err)
		c.recordFailure(err)
		c.observe(ctx, start, providerAttr, "error")
		return nil, err
	}

	if lastResp.StatusCode >= 400 {
		c.recordFailure(fmt.Errorf("status %d", lastResp.StatusCode))
		c.observe(ctx, start, providerAttr, "http_error")
	} else {
		c.recordSuccess()
		c.observe(ctx, start, providerAttr, "ok")
	}
	return lastResp, nil
}

func (c *Client) observe(ctx context.Context, start time.Time, provider attribute.KeyValue, outcome string) {
	c.callDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(provider, attribute.String("outcome", outcome)))
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.config.Name, err)
	}
}

// classify maps transport failures onto the environment error taxonomy.
func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", environment.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", environment.ErrNetworkFailure, err)
	}
}

// ServerError represents an HTTP 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the current breaker counts.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
