package marvin

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/pipz"
)

// Option modifies a pipeline for reliability features.
type Option func(pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest]

// WithRetry adds retry logic to the pipeline.
// Failed requests are retried up to maxAttempts times.
func WithRetry(maxAttempts int) Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		return pipz.NewRetry("retry", pipeline, maxAttempts)
	}
}

// WithBackoff adds retry logic with exponential backoff to the pipeline.
// The delay starts at baseDelay and doubles after each failure.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		return pipz.NewBackoff("backoff", pipeline, maxAttempts, baseDelay)
	}
}

// WithTimeout adds timeout protection to the pipeline.
// Operations exceeding this duration will be canceled.
func WithTimeout(duration time.Duration) Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		return pipz.NewTimeout("timeout", pipeline, duration)
	}
}

// WithCircuitBreaker adds circuit breaker protection to the pipeline.
// After 'failures' consecutive failures, the circuit opens for 'recovery'
// duration.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		return pipz.NewCircuitBreaker("circuit-breaker", pipeline, failures, recovery)
	}
}

// WithRateLimit adds rate limiting to the pipeline.
// rps = requests per second, burst = burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		rateLimiter := pipz.NewRateLimiter[*CallRequest]("rate-limit", rps, burst)
		return pipz.NewSequence("rate-limited", rateLimiter, pipeline)
	}
}

// WithErrorHandler adds error handling to the pipeline.
// The handler receives error context and can process/log/alert as needed.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*CallRequest]]) Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		return pipz.NewHandle("error-handler", pipeline, handler)
	}
}

// PipelineProvider is implemented by types that expose their pipeline for
// composition.
type PipelineProvider interface {
	GetPipeline() pipz.Chainable[*CallRequest]
}

// WithFallback adds a fallback pipeline for resilience.
// If the primary fails, the fallback will be tried.
func WithFallback(fallback PipelineProvider) Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		return pipz.NewFallback("with-fallback", pipeline, fallback.GetPipeline())
	}
}

// WithDebug adds debug logging that prints the outgoing messages and the raw
// response envelope. Useful for understanding what the model sees/returns.
func WithDebug() Option {
	return func(pipeline pipz.Chainable[*CallRequest]) pipz.Chainable[*CallRequest] {
		return pipz.Apply("debug", func(ctx context.Context, req *CallRequest) (*CallRequest, error) {
			fmt.Println("\n=== DEBUG: Messages ===")
			for _, m := range req.Request.Messages {
				fmt.Printf("[%s] %s\n", m.Role, m.Content)
			}
			fmt.Println("=======================")

			processed, err := pipeline.Process(ctx, req)
			if err != nil {
				fmt.Printf("\n=== DEBUG: Error ===\n%v\n====================\n\n", err)
				return processed, err
			}

			fmt.Println("\n=== DEBUG: Envelope ===")
			if processed.Envelope != nil {
				fmt.Println(processed.Envelope.Content)
				if tc := processed.Envelope.ToolCall; tc != nil {
					fmt.Printf("tool call: %s(%s)\n", tc.Name, string(tc.Arguments))
				}
			}
			fmt.Println("=======================")

			return processed, nil
		})
	}
}
