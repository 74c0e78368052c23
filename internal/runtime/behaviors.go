package runtime

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/heraldbus/herald/internal/runtime/cache"
	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
	"github.com/heraldbus/herald/internal/runtime/jsoncodec"
	loggingpkg "github.com/heraldbus/herald/internal/runtime/logging"
)

// Stock contribution ids. Custom contributions may target these with
// Before/After/Replace placements.
const (
	ContributionLogging   = "log_messages"
	ContributionValidate  = "validate"
	ContributionCache     = "cache"
	ContributionTracer    = "tracer"
	ContributionMetrics   = "metrics"
	ContributionRateLimit = "rate_limit"
	ContributionRetry     = "retry"
	ContributionRecoverer = "recoverer"
)

// Validator checks message payloads before the handler runs. Implementations
// typically forward to a struct validator.
type Validator interface {
	Validate(payload any) error
}

// LoggingContribution logs every message passing through the chain, with the
// outcome and elapsed time.
func LoggingContribution(logger loggingpkg.ServiceLogger) Contribution {
	return Contribution{
		ID:        ContributionLogging,
		Name:      "log messages",
		Placement: First(),
		Phase:     PhasePreProcessing,
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			logger.Debug("processing message", loggingpkg.LogFields{
				"execution_id": ctx.ID(),
				"message_id":   ctx.Message().ID,
				"type_tag":     ctx.Message().TypeTag,
				"kind":         ctx.Message().Kind.String(),
			})
			result, err := next.Proceed(ctx)
			if err != nil {
				logger.Error("message failed", err, loggingpkg.LogFields{
					"execution_id": ctx.ID(),
					"message_id":   ctx.Message().ID,
					"elapsed":      ctx.Elapsed().String(),
				})
				return nil, err
			}
			logger.Debug("message processed", loggingpkg.LogFields{
				"execution_id": ctx.ID(),
				"message_id":   ctx.Message().ID,
				"elapsed":      ctx.Elapsed().String(),
			})
			return result, nil
		}),
	}
}

// ValidationContribution rejects payloads the validator refuses before any
// downstream work happens.
func ValidationContribution(v Validator) Contribution {
	return Contribution{
		ID:        ContributionValidate,
		Name:      "validate payload",
		Placement: After(ContributionLogging),
		Phase:     PhasePreProcessing,
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			if v != nil {
				if err := v.Validate(ctx.Message().Payload); err != nil {
					return nil, fmt.Errorf("herald: payload validation for %q: %w", ctx.Message().TypeTag, err)
				}
			}
			return next.Proceed(ctx)
		}),
	}
}

// CachePolicy encodes and decodes cached query results. The default policy
// round-trips through JSON, so cache hits decode as generic JSON values
// unless a typed policy is supplied.
type CachePolicy struct {
	Encode func(any) ([]byte, error)
	Decode func([]byte) (any, error)
}

func defaultCachePolicy() CachePolicy {
	return CachePolicy{
		Encode: jsoncodec.Marshal,
		Decode: func(data []byte) (any, error) {
			var v any
			err := jsoncodec.Unmarshal(data, &v)
			return v, err
		},
	}
}

// CacheKey derives the store key from the message type tag and payload.
func CacheKey(msg *Message) string {
	return msg.TypeTag + ":" + jsoncodec.MarshalString(msg.Payload)
}

// CachingContribution short-circuits queries whose result is cached and
// stores fresh results with the given TTL. Non-query messages pass through
// untouched. Store failures degrade to a miss, never to a dispatch failure.
func CachingContribution(store cache.Store, ttl time.Duration, policy *CachePolicy) Contribution {
	p := defaultCachePolicy()
	if policy != nil {
		p = *policy
	}
	return Contribution{
		ID:        ContributionCache,
		Name:      "query cache",
		Placement: Ordered(10),
		Phase:     PhaseProcessing,
		EnabledWhen: func(ctx *Context) bool {
			return ctx.Message().Kind == KindQuery
		},
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			key := CacheKey(ctx.Message())
			if data, hit, err := store.Get(ctx.Base(), key); err == nil && hit {
				if value, derr := p.Decode(data); derr == nil {
					ctx.SetResult(value)
					ctx.Set("cache_hit", true)
					return value, nil
				}
			}

			result, err := next.Proceed(ctx)
			if err != nil {
				return nil, err
			}
			if data, eerr := p.Encode(result); eerr == nil {
				_ = store.Set(ctx.Base(), key, data, ttl)
			}
			return result, nil
		}),
	}
}

// TracingContribution wraps execution in an OpenTelemetry span.
func TracingContribution() Contribution {
	return Contribution{
		ID:        ContributionTracer,
		Name:      "tracer",
		Placement: Ordered(20),
		Phase:     PhaseProcessing,
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			tracer := otel.Tracer("herald-bus-tracer")
			_, span := tracer.Start(ctx.Base(), "DispatchMessage")
			defer span.End()

			span.SetAttributes(
				attribute.String("message.id", ctx.Message().ID),
				attribute.String("message.type_tag", ctx.Message().TypeTag),
				attribute.String("message.kind", ctx.Message().Kind.String()),
			)
			result, err := next.Proceed(ctx)
			if err != nil {
				span.RecordError(err)
			}
			return result, err
		}),
	}
}

// MetricsContribution counts and times chain executions.
func MetricsContribution(metrics *BusMetrics) Contribution {
	return Contribution{
		ID:        ContributionMetrics,
		Name:      "metrics",
		Placement: Ordered(30),
		Phase:     PhaseProcessing,
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			result, err := next.Proceed(ctx)
			metrics.recordDispatch(ctx.Message().Kind, err, ctx.Elapsed())
			return result, err
		}),
	}
}

// RateLimitMode selects what happens when the limiter has no token.
type RateLimitMode int

const (
	// RateLimitFail rejects the dispatch with ErrRateLimited.
	RateLimitFail RateLimitMode = iota
	// RateLimitWait suspends until a token is available or the caller
	// cancels.
	RateLimitWait
)

// RateLimitContribution throttles chain execution with a token bucket.
func RateLimitContribution(limit rate.Limit, burst int, mode RateLimitMode) Contribution {
	limiter := rate.NewLimiter(limit, burst)
	return Contribution{
		ID:        ContributionRateLimit,
		Name:      "rate limit",
		Placement: Ordered(40),
		Phase:     PhaseProcessing,
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			switch mode {
			case RateLimitWait:
				if err := limiter.Wait(ctx.Base()); err != nil {
					return nil, err
				}
			default:
				if !limiter.Allow() {
					return nil, errspkg.ErrRateLimited
				}
			}
			return next.Proceed(ctx)
		}),
	}
}

// RetryContribution re-runs the downstream chain under the policy. This is
// distinct from the bus-level retry, which wraps the whole chain.
func RetryContribution(policy RetryPolicy) Contribution {
	return Contribution{
		ID:        ContributionRetry,
		Name:      "retry",
		Placement: Ordered(50),
		Phase:     PhaseProcessing,
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			return WithRetry(next, policy).Proceed(ctx)
		}),
	}
}

// RecovererContribution converts downstream panics into errors so they can
// be retried or dead-lettered. It belongs innermost, directly around the
// handler.
func RecovererContribution() Contribution {
	return Contribution{
		ID:        ContributionRecoverer,
		Name:      "recoverer",
		Placement: Last(),
		Phase:     PhasePostProcessing,
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					result = nil
					err = fmt.Errorf("herald: panic recovered: %v", r)
				}
			}()
			return next.Proceed(ctx)
		}),
	}
}

// DefaultContributions is the standard chain used by the Bus constructor:
// logging first, recovery innermost.
func DefaultContributions(logger loggingpkg.ServiceLogger) []Contribution {
	return []Contribution{
		LoggingContribution(logger),
		RecovererContribution(),
	}
}
