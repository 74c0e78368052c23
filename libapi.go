package herald

import (
	runtimepkg "github.com/heraldbus/herald/internal/runtime"
	cachepkg "github.com/heraldbus/herald/internal/runtime/cache"
	configpkg "github.com/heraldbus/herald/internal/runtime/config"
	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
	idspkg "github.com/heraldbus/herald/internal/runtime/ids"
	jsoncodec "github.com/heraldbus/herald/internal/runtime/jsoncodec"
	loggingpkg "github.com/heraldbus/herald/internal/runtime/logging"
	transportpkg "github.com/heraldbus/herald/transport"
)

type (
	Config       = configpkg.Config
	Bus          = runtimepkg.Bus
	Dependencies = runtimepkg.Dependencies

	Message  = runtimepkg.Message
	Kind     = runtimepkg.Kind
	Priority = runtimepkg.Priority

	Handler          = runtimepkg.Handler
	HandlerFunc      = runtimepkg.HandlerFunc
	EventHandler     = runtimepkg.EventHandler
	EventHandlerFunc = runtimepkg.EventHandlerFunc
	Subscription     = runtimepkg.Subscription
	SubscribeOption  = runtimepkg.SubscribeOption

	Context       = runtimepkg.Context
	Behavior      = runtimepkg.Behavior
	BehaviorFunc  = runtimepkg.BehaviorFunc
	Chain         = runtimepkg.Chain
	ChainFunc     = runtimepkg.ChainFunc
	Contribution  = runtimepkg.Contribution
	Placement     = runtimepkg.Placement
	PlacementKind = runtimepkg.PlacementKind
	Phase         = runtimepkg.Phase
	Validator     = runtimepkg.Validator

	RateLimitMode = runtimepkg.RateLimitMode

	RetryPolicy        = runtimepkg.RetryPolicy
	BackoffSchedule    = runtimepkg.BackoffSchedule
	FixedBackoff       = runtimepkg.FixedBackoff
	LinearBackoff      = runtimepkg.LinearBackoff
	ExponentialBackoff = runtimepkg.ExponentialBackoff

	CorrelationRecord = runtimepkg.CorrelationRecord
	CorrelationStatus = runtimepkg.CorrelationStatus
	DeadLetterEntry   = runtimepkg.DeadLetterEntry
	HealthSnapshot    = runtimepkg.HealthSnapshot
	MetricsSnapshot   = runtimepkg.MetricsSnapshot

	Bridge        = runtimepkg.Bridge
	BridgeOptions = runtimepkg.BridgeOptions

	CacheStore  = cachepkg.Store
	CachePolicy = runtimepkg.CachePolicy
	RedisConfig = cachepkg.RedisConfig

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	HandlerNotFoundError       = errspkg.HandlerNotFoundError
	DuplicateHandlerError      = errspkg.DuplicateHandlerError
	DuplicateContributionError = errspkg.DuplicateContributionError
	CircularPlacementWarning   = errspkg.CircularPlacementWarning
	RetryExhaustedError        = errspkg.RetryExhaustedError
	TimeoutError               = errspkg.TimeoutError
	PublishError               = errspkg.PublishError
	ConfigValidationError      = errspkg.ConfigValidationError

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportSettings     = transportpkg.Settings
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

const (
	KindCommand = runtimepkg.KindCommand
	KindQuery   = runtimepkg.KindQuery
	KindEvent   = runtimepkg.KindEvent

	PriorityEvent   = runtimepkg.PriorityEvent
	PriorityQuery   = runtimepkg.PriorityQuery
	PriorityCommand = runtimepkg.PriorityCommand

	HeaderCorrelationID = runtimepkg.HeaderCorrelationID
	HeaderPriority      = runtimepkg.HeaderPriority
	HeaderRetryPolicy   = runtimepkg.HeaderRetryPolicy

	CorrelationPending   = runtimepkg.CorrelationPending
	CorrelationCompleted = runtimepkg.CorrelationCompleted
	CorrelationFailed    = runtimepkg.CorrelationFailed

	PhasePreProcessing  = runtimepkg.PhasePreProcessing
	PhaseProcessing     = runtimepkg.PhaseProcessing
	PhasePostProcessing = runtimepkg.PhasePostProcessing

	RateLimitFail = runtimepkg.RateLimitFail
	RateLimitWait = runtimepkg.RateLimitWait

	ContributionLogging   = runtimepkg.ContributionLogging
	ContributionValidate  = runtimepkg.ContributionValidate
	ContributionCache     = runtimepkg.ContributionCache
	ContributionTracer    = runtimepkg.ContributionTracer
	ContributionMetrics   = runtimepkg.ContributionMetrics
	ContributionRateLimit = runtimepkg.ContributionRateLimit
	ContributionRetry     = runtimepkg.ContributionRetry
	ContributionRecoverer = runtimepkg.ContributionRecoverer
)

var (
	New           = runtimepkg.New
	DefaultConfig = configpkg.Default
	ConfigFromEnv = configpkg.FromEnv

	NewCommand = runtimepkg.NewCommand
	NewQuery   = runtimepkg.NewQuery
	NewEvent   = runtimepkg.NewEvent
	NewULID    = idspkg.NewULID

	WithIgnoreErrors = runtimepkg.WithIgnoreErrors

	First   = runtimepkg.First
	Last    = runtimepkg.Last
	Before  = runtimepkg.Before
	After   = runtimepkg.After
	Replace = runtimepkg.Replace
	Ordered = runtimepkg.Ordered

	DefaultContributions   = runtimepkg.DefaultContributions
	LoggingContribution    = runtimepkg.LoggingContribution
	ValidationContribution = runtimepkg.ValidationContribution
	CachingContribution    = runtimepkg.CachingContribution
	TracingContribution    = runtimepkg.TracingContribution
	MetricsContribution    = runtimepkg.MetricsContribution
	RateLimitContribution  = runtimepkg.RateLimitContribution
	RetryContribution      = runtimepkg.RetryContribution
	RecovererContribution  = runtimepkg.RecovererContribution

	NoRetry            = runtimepkg.NoRetry
	DefaultRetryPolicy = runtimepkg.DefaultRetryPolicy

	NewBridge = runtimepkg.NewBridge

	NewMemoryStore = cachepkg.NewMemoryStore
	NewRedisStore  = cachepkg.NewRedisStore

	NewSlogLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillLogger = loggingpkg.NewWatermillServiceLogger
	NewNopLogger       = loggingpkg.NewNopLogger

	ErrBusClosed        = errspkg.ErrBusClosed
	ErrHandlerRequired  = errspkg.ErrHandlerRequired
	ErrMessageRequired  = errspkg.ErrMessageRequired
	ErrTypeTagRequired  = errspkg.ErrTypeTagRequired
	ErrBehaviorRequired = errspkg.ErrBehaviorRequired
	ErrConfigRequired   = errspkg.ErrConfigRequired
	ErrRateLimited      = errspkg.ErrRateLimited

	BuildTransport = transportpkg.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
)
