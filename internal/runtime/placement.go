package runtime

// Behavior is a pluggable unit of cross-cutting logic wrapping message
// execution. Calling next.Proceed continues the chain; returning without
// calling it short-circuits everything downstream, including the handler.
type Behavior interface {
	Execute(ctx *Context, next Chain) (any, error)
}

// BehaviorFunc adapts a function to the Behavior interface.
type BehaviorFunc func(ctx *Context, next Chain) (any, error)

func (f BehaviorFunc) Execute(ctx *Context, next Chain) (any, error) {
	return f(ctx, next)
}

// Phase groups contributions into coarse pipeline stages.
type Phase int

const (
	PhasePreProcessing Phase = iota
	PhaseProcessing
	PhasePostProcessing
)

func (p Phase) String() string {
	switch p {
	case PhasePreProcessing:
		return "pre-processing"
	case PhaseProcessing:
		return "processing"
	case PhasePostProcessing:
		return "post-processing"
	default:
		return "unknown"
	}
}

// PlacementKind tags the placement variants.
type PlacementKind int

const (
	PlacementOrdered PlacementKind = iota
	PlacementFirst
	PlacementLast
	PlacementBefore
	PlacementAfter
	PlacementReplace
)

// Placement declares where a contribution belongs in the resolved chain.
// Order is meaningful only for Ordered; First and Last are absolute anchors.
type Placement struct {
	Kind   PlacementKind
	Target string
	Order  int
}

func First() Placement                { return Placement{Kind: PlacementFirst} }
func Last() Placement                 { return Placement{Kind: PlacementLast} }
func Before(target string) Placement  { return Placement{Kind: PlacementBefore, Target: target} }
func After(target string) Placement   { return Placement{Kind: PlacementAfter, Target: target} }
func Replace(target string) Placement { return Placement{Kind: PlacementReplace, Target: target} }
func Ordered(n int) Placement         { return Placement{Kind: PlacementOrdered, Order: n} }

// Contribution is an immutable descriptor binding a behavior to its chain
// position. IDs must be unique within a registered set; violations are caught
// at resolution time.
type Contribution struct {
	ID        string
	Name      string
	Behavior  Behavior
	Placement Placement
	Phase     Phase
	Priority  int

	// Disabled removes the contribution from every chain. EnabledWhen, when
	// set, is evaluated per dispatch; a false result skips the behavior for
	// that dispatch only.
	Disabled    bool
	EnabledWhen func(*Context) bool
}

// Active reports whether the contribution should run for the given dispatch.
func (c Contribution) Active(ctx *Context) bool {
	if c.Disabled {
		return false
	}
	if c.EnabledWhen != nil {
		return c.EnabledWhen(ctx)
	}
	return true
}
