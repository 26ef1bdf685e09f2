package access

import "github.com/platinummonkey/groupaccess/pkg/cacheable"

// Outcome is the verdict of an access check
type Outcome int

const (
	Neutral Outcome = iota
	Allowed
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Forbidden:
		return "forbidden"
	}
	return "neutral"
}

// Result is an access verdict with the cacheability it was derived under
type Result struct {
	Outcome      Outcome
	Cacheability cacheable.Metadata
}

// IsAllowed reports whether access was granted
func (r Result) IsAllowed() bool { return r.Outcome == Allowed }

// IsForbidden reports whether access was refused
func (r Result) IsForbidden() bool { return r.Outcome == Forbidden }

// IsNeutral reports whether no opinion was formed
func (r Result) IsNeutral() bool { return r.Outcome == Neutral }

// CacheMetadata returns the cacheability of the result
func (r Result) CacheMetadata() cacheable.Metadata { return r.Cacheability }

func allowedIf(granted bool, meta cacheable.Metadata) Result {
	if granted {
		return Result{Outcome: Allowed, Cacheability: meta}
	}
	return Result{Outcome: Neutral, Cacheability: meta}
}

// Combine aggregates results of independent handlers: any allowed result
// allows, otherwise any forbidden result forbids, otherwise neutral. The
// cacheability of every result is merged since each one was consulted.
func Combine(results ...Result) Result {
	combined := Result{Outcome: Neutral, Cacheability: cacheable.New()}
	for _, r := range results {
		combined.Cacheability = combined.Cacheability.Merge(r.Cacheability)
		switch {
		case r.Outcome == Allowed:
			combined.Outcome = Allowed
		case r.Outcome == Forbidden && combined.Outcome != Allowed:
			combined.Outcome = Forbidden
		}
	}
	return combined
}
