package scheduler

// RetryKind selects how many times a failed task may be retried.
type RetryKind int

const (
	RetryNone RetryKind = iota
	RetryMaxRetries
	RetryInfinite
)

// RetryPolicy bounds how many times a task may be retried after a
// recoverable failure.
type RetryPolicy struct {
	Kind       RetryKind
	MaxRetries uint32 // meaningful only when Kind == RetryMaxRetries
}

// Allows reports whether another attempt is permitted given failures so far
// (the count after the failure that just occurred).
func (p RetryPolicy) Allows(failures uint32) bool {
	switch p.Kind {
	case RetryNone:
		return false
	case RetryInfinite:
		return true
	case RetryMaxRetries:
		return failures <= p.MaxRetries
	default:
		return false
	}
}

// BackoffKind selects how the delay before a retried task's next attempt
// grows with its failure count.
type BackoffKind int

const (
	BackoffNone BackoffKind = iota
	BackoffFixed
	BackoffVariable
	BackoffExponential
)

// BackoffPolicy computes the delay, in seconds, before a task's (failures+1)th
// attempt.
type BackoffPolicy struct {
	Kind       BackoffKind
	FixedSecs  uint64   // BackoffFixed
	StepsSecs  []uint64 // BackoffVariable
	BaseSecs   uint64   // BackoffExponential
	Multiplier uint64   // BackoffExponential
}

// Delay returns the wait, in seconds, before the next attempt after
// `failures` total failures. Arithmetic saturates at math.MaxUint64 rather
// than overflowing.
func (p BackoffPolicy) Delay(failures uint32) uint64 {
	switch p.Kind {
	case BackoffNone:
		return 0
	case BackoffFixed:
		return p.FixedSecs
	case BackoffVariable:
		if len(p.StepsSecs) == 0 {
			return 0
		}
		i := int(failures) - 1
		if i < 0 {
			i = 0
		}
		if i >= len(p.StepsSecs) {
			i = len(p.StepsSecs) - 1
		}
		return p.StepsSecs[i]
	case BackoffExponential:
		return saturatingExpBackoff(p.BaseSecs, p.Multiplier, failures)
	default:
		return 0
	}
}

func saturatingExpBackoff(base, multiplier uint64, failures uint32) uint64 {
	if failures == 0 {
		return base
	}
	result := base
	for i := uint32(0); i < failures-1; i++ {
		next := result * multiplier
		if multiplier != 0 && next/multiplier != result {
			return ^uint64(0) // saturate
		}
		result = next
	}
	return result
}
