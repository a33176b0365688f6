// Package partitions negotiates how many parallel sub-tasks a processing unit
// wants against how many the host environment can actually run.
package partitions

import "github.com/pkg/errors"

// Option is a processing unit's suggestion for splitting its work. Produced
// by the unit's partition plea and consumed once per build.
type Option struct {
	Minimum int `json:"minimum"`
	Maximum int `json:"maximum"`
	Optimal int `json:"optimal"`
}

// DefaultOption is the suggestion used when a unit does not volunteer one.
func DefaultOption() Option {
	return Option{Minimum: 1, Maximum: 128, Optimal: 16}
}

func (o Option) Validate() error {
	if o.Minimum <= 0 {
		return errors.Errorf("partition option: minimum must be positive, got %d", o.Minimum)
	}
	if o.Minimum > o.Maximum {
		return errors.Errorf("partition option: minimum %d exceeds maximum %d", o.Minimum, o.Maximum)
	}
	return nil
}

// Negotiate resolves the worker count from the unit's suggestion and the
// environment's concurrency ceiling. The optimal count is capped by the
// environment, then clamped into [Minimum, Maximum]. A clamp that would be
// forced above Maximum means the negotiation failed; it is reported rather
// than silently proceeding with an out-of-range count.
func Negotiate(o Option, envCapacity int) (workerCount int, err error) {
	if err := o.Validate(); err != nil {
		return 0, err
	}
	if envCapacity <= 0 {
		return 0, errors.Errorf("environment concurrency ceiling must be positive, got %d", envCapacity)
	}

	workerCount = o.Optimal
	if envCapacity < workerCount {
		workerCount = envCapacity
	}
	if workerCount < o.Minimum {
		workerCount = o.Minimum
	}
	if workerCount > o.Maximum {
		return 0, errors.Errorf("negotiation failed: resolved worker count %d exceeds maximum %d", workerCount, o.Maximum)
	}
	return workerCount, nil
}
