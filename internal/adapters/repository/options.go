package repository

import "time"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	clock func() time.Time
}

func newOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the source of record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}
