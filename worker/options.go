package worker

import (
	"github.com/creasty/defaults"
)

type Options struct {
	// IntakeQueueLength bounds how many dispatched descriptors may sit on
	// the shared intake before Submit blocks.
	IntakeQueueLength int `default:"1000"`

	// ResultQueueLength bounds how many worker messages may await the
	// coordinator's drain loop.
	ResultQueueLength int `default:"1000"`

	// MaxMessageSize is the largest single protocol line a worker may send.
	MaxMessageSize int `default:"67108864"`
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
