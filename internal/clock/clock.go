package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Provide(NewSystemClock)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() Clock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
