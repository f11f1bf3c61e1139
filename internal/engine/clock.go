package engine

import "time"

// Clock is the injected time source; engines never read the wall clock
// directly so deadline checks and expiry sweeps stay deterministic in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }
