package daemon

import (
	"fmt"
	"time"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
	"github.com/msageha/craftbridge/internal/session/sim"
)

// DriverSim is the in-process world used for dry runs and tests.
const DriverSim = "sim"

// NewDriver returns the session driver named by cfg.Driver.
func NewDriver(cfg model.SessionConfig) (session.Driver, error) {
	switch cfg.Driver {
	case "", DriverSim:
		return sim.NewDriver(sim.NewWorld(), sim.Options{
			Pathfinder: true,
			PathDelay:  500 * time.Millisecond,
			DigDelay:   250 * time.Millisecond,
		}), nil
	default:
		return nil, fmt.Errorf("unknown session driver %q", cfg.Driver)
	}
}
