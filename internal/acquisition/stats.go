package acquisition

import "sync/atomic"

// Stats counts what the loop has done since the process started.
type Stats struct {
	Samples        uint64 `json:"samples"`
	Malformed      uint64 `json:"malformed"`
	NoData         uint64 `json:"no_data"`
	Windows        uint64 `json:"windows"`
	ShapeErrors    uint64 `json:"shape_errors"`
	ModelErrors    uint64 `json:"model_errors"`
	Panics         uint64 `json:"panics"`
	Classified     uint64 `json:"classified"`
	Dispatches     uint64 `json:"dispatches"`
	DispatchErrors uint64 `json:"dispatch_errors"`
}

type counters struct {
	samples, malformed, noData, windows   atomic.Uint64
	shapeErrors, modelErrors, panics      atomic.Uint64
	classified, dispatches, dispatchError atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Samples:        c.samples.Load(),
		Malformed:      c.malformed.Load(),
		NoData:         c.noData.Load(),
		Windows:        c.windows.Load(),
		ShapeErrors:    c.shapeErrors.Load(),
		ModelErrors:    c.modelErrors.Load(),
		Panics:         c.panics.Load(),
		Classified:     c.classified.Load(),
		Dispatches:     c.dispatches.Load(),
		DispatchErrors: c.dispatchError.Load(),
	}
}
