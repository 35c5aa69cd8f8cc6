package display

import "fmt"

// Metrics is the size of the screen a photo is shown on.
type Metrics struct {
	WidthPx  int `json:"width_px"`
	HeightPx int `json:"height_px"`
}

// Valid reports whether both dimensions are positive.
func (m Metrics) Valid() bool {
	return m.WidthPx > 0 && m.HeightPx > 0
}

func (m Metrics) String() string {
	return fmt.Sprintf("%dx%d", m.WidthPx, m.HeightPx)
}

// Provider supplies the current screen metrics.
type Provider interface {
	Metrics() Metrics
}

// Static is a Provider with a fixed size (from configuration).
type Static Metrics

func (s Static) Metrics() Metrics { return Metrics(s) }

// Resolve returns override when it is valid, otherwise the provider's metrics.
func Resolve(p Provider, override Metrics) Metrics {
	if override.Valid() {
		return override
	}
	return p.Metrics()
}
