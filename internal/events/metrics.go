package events

import "github.com/SLAMon/SLAMon/pkg/telemetry"

// MetricsListener mirrors the connection state into the Prometheus gauge.
type MetricsListener struct {
	NopListener
}

func (MetricsListener) ConnectionStateChanged(s State) {
	telemetry.AgentConnectionState.Set(float64(s))
}
