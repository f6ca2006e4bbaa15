package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewRelicApp wraps the New Relic application
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application. Without a license key the wrapper
// is a no-op, so callers never branch on whether monitoring is configured.
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr.enabled
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.Shutdown(timeout)
}

// Lifecycle helpers

// RecordRideSubmitted records a new ride request
func (nr *NewRelicApp) RecordRideSubmitted(rideID string) {
	nr.RecordCustomEvent("RideSubmitted", map[string]interface{}{
		"ride_id":   rideID,
		"timestamp": time.Now().Unix(),
	})
}

// RecordClaimConflict counts claims that lost the compare-and-swap race
func (nr *NewRelicApp) RecordClaimConflict() {
	nr.RecordCustomMetric("custom/matching/claim_conflict", 1)
}

// RecordClaimLatency records how long a claim took end to end
func (nr *NewRelicApp) RecordClaimLatency(latencyMs float64) {
	nr.RecordCustomMetric("custom/matching/claim_latency_ms", latencyMs)
}

// RecordPendingPoolSize records the size of the pending pool
func (nr *NewRelicApp) RecordPendingPoolSize(size int) {
	nr.RecordCustomMetric("custom/matching/pending_pool_size", float64(size))
}
