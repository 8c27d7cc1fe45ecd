// Package carbonaware supplies the signal the pager uses to decide whether
// a page write's fsync should happen immediately or be batched (see
// SPEC_FULL.md §2.1). It has no opinion about the tree; it only reports
// whether "now" is a good time to force data to disk.
package carbonaware

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IntensitySignal is a point-in-time carbon-intensity reading.
type IntensitySignal struct {
	Region    string
	Timestamp time.Time
	Value     float64
	IsLow     bool
}

// IntensityProvider reports the current carbon intensity for a region.
type IntensityProvider interface {
	GetCurrentIntensity(region string) (IntensitySignal, error)
}

// MockProvider is a manually-controlled IntensityProvider, useful for tests
// and demos where there is no real carbon API to call.
type MockProvider struct {
	mu     sync.RWMutex
	signal IntensitySignal
	region string
	log    *zap.Logger
}

// NewMockProvider returns a MockProvider that starts out reporting low
// intensity for region.
func NewMockProvider(region string, log *zap.Logger) *MockProvider {
	if log == nil {
		log = zap.NewNop()
	}
	p := &MockProvider{
		region: region,
		signal: IntensitySignal{Region: region, Timestamp: time.Now(), Value: 50.0, IsLow: true},
		log:    log,
	}
	p.log.Info("carbonaware: mock provider initialized", zap.String("region", region), zap.Bool("low", true))
	return p
}

// GetCurrentIntensity implements IntensityProvider.
func (p *MockProvider) GetCurrentIntensity(region string) (IntensitySignal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if region != p.region {
		return IntensitySignal{}, fmt.Errorf("carbonaware: provider configured for %q, queried for %q", p.region, region)
	}
	sig := p.signal
	sig.Timestamp = time.Now()
	return sig, nil
}

// SetIntensity allows a caller (CLI flag, test) to force the mock signal.
func (p *MockProvider) SetIntensity(isLow bool, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signal.IsLow = isLow
	p.signal.Value = value
	p.signal.Timestamp = time.Now()
	p.log.Info("carbonaware: intensity set", zap.Bool("low", isLow), zap.Float64("value", value))
}

// AlwaysLow is the degenerate provider used when carbon-aware fsync
// scheduling is disabled: every write is treated as a good time to fsync.
type AlwaysLow struct{ Region string }

// GetCurrentIntensity implements IntensityProvider.
func (a AlwaysLow) GetCurrentIntensity(region string) (IntensitySignal, error) {
	return IntensitySignal{Region: region, Timestamp: time.Now(), Value: 0, IsLow: true}, nil
}
