// Package status provides a thread-safe status tracker for the capsense daemon.
// It is read by the HTTP and websocket handlers and by heartbeat publishing.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/capsense/internal/capsense"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Sensor is the state of one sensor after the last poll.
type Sensor struct {
	Name      string
	Kind      string // button, slider, wheel
	State     capsense.State
	Delta     int32
	Baseline  uint16
	ProxRatio uint8
	// HasPosition is set for sliders and wheels.
	HasPosition bool
	Position    int32
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; Sensors is copied out of the tracker.
type Snapshot struct {
	Sensors       []Sensor
	Ready         bool // sensors tuned and polling
	Counts        capsense.EventCounts
	StartTime     time.Time
	Now           time.Time
	Polls         uint64
	ReadErrors    uint64
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Sensor returns the sensor with the given name.
func (s Snapshot) Sensor(name string) (Sensor, bool) {
	for _, sn := range s.Sensors {
		if sn.Name == name {
			return sn, true
		}
	}
	return Sensor{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the sensor states and event counts of the last poll.
// Called from runLoop on every tick.
func (t *Tracker) Update(sensors []Sensor, counts capsense.EventCounts) {
	t.mu.Lock()
	t.snap.Sensors = append(t.snap.Sensors[:0], sensors...)
	t.snap.Counts = counts
	t.snap.Polls++
	t.mu.Unlock()
}

// AddReadError counts a failed sensor update.
func (t *Tracker) AddReadError() {
	t.mu.Lock()
	t.snap.ReadErrors++
	t.mu.Unlock()
}

// SetReady marks the sensors as tuned.
func (t *Tracker) SetReady(ready bool) {
	t.mu.Lock()
	t.snap.Ready = ready
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Sensors = append([]Sensor(nil), t.snap.Sensors...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
