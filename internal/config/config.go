// Package config loads the YAML configuration of the capsense daemon.
//
// The file is the primary configuration surface; flags only override a few
// top-level values. Defaults and validation live here so the rest of the
// code can assume a well-formed config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/capsense/internal/capsense"
)

// Sensor kinds.
const (
	KindButton = "button"
	KindSlider = "slider"
	KindWheel  = "wheel"
)

// Sample sources.
const (
	SourceGPIO   = "gpio"
	SourceMPR121 = "mpr121"
	SourceSerial = "serial"
	SourceSim    = "sim"
)

// Config is the top-level YAML configuration.
type Config struct {
	PollMS      int `yaml:"poll_ms"`
	HeartbeatMS int `yaml:"heartbeat_ms"`

	// Pipeline settings shared by every sensor
	Global GlobalConfig `yaml:"global"`

	Sensors []SensorConfig `yaml:"sensors"`

	MQTT   MQTTConfig   `yaml:"mqtt"`
	HTTP   HTTPConfig   `yaml:"http"`
	GPIO   GPIOConfig   `yaml:"gpio"`
	I2C    I2CConfig    `yaml:"i2c"`
	Serial SerialConfig `yaml:"serial"`
	Sim    SimConfig    `yaml:"sim"`

	Logging LoggingConfig `yaml:"logging"`
}

// GlobalConfig maps onto capsense.GlobalSettings with YAML-friendly types.
type GlobalConfig struct {
	Samples             uint8 `yaml:"samples"`
	Divider             uint8 `yaml:"divider"`
	ExpWeight           int   `yaml:"exp_weight"`
	DebounceMS          int   `yaml:"debounce_ms"`
	NoiseDelta          int32 `yaml:"noise_delta"`
	NoiseIncrement      int   `yaml:"noise_increment"`
	NoiseCountRisingMS  int   `yaml:"noise_count_rising_ms"`
	NoiseCountFallingMS int   `yaml:"noise_count_falling_ms"`
}

// SensorConfig describes one button, slider or wheel.
type SensorConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Source string `yaml:"source"`

	// Channels are the sense pins (gpio), electrode numbers (mpr121) or
	// columns (serial) of the sensor, in position order. For sim only the
	// count matters.
	Channels []int `yaml:"channels"`
	// SendPin is the gpio pin charging every electrode of the sensor.
	SendPin int `yaml:"send_pin,omitempty"`

	// Thresholds; zero values take the defaults. Ignored when
	// TuneThreshold is set.
	Touch        int32 `yaml:"touch,omitempty"`
	TouchRelease int32 `yaml:"touch_release,omitempty"`
	Prox         int32 `yaml:"prox,omitempty"`
	ProxRelease  int32 `yaml:"prox_release,omitempty"`

	// ResetDelayMS retunes the baseline after a detection has lasted this
	// long. Unset takes the default for the kind; 0 disables.
	ResetDelayMS *int `yaml:"reset_delay_ms,omitempty"`

	ChargeDelayUS int `yaml:"charge_delay_us,omitempty"`

	// TuneThreshold derives the thresholds from the idle noise at startup.
	TuneThreshold   bool `yaml:"tune_threshold,omitempty"`
	BaselineTuneMS  int  `yaml:"baseline_tune_ms,omitempty"`
	ThresholdTuneMS int  `yaml:"threshold_tune_ms,omitempty"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	// BufferSize is the number of events kept while disconnected.
	BufferSize int `yaml:"buffer_size"`
}

type HTTPConfig struct {
	// Addr is the status server address; empty disables it.
	Addr string `yaml:"addr"`
}

type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

type I2CConfig struct {
	Device     string `yaml:"device"`
	Address    uint16 `yaml:"address"`
	Electrodes int    `yaml:"electrodes"`
}

type SerialConfig struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	Columns int    `yaml:"columns"`
}

// SimConfig shapes the synthetic electrodes of sim sensors.
type SimConfig struct {
	Base      int16 `yaml:"base"`
	Amplitude int16 `yaml:"amplitude"`
	Noise     int16 `yaml:"noise"`
	PeriodMS  int   `yaml:"period_ms"`
	PressMS   int   `yaml:"press_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a fully-populated Config with defaults: a single simulated
// button, so the daemon runs without hardware.
func Default() Config {
	g := capsense.DefaultGlobalSettings()
	cfg := Config{
		PollMS:      10,
		HeartbeatMS: int((15 * time.Minute).Milliseconds()),
		Global: GlobalConfig{
			Samples:             g.Samples,
			Divider:             g.Divider,
			ExpWeight:           int(g.ExpWeight),
			DebounceMS:          int(g.Debounce.Milliseconds()),
			NoiseDelta:          g.NoiseDelta,
			NoiseIncrement:      int(g.NoiseIncrement),
			NoiseCountRisingMS:  int(g.NoiseCountRising.Milliseconds()),
			NoiseCountFallingMS: int(g.NoiseCountFalling.Milliseconds()),
		},
		Sensors: []SensorConfig{
			{Name: "button0", Kind: KindButton, Source: SourceSim, Channels: []int{0}},
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://127.0.0.1:1883",
			ClientID:   "capsense",
			BufferSize: 1000,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
		},
		I2C: I2CConfig{
			Device:     "/dev/i2c-1",
			Address:    0x5A,
			Electrodes: 12,
		},
		Serial: SerialConfig{
			Baud: 115200,
		},
		Sim: SimConfig{
			Base:      200,
			Amplitude: 120,
			Noise:     2,
			PeriodMS:  4000,
			PressMS:   1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
	cfg.fillSensorDefaults()
	return cfg
}

// Load reads and parses a YAML config file on top of the defaults.
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
// A file that lists sensors replaces the default sensor list.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML document on top of the defaults.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	cfg.Sensors = nil

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments are allowed after the document.
	if err := dec.Decode(new(yaml.Node)); err == nil {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	if cfg.Sensors == nil {
		cfg.Sensors = Default().Sensors
	}
	cfg.fillSensorDefaults()
	return cfg, nil
}

// fillSensorDefaults sets the zero thresholds, tune windows and reset delays
// of every sensor.
func (c *Config) fillSensorDefaults() {
	l := capsense.DefaultLocalSettings()
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Touch == 0 {
			s.Touch = l.TouchThreshold
		}
		if s.TouchRelease == 0 {
			s.TouchRelease = l.TouchReleaseThreshold
		}
		if s.Prox == 0 {
			s.Prox = l.ProxThreshold
		}
		if s.ProxRelease == 0 {
			s.ProxRelease = l.ProxReleaseThreshold
		}
		if s.ResetDelayMS == nil {
			d := l.ResetDelay
			if s.Kind != KindButton {
				d = capsense.DefaultArrayResetDelay
			}
			v := int(d.Milliseconds())
			s.ResetDelayMS = &v
		}
		if s.BaselineTuneMS == 0 {
			d := capsense.DefaultBaselineTune
			if s.Kind != KindButton {
				d = capsense.DefaultArrayBaselineTune
			}
			s.BaselineTuneMS = int(d.Milliseconds())
		}
		if s.ThresholdTuneMS == 0 {
			s.ThresholdTuneMS = int(capsense.DefaultThresholdTune.Milliseconds())
		}
	}
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Each override is only applied if its pointer is non-nil, even when it
// points at a zero value.
type FlagOverrides struct {
	Poll      *time.Duration
	Heartbeat *time.Duration
	Broker    *string
	HTTPAddr  *string
	LogLevel  *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Poll != nil {
		cfg.PollMS = int(o.Poll.Milliseconds())
	}
	if o.Heartbeat != nil {
		cfg.HeartbeatMS = int(o.Heartbeat.Milliseconds())
	}
	if o.Broker != nil {
		cfg.MQTT.Broker = *o.Broker
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.PollMS <= 0 {
		return errors.New("poll_ms must be > 0")
	}
	if c.HeartbeatMS < 0 {
		return errors.New("heartbeat_ms must be >= 0")
	}

	g := c.Global
	if g.Samples > 12 {
		return errors.New("global.samples must be between 0 and 12")
	}
	if g.Divider > 16 {
		return errors.New("global.divider must be between 0 and 16")
	}
	if g.ExpWeight < 1 || g.ExpWeight > 255 {
		return errors.New("global.exp_weight must be between 1 and 255")
	}
	if g.DebounceMS < 0 || g.NoiseCountRisingMS < 0 || g.NoiseCountFallingMS < 0 {
		return errors.New("global durations must be >= 0")
	}
	if g.NoiseDelta < 0 {
		return errors.New("global.noise_delta must be >= 0")
	}
	if g.NoiseIncrement < 0 || g.NoiseIncrement > 0xffff {
		return errors.New("global.noise_increment must be between 0 and 65535")
	}

	if len(c.Sensors) == 0 {
		return errors.New("sensors must not be empty")
	}
	names := make(map[string]bool)
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Name == "" {
			return fmt.Errorf("sensors[%d].name is empty", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sensors[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if err := c.validateSensor(s); err != nil {
			return fmt.Errorf("sensor %q: %w", s.Name, err)
		}
	}
	if err := c.validateGPIOPins(); err != nil {
		return err
	}

	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker must not be empty")
	}
	if c.MQTT.BufferSize <= 0 {
		return errors.New("mqtt.buffer_size must be > 0")
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) validateSensor(s *SensorConfig) error {
	n := len(s.Channels)
	switch s.Kind {
	case KindButton:
		if n != 1 {
			return fmt.Errorf("a button takes 1 channel, got %d", n)
		}
	case KindSlider:
		if n < 2 || n > 6 {
			return fmt.Errorf("a slider takes 2 to 6 channels, got %d", n)
		}
	case KindWheel:
		if n != 3 {
			return fmt.Errorf("a wheel takes 3 channels, got %d", n)
		}
	default:
		return fmt.Errorf("kind must be %q, %q or %q", KindButton, KindSlider, KindWheel)
	}

	switch s.Source {
	case SourceGPIO:
		if s.SendPin < 0 {
			return errors.New("send_pin must be >= 0")
		}
		for _, p := range s.Channels {
			if p < 0 {
				return fmt.Errorf("channel pin %d must be >= 0", p)
			}
			if p == s.SendPin {
				return fmt.Errorf("channel pin %d is also the send pin", p)
			}
		}
	case SourceMPR121:
		for _, e := range s.Channels {
			if e < 0 || e >= c.I2C.Electrodes {
				return fmt.Errorf("electrode %d outside i2c.electrodes (%d)", e, c.I2C.Electrodes)
			}
		}
	case SourceSerial:
		if c.Serial.Port == "" {
			return errors.New("serial.port must be set for serial sensors")
		}
		for _, col := range s.Channels {
			if col < 0 || col >= c.Serial.Columns {
				return fmt.Errorf("column %d outside serial.columns (%d)", col, c.Serial.Columns)
			}
		}
	case SourceSim:
		if c.Sim.PeriodMS <= 0 || c.Sim.PressMS <= 0 || c.Sim.PressMS >= c.Sim.PeriodMS {
			return errors.New("sim requires 0 < press_ms < period_ms")
		}
	default:
		return fmt.Errorf("source must be %q, %q, %q or %q", SourceGPIO, SourceMPR121, SourceSerial, SourceSim)
	}

	if !s.TuneThreshold {
		if !(s.Touch > s.TouchRelease && s.TouchRelease > s.Prox && s.Prox > s.ProxRelease && s.ProxRelease > 0) {
			return fmt.Errorf("thresholds must satisfy touch > touch_release > prox > prox_release > 0, got %d/%d/%d/%d",
				s.Touch, s.TouchRelease, s.Prox, s.ProxRelease)
		}
	}
	if s.ResetDelayMS != nil && *s.ResetDelayMS < 0 {
		return errors.New("reset_delay_ms must be >= 0")
	}
	if s.ChargeDelayUS < 0 {
		return errors.New("charge_delay_us must be >= 0")
	}
	if s.BaselineTuneMS < 0 || s.ThresholdTuneMS < 0 {
		return errors.New("tune durations must be >= 0")
	}
	return nil
}

// validateGPIOPins checks pin roles across every gpio sensor. A send pin
// may charge any number of electrodes, but a sense pin belongs to exactly
// one electrode and is never driven.
func (c *Config) validateGPIOPins() error {
	send := make(map[int]string)
	sense := make(map[int]string)
	for _, s := range c.Sensors {
		if s.Source != SourceGPIO {
			continue
		}
		send[s.SendPin] = s.Name
	}
	for _, s := range c.Sensors {
		if s.Source != SourceGPIO {
			continue
		}
		for _, p := range s.Channels {
			if owner, ok := sense[p]; ok {
				return fmt.Errorf("sensor %q: sense pin %d is already sensed by %q", s.Name, p, owner)
			}
			if owner, ok := send[p]; ok {
				return fmt.Errorf("sensor %q: sense pin %d is the send pin of %q", s.Name, p, owner)
			}
			sense[p] = s.Name
		}
	}
	return nil
}

// Poll returns the polling interval.
func (c *Config) Poll() time.Duration { return ms(c.PollMS) }

// Heartbeat returns the heartbeat interval; 0 disables heartbeats.
func (c *Config) Heartbeat() time.Duration { return ms(c.HeartbeatMS) }

// Settings converts the global section into pipeline settings.
func (g GlobalConfig) Settings() capsense.GlobalSettings {
	return capsense.GlobalSettings{
		Samples:           g.Samples,
		Divider:           g.Divider,
		ExpWeight:         uint8(g.ExpWeight),
		Debounce:          ms(g.DebounceMS),
		NoiseDelta:        g.NoiseDelta,
		NoiseIncrement:    uint16(g.NoiseIncrement),
		NoiseCountRising:  ms(g.NoiseCountRisingMS),
		NoiseCountFalling: ms(g.NoiseCountFallingMS),
	}
}

// LocalSettings converts the sensor thresholds into pipeline settings.
func (s SensorConfig) LocalSettings() capsense.LocalSettings {
	l := capsense.LocalSettings{
		TouchThreshold:        s.Touch,
		TouchReleaseThreshold: s.TouchRelease,
		ProxThreshold:         s.Prox,
		ProxReleaseThreshold:  s.ProxRelease,
	}
	if s.ResetDelayMS != nil {
		l.ResetDelay = ms(*s.ResetDelayMS)
	}
	return l
}

// ChargeDelay returns the configured charge delay, 0 when unset.
func (s SensorConfig) ChargeDelay() time.Duration {
	return time.Duration(s.ChargeDelayUS) * time.Microsecond
}

// BaselineTune returns the baseline tuning window.
func (s SensorConfig) BaselineTune() time.Duration { return ms(s.BaselineTuneMS) }

// ThresholdTune returns the threshold tuning window.
func (s SensorConfig) ThresholdTune() time.Duration { return ms(s.ThresholdTuneMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// ParseLogLevel converts error, warn, info or debug into a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
