package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/capsense/internal/capsense"
	"github.com/sweeney/capsense/internal/config"
	"github.com/sweeney/capsense/internal/electrode"
	"github.com/sweeney/capsense/internal/status"
)

// device is what the poll loop needs from a Channel or an Array.
type device interface {
	capsense.Sensor
	Update() (int32, error)
	TuneBaseline(length time.Duration) error
	TuneThreshold(length time.Duration) error
	SetBaselineTune(d time.Duration)
	SetChargeDelay(d time.Duration)
	Baseline() uint16
	ProxRatio() uint8
	LocalSettings() capsense.LocalSettings
	ApplyLocalSettings(l capsense.LocalSettings)
}

// sensor is one configured button, slider or wheel.
type sensor struct {
	cfg   config.SensorConfig
	dev   device
	array *capsense.Array // nil for buttons

	// ok is false when the last Update failed. The pipeline state is left
	// untouched then, so the transitions of the previous poll must not be
	// reported again.
	ok bool
}

// watch adds the sensor to m, gated on the last Update succeeding.
func (s *sensor) watch(m *capsense.Monitor) {
	g := gated{Sensor: s.dev, ok: &s.ok}
	if s.array != nil {
		m.Watch(s.cfg.Name, gatedArray{gated: g, p: s.array})
		return
	}
	m.Watch(s.cfg.Name, g)
}

type gated struct {
	capsense.Sensor
	ok *bool
}

func (g gated) IsJustTouched() bool       { return *g.ok && g.Sensor.IsJustTouched() }
func (g gated) IsJustTouchReleased() bool { return *g.ok && g.Sensor.IsJustTouchReleased() }
func (g gated) IsJustProx() bool          { return *g.ok && g.Sensor.IsJustProx() }
func (g gated) IsJustProxReleased() bool  { return *g.ok && g.Sensor.IsJustProxReleased() }

type gatedArray struct {
	gated
	p capsense.Positioner
}

func (g gatedArray) Moved() bool     { return *g.ok && g.p.Moved() }
func (g gatedArray) Position() int32 { return g.p.Position() }
func (g gatedArray) Step() int32     { return g.p.Step() }

func (s *sensor) status() status.Sensor {
	st := status.Sensor{
		Name:      s.cfg.Name,
		Kind:      s.cfg.Kind,
		State:     s.dev.State(),
		Delta:     s.dev.Delta(),
		Baseline:  s.dev.Baseline(),
		ProxRatio: s.dev.ProxRatio(),
	}
	if s.array != nil {
		st.HasPosition = true
		st.Position = s.array.Position()
	}
	return st
}

// tune applies the charge delay and runs the startup calibration.
func (s *sensor) tune() error {
	if d := s.cfg.ChargeDelay(); d > 0 {
		s.dev.SetChargeDelay(d)
	}
	s.dev.SetBaselineTune(s.cfg.BaselineTune())

	if s.cfg.TuneThreshold {
		before := s.dev.LocalSettings()
		if err := s.dev.TuneThreshold(s.cfg.ThresholdTune()); err != nil {
			return fmt.Errorf("tune thresholds of %s: %w", s.cfg.Name, err)
		}
		l := s.dev.LocalSettings()
		if !ordered(l) {
			// Too little idle noise to scale from; every positive delta
			// would read as Prox.
			slog.Warn("tuned thresholds out of order, keeping configured ones", "sensor", s.cfg.Name,
				"touch", l.TouchThreshold, "touch_release", l.TouchReleaseThreshold,
				"prox", l.ProxThreshold, "prox_release", l.ProxReleaseThreshold)
			s.dev.ApplyLocalSettings(before)
			return nil
		}
		slog.Info("tuned thresholds", "sensor", s.cfg.Name,
			"touch", l.TouchThreshold, "touch_release", l.TouchReleaseThreshold,
			"prox", l.ProxThreshold, "prox_release", l.ProxReleaseThreshold)
		return nil
	}
	if err := s.dev.TuneBaseline(s.cfg.BaselineTune()); err != nil {
		return fmt.Errorf("tune baseline of %s: %w", s.cfg.Name, err)
	}
	slog.Info("tuned baseline", "sensor", s.cfg.Name, "baseline", s.dev.Baseline())
	return nil
}

// ordered reports whether touch > touch release > prox > prox release > 0.
func ordered(l capsense.LocalSettings) bool {
	return l.TouchThreshold > l.TouchReleaseThreshold &&
		l.TouchReleaseThreshold > l.ProxThreshold &&
		l.ProxThreshold > l.ProxReleaseThreshold &&
		l.ProxReleaseThreshold > 0
}

// hardware opens each sample source on first use so sensors share them.
type hardware struct {
	cfg   *config.Config
	clock capsense.Clock

	gpio    *electrode.GPIO
	mpr121  *electrode.MPR121
	serial  *electrode.SerialSource
	closers []io.Closer

	serialPort  io.Closer
	serialClose sync.Once
}

func newHardware(cfg *config.Config, clock capsense.Clock) *hardware {
	return &hardware{cfg: cfg, clock: clock}
}

// raw returns channel i of sensor s.
func (h *hardware) raw(s config.SensorConfig, i int) (capsense.RawChannel, error) {
	ch := s.Channels[i]
	switch s.Source {
	case config.SourceGPIO:
		if h.gpio == nil {
			g, err := electrode.OpenGPIO(h.cfg.GPIO.Chip)
			if err != nil {
				return nil, err
			}
			h.gpio = g
			h.closers = append(h.closers, g)
		}
		return h.gpio.Channel(s.SendPin, ch)

	case config.SourceMPR121:
		if h.mpr121 == nil {
			bus, err := electrode.OpenI2C(h.cfg.I2C.Device, h.cfg.I2C.Address)
			if err != nil {
				return nil, err
			}
			h.closers = append(h.closers, bus)
			dev, err := electrode.NewMPR121(bus, h.cfg.I2C.Electrodes)
			if err != nil {
				return nil, err
			}
			h.mpr121 = dev
		}
		return h.mpr121.Channel(ch)

	case config.SourceSerial:
		if h.serial == nil {
			src, port, err := electrode.OpenSerial(h.cfg.Serial.Port, h.cfg.Serial.Baud, h.cfg.Serial.Columns)
			if err != nil {
				return nil, err
			}
			h.serial = src
			h.serialPort = port
		}
		return h.serial.Channel(ch)

	case config.SourceSim:
		sim := h.cfg.Sim
		period := time.Duration(sim.PeriodMS) * time.Millisecond
		press := time.Duration(sim.PressMS) * time.Millisecond
		// Staggered presses sweep a finger across an array.
		offset := time.Duration(i) * press / time.Duration(len(s.Channels))
		return electrode.NewSimChannel(h.clock, sim.Base, sim.Amplitude, sim.Noise, period, press, offset), nil
	}
	return nil, fmt.Errorf("unknown source %q", s.Source)
}

// run streams the serial source, if one is open, until ctx is cancelled.
func (h *hardware) run(ctx context.Context) error {
	if h.serial == nil {
		return nil
	}
	// Closing the port is the only way to unblock the reader.
	go func() {
		<-ctx.Done()
		h.closeSerial()
	}()
	if err := h.serial.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serial source: %w", err)
	}
	return nil
}

func (h *hardware) closeSerial() error {
	var err error
	h.serialClose.Do(func() {
		if h.serialPort != nil {
			err = h.serialPort.Close()
		}
	})
	return err
}

// Close releases every opened source.
func (h *hardware) Close() error {
	var errs []error
	if err := h.closeSerial(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}

// buildSensors creates every configured sensor.
func buildSensors(cfg *config.Config, h *hardware) ([]*sensor, error) {
	g := cfg.Global.Settings()
	sensors := make([]*sensor, 0, len(cfg.Sensors))

	for _, sc := range cfg.Sensors {
		raws := make([]capsense.RawChannel, len(sc.Channels))
		for i := range sc.Channels {
			raw, err := h.raw(sc, i)
			if err != nil {
				return nil, fmt.Errorf("sensor %s channel %d: %w", sc.Name, sc.Channels[i], err)
			}
			raws[i] = raw
		}

		s := &sensor{cfg: sc, ok: true}
		l := sc.LocalSettings()
		switch sc.Kind {
		case config.KindButton:
			s.dev = capsense.NewChannel(raws[0], h.clock, g, l)
		case config.KindSlider, config.KindWheel:
			var (
				a   *capsense.Array
				err error
			)
			if sc.Kind == config.KindSlider {
				a, err = capsense.NewSlider(raws, h.clock, g, l)
			} else {
				a, err = capsense.NewWheel(raws, h.clock, g, l)
			}
			if err != nil {
				return nil, fmt.Errorf("sensor %s: %w", sc.Name, err)
			}
			s.dev = a
			s.array = a
		default:
			return nil, fmt.Errorf("sensor %s: unknown kind %q", sc.Name, sc.Kind)
		}
		sensors = append(sensors, s)
	}
	return sensors, nil
}
