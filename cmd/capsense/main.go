// Command capsense samples capacitive touch electrodes and publishes touch,
// proximity and position events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/capsense/internal/capsense"
	"github.com/sweeney/capsense/internal/config"
	"github.com/sweeney/capsense/internal/mqtt"
	"github.com/sweeney/capsense/internal/status"
	"github.com/sweeney/capsense/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults to a simulated button)")
	poll := flag.Duration("poll", 10*time.Millisecond, "Sensor polling interval")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	broker := flag.String("broker", "tcp://127.0.0.1:1883", "MQTT broker address")
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	logLevel := flag.String("log-level", "info", "Log level: error, warn, info, debug")
	printState := flag.Bool("print-state", false, "Tune, print the state of every sensor and exit")

	flag.Parse()

	// Only flags given on the command line override the file.
	var o config.FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "poll":
			o.Poll = poll
		case "heartbeat":
			o.Heartbeat = heartbeat
		case "broker":
			o.Broker = broker
		case "http":
			o.HTTPAddr = httpAddr
		case "log-level":
			o.LogLevel = logLevel
		}
	})

	cfg, err := loadConfig(*configPath, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	level, _ := config.ParseLogLevel(cfg.Logging.Level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(cfg, *printState); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the file (or the defaults), applies the flag overrides
// and validates the result.
func loadConfig(path string, o config.FlagOverrides) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(cfg config.Config, printState bool) error {
	clock := capsense.Clock(time.Now)

	hw := newHardware(&cfg, clock)
	defer func() {
		if err := hw.Close(); err != nil {
			slog.Warn("close hardware", "err", err)
		}
	}()

	sensors, err := buildSensors(&cfg, hw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// Streamed samples must be flowing before tuning reads them.
	g.Go(func() error { return hw.run(gctx) })
	if hw.serial != nil {
		if err := waitForSerial(gctx, hw, 5*time.Second); err != nil {
			cancel()
			g.Wait()
			return err
		}
	}

	for _, s := range sensors {
		if err := s.tune(); err != nil {
			cancel()
			g.Wait()
			return err
		}
	}

	if printState {
		err := printSensors(os.Stdout, sensors)
		cancel()
		g.Wait()
		return err
	}

	publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.BufferSize)
	if err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.Poll().Milliseconds(),
		DebounceMs:  cfg.Global.Settings().Debounce.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat().Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(statuses(sensors), capsense.EventCounts{})
	tracker.SetReady(true)
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		slog.Warn("failed to publish startup event", "err", err)
	} else {
		slog.Info("published startup event")
	}

	var sink eventSink
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		sink = srv
		g.Go(func() error {
			srv.Run(gctx)
			return nil
		})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
		slog.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	slog.Info("started",
		"poll", cfg.Poll(),
		"heartbeat", cfg.Heartbeat(),
		"broker", cfg.MQTT.Broker,
		"sensors", len(sensors))

	ticker := time.NewTicker(cfg.Poll())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		defer cancel()
		return runLoop(gctx, sensors, publisher, publisher, tracker, sink, cfg.Heartbeat(), time.Now, ticker.C, sigCh)
	})
	return g.Wait()
}

// eventSink receives every published event payload. The web server
// forwards them to websocket clients.
type eventSink interface {
	BroadcastEvent(payload []byte)
}

func runLoop(ctx context.Context, sensors []*sensor, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, sink eventSink, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	monitor := capsense.NewMonitor(now())
	for _, s := range sensors {
		s.watch(monitor)
	}

	shutdown := func(reason string) {
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		if tracker != nil {
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
		}
		if err := publisher.PublishSystem(event); err != nil {
			slog.Warn("failed to publish shutdown event", "err", err)
		} else {
			slog.Info("published shutdown event", "reason", reason)
		}
	}

	for {
		select {
		case s := <-sig:
			slog.Info("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-ctx.Done():
			// Another component failed.
			shutdown("ERROR")
			return nil

		case <-tick:
			t := now()
			for _, s := range sensors {
				s.ok = true
				if _, err := s.dev.Update(); err != nil {
					s.ok = false
					slog.Warn("sensor update failed", "sensor", s.cfg.Name, "err", err)
					if tracker != nil {
						tracker.AddReadError()
					}
				}
			}

			for _, event := range monitor.Process(t) {
				logEvent(event)
				if err := publisher.Publish(event); err != nil {
					slog.Warn("publish error", "sensor", event.Sensor, "event", event.Type, "err", err)
					// Don't crash on publish failure
				}
				if sink != nil {
					if payload, err := mqtt.FormatPayload(event); err == nil {
						sink.BroadcastEvent(payload)
					}
				}
			}

			// Update status tracker for HTTP and heartbeat consumers
			if tracker != nil {
				tracker.Update(statuses(sensors), monitor.EventCountsSnapshot())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			if hbData := monitor.CheckHeartbeat(t, heartbeat); hbData != nil {
				c := hbData.Counts
				slog.Info("heartbeat",
					"uptime", hbData.Uptime.Truncate(time.Second),
					"touch", c.Touch, "release", c.Release,
					"prox", c.Prox, "prox_release", c.ProxRelease, "move", c.Move)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					slog.Warn("heartbeat publish error", "err", err)
				}
			}
		}
	}
}

func logEvent(e capsense.Event) {
	if e.Type == capsense.EventMove {
		slog.Info("event", "sensor", e.Sensor, "type", e.Type, "position", e.Position, "step", e.Step)
		return
	}
	slog.Info("event", "sensor", e.Sensor, "type", e.Type, "state", e.State, "delta", e.Delta)
}

func statuses(sensors []*sensor) []status.Sensor {
	out := make([]status.Sensor, len(sensors))
	for i, s := range sensors {
		out[i] = s.status()
	}
	return out
}

// printSensors polls every sensor once and prints its state.
func printSensors(w io.Writer, sensors []*sensor) error {
	for _, s := range sensors {
		if _, err := s.dev.Update(); err != nil {
			return fmt.Errorf("update %s: %w", s.cfg.Name, err)
		}
		st := s.status()
		fmt.Fprintf(w, "%s (%s): state=%s delta=%d baseline=%d prox=%d",
			st.Name, st.Kind, st.State, st.Delta, st.Baseline, st.ProxRatio)
		if st.HasPosition {
			fmt.Fprintf(w, " position=%d", st.Position)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// waitForSerial blocks until the serial source has delivered a frame.
func waitForSerial(ctx context.Context, hw *hardware, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if frames, _ := hw.serial.Stats(); frames > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no frames from %s: %w", hw.cfg.Serial.Port, ctx.Err())
		case <-ticker.C:
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
