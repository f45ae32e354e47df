// Command key-timer debounces push-button keys on GPIO, measures how long each
// press was held and blinks the key's LED for that long once per second.
// Press and release events are published to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/key-timer/internal/config"
	"github.com/sweeney/key-timer/internal/discovery"
	"github.com/sweeney/key-timer/internal/feedback"
	"github.com/sweeney/key-timer/internal/gpio"
	"github.com/sweeney/key-timer/internal/keys"
	"github.com/sweeney/key-timer/internal/mqtt"
	"github.com/sweeney/key-timer/internal/status"
	"github.com/sweeney/key-timer/internal/tick"
	"github.com/sweeney/key-timer/internal/web"
)

// eventQueueSize bounds the hand-off from the polling goroutine to the
// publisher. Events beyond it are dropped rather than stalling the poll.
const eventQueueSize = 64

func main() {
	configPath := flag.String("config", config.DefaultPath, "YAML config file (missing file means defaults)")
	flag.String("broker", "", "MQTT broker address (overrides config)")
	flag.String("http", "", "HTTP status address, empty string disables (overrides config)")
	flag.Duration("heartbeat", 0, "Heartbeat interval, 0 disables (overrides config)")
	flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	printState := flag.Bool("print-state", false, "Print current key state and exit")

	flag.Parse()

	cfg, found, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: load config: %v", err)
	}
	if err := applyFlags(cfg, flag.CommandLine); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if !found {
		log.Infof("config file %s does not exist, using defaults", *configPath)
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags overlays the command-line flags that were explicitly set onto
// cfg and revalidates it.
func applyFlags(cfg *config.Config, fs *flag.FlagSet) error {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = f.Value.String()
		case "http":
			cfg.HTTP.Listen = f.Value.String()
		case "heartbeat":
			if g, ok := f.Value.(flag.Getter); ok {
				if d, ok := g.Get().(time.Duration); ok {
					cfg.Heartbeat = d
				}
			}
		case "log-level":
			cfg.Log.Level = f.Value.String()
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	return nil
}

func setupLogging(lc config.LogConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	if lc.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func run(cfg *config.Config, printState bool) error {
	inputs, outputs := cfg.Pins()
	lines, err := gpio.NewRealLines(cfg.GPIO.Chip, inputs, outputs)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	if printState {
		return printKeys(os.Stdout, lines, cfg.Names())
	}

	store, err := keys.NewStore(len(cfg.Keys))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	bootID := uuid.NewString()
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "key-timer-" + bootID[:8]
	}

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, clientID)
	defer publisher.Close()

	events := make(chan keys.Event, eventQueueSize)
	clock := tick.NewSystemClock()
	engine := keys.NewEngine(store, lines, clock, queueEvents(events))
	coords := feedback.NewAll(store.Indices(), store, lines, clock)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), bootID, statusConfig(cfg), store, engine)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	refreshMQTT(tracker, publisher)
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warnf("failed to publish startup event: %v", err)
	} else {
		log.Info("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Listen != "" {
		srv := web.New(cfg.HTTP.Listen, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTP.Listen)

		if cfg.MDNS.Enabled {
			adv := discovery.NewAdvertiser()
			info := discovery.Info{
				Instance: cfg.MDNS.Instance,
				Listen:   cfg.HTTP.Listen,
				Keys:     store.Len(),
				BootID:   bootID,
			}
			if err := adv.Advertise(info); err != nil {
				log.Warnf("mdns: %v", err)
			} else {
				defer adv.Stop()
				log.Infof("mdns: advertising %q as %s", info.Instance, discovery.ServiceType)
			}
		}
	} else if cfg.MDNS.Enabled {
		log.Warn("mdns: enabled but http server is disabled, not advertising")
	}

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	log.Infof("started: keys=%d poll=%dms cycle=%dms broker=%s heartbeat=%v",
		store.Len(), keys.PollPeriod, feedback.CyclePeriod, cfg.MQTT.Broker, cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	activities := []func(context.Context) error{engine.Run}
	for _, c := range coords {
		activities = append(activities, c.Run)
	}
	return runLoop(activities, publisher, publisher, tracker, cfg.Names(), events, time.Now, heartbeat, sigCh)
}

// queueEvents returns an engine handler that hands events to the main loop
// without blocking the poll.
func queueEvents(events chan<- keys.Event) keys.Handler {
	return func(ev keys.Event) {
		select {
		case events <- ev:
		default:
			log.WithField("key", int(ev.Key)).Warnf("event queue full, dropping %s", ev.Type)
		}
	}
}

// runLoop supervises the polling and feedback activities and publishes what
// they produce until a signal arrives or an activity fails.
func runLoop(activities []func(context.Context) error, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, names []string, events <-chan keys.Event, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, activity := range activities {
		g.Go(func() error { return activity(gctx) })
	}

	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			cancel()
			err := g.Wait()
			drainEvents(events, publisher, mqttStatus, tracker, names, now)
			publishShutdown(publisher, mqttStatus, tracker, now(), signalName(s))
			return err

		case <-gctx.Done():
			err := g.Wait()
			log.Errorf("activity stopped: %v", err)
			drainEvents(events, publisher, mqttStatus, tracker, names, now)
			publishShutdown(publisher, mqttStatus, tracker, now(), "ERROR")
			return err

		case ev := <-events:
			publishEvent(publisher, mqttStatus, tracker, names, ev, now())

		case <-heartbeat:
			publishHeartbeat(publisher, mqttStatus, tracker, now())
		}
	}
}

func drainEvents(events <-chan keys.Event, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, names []string, now func() time.Time) {
	for {
		select {
		case ev := <-events:
			publishEvent(publisher, mqttStatus, tracker, names, ev, now())
		default:
			return
		}
	}
}

func publishEvent(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, names []string, ev keys.Event, at time.Time) {
	name := keyName(names, ev.Key)
	fields := log.Fields{"key": int(ev.Key), "name": name, "event": ev.Type}
	if ev.Type == keys.EventRelease && ev.Duration != tick.Invalid {
		fields["duration"] = ev.Duration.Duration()
	}
	log.WithFields(fields).Info("event")

	if err := publisher.Publish(mqtt.KeyEvent{Timestamp: at, Name: name, Event: ev}); err != nil {
		log.Warnf("publish error: %v", err)
		// Don't crash on publish failure
	}
	if tracker != nil {
		tracker.RecordEvent(ev, at)
		refreshMQTT(tracker, mqttStatus)
	}
}

func publishHeartbeat(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, at time.Time) {
	hbEvent := mqtt.SystemEvent{
		Timestamp: at,
		Event:     "HEARTBEAT",
	}
	if tracker != nil {
		refreshMQTT(tracker, mqttStatus)
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			tracker.SetNetwork(net)
		}
		snap := tracker.Snapshot()
		var presses, releases uint64
		for _, k := range snap.Keys {
			presses += k.Counts.Presses
			releases += k.Counts.Releases
		}
		log.Debugf("heartbeat: uptime=%v presses=%d releases=%d", snap.Uptime().Truncate(time.Second), presses, releases)
		hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
	}
	if err := publisher.PublishSystem(hbEvent); err != nil {
		log.Warnf("heartbeat publish error: %v", err)
	}
}

func publishShutdown(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, at time.Time, reason string) {
	event := mqtt.SystemEvent{
		Timestamp: at,
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		refreshMQTT(tracker, mqttStatus)
		snap := tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Warnf("failed to publish shutdown event: %v", err)
	} else {
		log.Info("published shutdown event")
	}
}

// refreshMQTT copies the publisher's connection state into the tracker.
func refreshMQTT(tracker *status.Tracker, mqttStatus mqtt.ConnectionStatus) {
	if mqttStatus == nil {
		return
	}
	tracker.SetMQTTConnected(mqttStatus.IsConnected())
	tracker.SetMQTTBuffered(mqttStatus.Buffered())
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func keyName(names []string, i keys.Index) string {
	if int(i) < len(names) {
		return names[i]
	}
	return fmt.Sprintf("key%d", i)
}

func statusConfig(cfg *config.Config) status.Config {
	sc := status.Config{
		PollMs:      int64(keys.PollPeriod),
		CycleMs:     int64(feedback.CyclePeriod),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Listen,
	}
	for _, k := range cfg.Keys {
		sc.Keys = append(sc.Keys, status.KeyConfig{Name: k.Name, Pin: k.Pin, LED: k.LED, Mirror: k.Mirror})
	}
	return sc
}

func printKeys(w io.Writer, r gpio.Reader, names []string) error {
	for i := range names {
		pressed, err := r.ReadLine(keys.Index(i))
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Fprintf(w, "%s: %s\n", names[i], stateString(pressed))
	}
	return nil
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

func stateString(pressed bool) string {
	if pressed {
		return keys.StatePressed.String()
	}
	return keys.StateReleased.String()
}
