// Command warning-panel drives roadside warning lights: hazard events from the
// detector (over MQTT or the HTTP controls) start and stop independently timed
// blinking on GPIO output lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/warning-panel/internal/gpio"
	"github.com/sweeney/warning-panel/internal/hazard"
	"github.com/sweeney/warning-panel/internal/logging"
	"github.com/sweeney/warning-panel/internal/mqtt"
	"github.com/sweeney/warning-panel/internal/panel"
	"github.com/sweeney/warning-panel/internal/status"
	"github.com/sweeney/warning-panel/internal/web"
	"go.uber.org/zap"
)

var version = "dev"

// flushInterval is how often pending presence changes are checked against
// the debounce period.
const flushInterval = 100 * time.Millisecond

// config is the validated command line.
type config struct {
	Channels  []int
	GPIO      gpio.Options
	Period    time.Duration
	Broker    string
	Debounce  time.Duration
	Heartbeat time.Duration
	HTTPAddr  string
	Log       logging.Config
}

// channelList collects -channels values; the flag may repeat and each value
// may hold a comma-separated list.
type channelList []int

func (c *channelList) String() string {
	parts := make([]string, len(*c))
	for i, id := range *c {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func (c *channelList) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("channel %q: not a number", part)
		}
		if id <= 0 {
			return fmt.Errorf("channel %d: must be a positive GPIO number", id)
		}
		*c = append(*c, id)
	}
	return nil
}

func main() {
	var channels channelList
	fs := flag.CommandLine
	fs.Var(&channels, "channels", "GPIO output channels, comma-separated or repeated (default 5)")
	enabled := fs.Bool("gpio", true, "Drive real GPIO (false logs pin changes only)")
	driver := fs.String("gpio-driver", gpio.DriverCdev, "GPIO driver: cdev or rpio")
	chip := fs.String("gpio-chip", gpio.DefaultChip, "GPIO character device chip (cdev driver)")
	period := fs.Duration("period", panel.DefaultPeriod, "Full blink period")
	level := fs.String("v", "info", "Log level: debug, info, warning, error")
	logFormat := fs.String("log-format", "console", "Log format: console or json")
	logFile := fs.String("log-file", "", "Also write logs to this rotating file")
	broker := fs.String("broker", "", "MQTT broker address (empty to disable)")
	debounce := fs.Duration("debounce", 500*time.Millisecond, "Debounce for raw presence samples")
	heartbeat := fs.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", "", "HTTP status address (empty to disable)")
	showVersion := fs.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println("warning-panel", version)
		return
	}

	cfg := config{
		Channels:  channels,
		GPIO:      gpio.Options{Enabled: *enabled, Driver: *driver, Chip: *chip},
		Period:    *period,
		Broker:    *broker,
		Debounce:  *debounce,
		Heartbeat: *heartbeat,
		HTTPAddr:  *httpAddr,
		Log:       logging.Config{Level: *level, Format: *logFormat, File: *logFile},
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []int{5}
	}
	if err := validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning-panel: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning-panel: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func validate(cfg config) error {
	if len(cfg.Channels) == 0 {
		return errors.New("no channels")
	}
	for _, id := range cfg.Channels {
		if id <= 0 {
			return fmt.Errorf("channel %d: must be a positive GPIO number", id)
		}
	}
	if cfg.Period <= 0 {
		return fmt.Errorf("period %v: must be positive", cfg.Period)
	}
	if cfg.Debounce < 0 {
		return fmt.Errorf("debounce %v: must not be negative", cfg.Debounce)
	}
	if cfg.Heartbeat < 0 {
		return fmt.Errorf("heartbeat %v: must not be negative", cfg.Heartbeat)
	}
	if cfg.GPIO.Enabled && cfg.GPIO.Driver != gpio.DriverCdev && cfg.GPIO.Driver != gpio.DriverRpio {
		return fmt.Errorf("gpio driver %q: want %s or %s", cfg.GPIO.Driver, gpio.DriverCdev, gpio.DriverRpio)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func channelIDs(ids []int) []panel.ChannelID {
	out := make([]panel.ChannelID, len(ids))
	for i, id := range ids {
		out[i] = panel.ChannelID(id)
	}
	return out
}

func run(cfg config, log *zap.Logger) error {
	out, err := gpio.Open(cfg.GPIO, log)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Error("close gpio", zap.Error(err))
		}
	}()

	driver := cfg.GPIO.Driver
	if !cfg.GPIO.Enabled {
		driver = gpio.DriverDisabled
	}
	tracker := status.NewTracker(time.Now(), status.Config{
		Channels:    cfg.Channels,
		PeriodMs:    cfg.Period.Milliseconds(),
		DebounceMs:  cfg.Debounce.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Driver:      driver,
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})

	transitions := make(chan panel.Transition, transitionQueueSize(len(cfg.Channels)))
	obs := &forwarder{tracker: tracker, out: transitions, log: log}
	p := panel.New(out, panel.Config{Period: cfg.Period}, log, obs)
	if err := p.Create(channelIDs(cfg.Channels)...); err != nil {
		p.DestroyAll()
		return fmt.Errorf("create channels: %w", err)
	}
	if err := p.Start(); err != nil {
		return fmt.Errorf("start panel: %w", err)
	}

	commands := make(chan mqtt.Command, 64)
	var publisher mqtt.Publisher = offlinePublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Broker != "" {
		client, err := mqtt.NewRealClient(mqtt.Options{
			Broker:             cfg.Broker,
			OnCommand:          commandSink(commands, log),
			OnConnectionChange: tracker.SetMQTTConnected,
		}, log)
		if err != nil {
			shutdownPanel(p, log)
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = client, client
	}
	defer publisher.Close()

	// Publish startup event with full status snapshot
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Warn("publish startup event", zap.Error(err))
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, p, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", zap.String("addr", cfg.HTTPAddr))
	}

	log.Info("started",
		zap.Ints("channels", cfg.Channels),
		zap.Duration("period", cfg.Period),
		zap.String("gpio", driver),
		zap.String("broker", cfg.Broker),
		zap.Duration("debounce", cfg.Debounce),
		zap.Duration("heartbeat", cfg.Heartbeat),
		zap.String("version", version))

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	loopErr := runLoop(loop{
		panel:       p,
		publisher:   publisher,
		mqttStatus:  mqttStatus,
		tracker:     tracker,
		debouncer:   hazard.NewDebouncer(cfg.Debounce, time.Now()),
		heartbeat:   cfg.Heartbeat,
		now:         time.Now,
		tick:        ticker.C,
		sig:         sigCh,
		transitions: transitions,
		commands:    commands,
		log:         log,
	})

	shutdownPanel(p, log)
	publishPending(transitions, publisher, log)
	return loopErr
}

// shutdownPanel stops every channel and releases the machines. All pins are
// low afterwards, even if some stop actions faulted.
func shutdownPanel(p *panel.Panel, log *zap.Logger) {
	if err := p.Stop(); err != nil {
		log.Error("stop panel", zap.Error(err))
	}
	if err := p.DestroyAll(); err != nil {
		log.Error("destroy channels", zap.Error(err))
	}
	log.Info("all channels stopped")
}

// transitionQueueSize leaves room for a final stop transition and a pending
// signal transition on every channel, so shutdown never drops a STOPPED event.
func transitionQueueSize(channels int) int {
	return 64 + 2*channels
}

// publishPending forwards transitions queued by the final stop.
func publishPending(transitions <-chan panel.Transition, publisher mqtt.Publisher, log *zap.Logger) {
	for {
		select {
		case tr := <-transitions:
			if err := publisher.PublishTransition(tr); err != nil {
				log.Warn("publish transition", zap.Error(err))
			}
		default:
			return
		}
	}
}

// commandSink hands MQTT commands to the main loop without blocking the
// paho goroutine.
func commandSink(commands chan<- mqtt.Command, log *zap.Logger) func(mqtt.Command) {
	return func(cmd mqtt.Command) {
		select {
		case commands <- cmd:
		default:
			log.Warn("command queue full, dropping command", zap.Ints("channels", cmd.Channels))
		}
	}
}

// forwarder is the panel observer. It runs on the dispatcher goroutine, so
// it only records into the tracker and hands transitions off for publishing.
type forwarder struct {
	tracker *status.Tracker
	out     chan<- panel.Transition
	log     *zap.Logger
}

func (f *forwarder) Transitioned(tr panel.Transition) {
	f.tracker.Record(tr)
	select {
	case f.out <- tr:
	default:
		f.log.Warn("transition queue full, not publishing", zap.Int("channel", int(tr.Channel)), zap.Stringer("to", tr.To))
	}
}

func (f *forwarder) BlinkFaulted(id panel.ChannelID, err error) {
	f.tracker.RecordFault(id, err)
}

// offlinePublisher stands in when no broker is configured.
type offlinePublisher struct{}

func (offlinePublisher) PublishTransition(panel.Transition) error { return nil }
func (offlinePublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (offlinePublisher) Close() error { return nil }

// loop holds everything runLoop reads from.
type loop struct {
	panel       *panel.Panel
	publisher   mqtt.Publisher
	mqttStatus  mqtt.ConnectionStatus
	tracker     *status.Tracker
	debouncer   *hazard.Debouncer
	heartbeat   time.Duration
	now         func() time.Time
	tick        <-chan time.Time
	sig         <-chan os.Signal
	transitions <-chan panel.Transition
	commands    <-chan mqtt.Command
	log         *zap.Logger
}

func runLoop(l loop) error {
	for {
		select {
		case s := <-l.sig:
			l.log.Info("shutting down", zap.Stringer("signal", s))
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: l.statusEvent("SHUTDOWN", signalName),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				l.log.Warn("publish shutdown event", zap.Error(err))
			}
			return nil

		case tr := <-l.transitions:
			fields := []zap.Field{
				zap.Int("channel", int(tr.Channel)),
				zap.Stringer("trigger", tr.Trigger),
				zap.Stringer("from", tr.From),
				zap.Stringer("to", tr.To),
			}
			if tr.Err != nil {
				l.log.Error("transition with hardware fault", append(fields, zap.Error(tr.Err))...)
			} else {
				l.log.Info("transition", fields...)
			}
			if err := l.publisher.PublishTransition(tr); err != nil {
				// Don't crash on publish failure
				l.log.Warn("publish transition", zap.Error(err))
			}

		case cmd := <-l.commands:
			l.handleCommand(cmd)

		case <-l.tick:
			t := l.now()
			for _, e := range l.debouncer.Flush(t) {
				l.applyEdge(e)
			}

			if hb := l.debouncer.CheckHeartbeat(t, l.heartbeat); hb != nil {
				l.log.Info("heartbeat", zap.Duration("uptime", hb.Uptime))
				event := mqtt.SystemEvent{
					Timestamp:  hb.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: l.statusEvent("HEARTBEAT", ""),
				}
				if err := l.publisher.PublishSystem(event); err != nil {
					l.log.Warn("publish heartbeat", zap.Error(err))
				}
			}
		}
	}
}

func (l loop) handleCommand(cmd mqtt.Command) {
	ids := channelIDs(cmd.Channels)
	switch {
	case cmd.Present != nil:
		t := l.now()
		for _, id := range cmd.Channels {
			if e := l.debouncer.Process(hazard.Presence{Channel: id, Present: *cmd.Present, Time: t}); e != nil {
				l.applyEdge(*e)
			}
		}
	case cmd.Event == mqtt.CommandSignal:
		l.panel.Signal(ids...)
	case cmd.Event == mqtt.CommandEndSignal:
		l.panel.EndSignal(ids...)
	}
}

func (l loop) applyEdge(e hazard.Edge) {
	l.log.Debug("hazard edge", zap.Int("channel", e.Channel), zap.String("edge", string(e.Type)))
	switch e.Type {
	case hazard.EdgeSignal:
		l.panel.Signal(panel.ChannelID(e.Channel))
	case hazard.EdgeEndSignal:
		l.panel.EndSignal(panel.ChannelID(e.Channel))
	}
}

// statusEvent refreshes the tracker from the panel and formats a full
// status snapshot for a system event.
func (l loop) statusEvent(event, reason string) []byte {
	if l.tracker == nil {
		return nil
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	l.tracker.Sync(l.panel.Channels())
	return status.FormatStatusEvent(l.tracker.Snapshot(), event, reason)
}
