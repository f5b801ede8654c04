// Command gate-controller tracks a Beninca gate through its SCA lamp contact,
// drives the STOP and PP inputs, and bridges both to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sweeney/gate-controller/internal/clock"
	"github.com/sweeney/gate-controller/internal/config"
	"github.com/sweeney/gate-controller/internal/gate"
	"github.com/sweeney/gate-controller/internal/gpio"
	"github.com/sweeney/gate-controller/internal/logger"
	"github.com/sweeney/gate-controller/internal/logic"
	"github.com/sweeney/gate-controller/internal/mqtt"
	"github.com/sweeney/gate-controller/internal/status"
	"github.com/sweeney/gate-controller/internal/web"
)

// piHelperEnv is written by pi-helper with the current network state.
const piHelperEnv = "/run/pi-helper.env"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	lines, err := gpio.NewLines(cfg.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	// Print state mode
	if cfg.PrintState {
		level, err := lines.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("SCA: %s\n", levelString(level))
		return nil
	}

	topics := mqtt.NewTopics(cfg.DeviceID)

	// Initialize status tracker (before MQTT so the connection flag has a home)
	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:       cfg.DeviceID,
		SamplePeriodMs: cfg.SamplePeriod.Milliseconds(),
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		Broker:         cfg.Broker,
		HTTPAddr:       cfg.HTTPAddr,
		PinSCA:         cfg.Pins.SCA,
		PinStop:        cfg.Pins.Stop,
		PinPP:          cfg.Pins.PP,
		PinButton:      cfg.Pins.Button,
	})
	if net := readNetworkInfo(piHelperEnv); net != nil {
		tracker.SetNetwork(net)
	}

	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:             cfg.Broker,
		ClientID:           "gate-controller-" + cfg.DeviceID,
		Topics:             topics,
		Logger:             log.Named("mqtt"),
		OnConnectionChange: tracker.SetMQTTConnected,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}

	var buttons *gpio.ButtonCounter
	if cfg.Pins.Button >= 0 {
		buttons = gpio.NewButtonCounter(cfg.ButtonDebounce, log.Named("button"))
		watch, err := gpio.WatchButton(cfg.Pins, buttons)
		if err != nil {
			return fmt.Errorf("init button: %w", err)
		}
		defer watch.Close()
		tracker.CountButtons(buttons.Count)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", zap.String("addr", cfg.HTTPAddr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	log.Info("started",
		zap.String("device_id", cfg.DeviceID),
		zap.String("broker", cfg.Broker),
		zap.Duration("sample_period", cfg.SamplePeriod),
		zap.Duration("heartbeat", cfg.Heartbeat),
		zap.Int("pin_sca", cfg.Pins.SCA),
		zap.Int("pin_stop", cfg.Pins.Stop),
		zap.Int("pin_pp", cfg.Pins.PP),
		zap.Int("pin_button", cfg.Pins.Button),
	)

	return serve(ctx, daemon{
		cfg:       cfg,
		topics:    topics,
		reader:    lines,
		stop:      lines.Stop(),
		pp:        lines.PP(),
		client:    client,
		tracker:   tracker,
		buttons:   buttons,
		clock:     clock.Wall,
		heartbeat: heartbeat,
		network:   func() *status.NetworkInfo { return readNetworkInfo(piHelperEnv) },
		log:       log,
	})
}

// daemon is everything serve needs from the outside world.
type daemon struct {
	cfg       config.Config
	topics    mqtt.Topics
	reader    gpio.Reader
	stop      gpio.Output
	pp        gpio.Output
	client    mqtt.Client
	tracker   *status.Tracker
	buttons   *gpio.ButtonCounter // nil without a button
	clock     logic.Clock
	heartbeat <-chan time.Time
	network   func() *status.NetworkInfo
	log       *zap.Logger
}

// serve runs the gate until ctx is cancelled. On return the outputs are low
// and the MQTT client is closed.
func serve(ctx context.Context, d daemon) error {
	log := d.log
	pub := mqtt.NewStatusPublisher(d.client, d.topics, log.Named("status"))
	if d.buttons != nil {
		pub.CountButtons(d.buttons.Count)
	}
	watcher := clock.NewWatcher(d.cfg.Clock.Interval, d.cfg.Clock.Threshold, log.Named("clock"))
	svc := gate.New(gate.Config{
		Clock:        d.clock,
		Stop:         d.stop,
		PP:           d.pp,
		Steps:        watcher,
		StepInterval: watcher.Interval(),
		OnStatus: func(st logic.Status) {
			d.tracker.Update(st)
			pub.Notify(st)
		},
		Logger: log.Named("gate"),
	})

	commander := mqtt.NewCommander(svc, d.client, d.topics, pub, log.Named("command"))
	if err := commander.Subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	sampler := gate.NewSampler(d.reader, d.cfg.SamplePeriod, log.Named("sca"))

	var wg sync.WaitGroup
	for _, fn := range []func(){
		func() { svc.Run(ctx) },
		func() { pub.Run(ctx) },
		func() { sampler.Run(ctx, svc.OnContact) },
	} {
		wg.Add(1)
		go func(fn func()) {
			defer wg.Done()
			fn()
		}(fn)
	}

	// Publish the startup status
	if st, err := svc.Status(ctx); err == nil {
		d.tracker.Update(st)
		pub.Notify(st)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			wg.Wait()
			if err := d.client.Close(); err != nil {
				log.Warn("mqtt close", zap.Error(err))
			}
			return nil

		case <-d.heartbeat:
			d.tracker.SetMQTTConnected(d.client.IsConnected())
			// Refresh network info for heartbeat
			if d.network != nil {
				if net := d.network(); net != nil {
					d.tracker.SetNetwork(net)
				}
			}
			log.Debug("heartbeat")
			pub.PublishNow()
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

// readNetworkInfo reads the pi-helper env file at path, falling back to the
// process environment when the file is missing or a key is absent.
func readNetworkInfo(path string) *status.NetworkInfo {
	file, err := godotenv.Read(path)
	if err != nil {
		file = nil
	}
	get := func(key string) string {
		if v, ok := file[key]; ok {
			return v
		}
		return os.Getenv(key)
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}

func levelString(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}
