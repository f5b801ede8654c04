// Package config loads gate-controller settings from flags, environment
// variables (GATE_ prefix) and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/gate-controller/internal/clock"
	"github.com/sweeney/gate-controller/internal/gate"
	"github.com/sweeney/gate-controller/internal/gpio"
)

// EnvPrefix prefixes environment overrides, e.g. GATE_BROKER or GATE_PIN_SCA.
const EnvPrefix = "GATE"

// Defaults.
const (
	DefaultBroker    = "tcp://192.168.1.200:1883"
	DefaultHTTPAddr  = ":80"
	DefaultLogLevel  = "info"
	DefaultHeartbeat = time.Minute
)

// Config holds the resolved daemon settings.
type Config struct {
	DeviceID     string
	Broker       string
	HTTPAddr     string
	LogLevel     string
	Heartbeat    time.Duration
	SamplePeriod time.Duration
	Pins         gpio.Pins
	Clock        Clock
	PrintState   bool

	// ButtonDebounce applies when Pins.Button is enabled.
	ButtonDebounce time.Duration

	// File is the config file that was read, if any.
	File string
}

// Clock configures wall clock step detection.
type Clock struct {
	Interval  time.Duration
	Threshold time.Duration
}

// Load parses args (without the program name) and resolves every setting.
// Precedence is flag, environment, config file, default.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("gate-controller", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.String("device-id", defaultDeviceID(), "Device id used as MQTT topic prefix")
	fs.String("broker", DefaultBroker, "MQTT broker address")
	fs.String("http", DefaultHTTPAddr, "HTTP status address (empty to disable)")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Duration("heartbeat", DefaultHeartbeat, "Status republish interval (0 to disable)")
	fs.Duration("sample-period", gate.DefaultSamplePeriod, "SCA sampling period")
	fs.String("chip", gpio.DefaultChip, "GPIO chip")
	fs.Int("pin-sca", gpio.DefaultPinSCA, "Line offset of the SCA input")
	fs.Int("pin-stop", gpio.DefaultPinStop, "Line offset of the STOP output")
	fs.Int("pin-pp", gpio.DefaultPinPP, "Line offset of the PP output")
	fs.Int("pin-button", gpio.DefaultPinButton, "Line offset of the user button (-1 to disable)")
	fs.Duration("button-debounce", gpio.DefaultButtonDebounce, "User button debounce period")
	fs.Duration("clock-interval", clock.DefaultInterval, "Wall clock check interval")
	fs.Duration("clock-threshold", clock.DefaultThreshold, "Wall clock step threshold")
	fs.Bool("print-state", false, "Print current SCA level and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	bindings := map[string]string{
		"device_id":       "device-id",
		"broker":          "broker",
		"http":            "http",
		"log_level":       "log-level",
		"heartbeat":       "heartbeat",
		"sample_period":   "sample-period",
		"chip":            "chip",
		"pin.sca":         "pin-sca",
		"pin.stop":        "pin-stop",
		"pin.pp":          "pin-pp",
		"pin.button":      "pin-button",
		"button_debounce": "button-debounce",
		"clock.interval":  "clock-interval",
		"clock.threshold": "clock-threshold",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, _ := fs.GetString("config")
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	printState, _ := fs.GetBool("print-state")
	cfg := Config{
		DeviceID:     v.GetString("device_id"),
		Broker:       v.GetString("broker"),
		HTTPAddr:     v.GetString("http"),
		LogLevel:     v.GetString("log_level"),
		Heartbeat:    v.GetDuration("heartbeat"),
		SamplePeriod: v.GetDuration("sample_period"),
		Pins: gpio.Pins{
			Chip:   v.GetString("chip"),
			SCA:    v.GetInt("pin.sca"),
			Stop:   v.GetInt("pin.stop"),
			PP:     v.GetInt("pin.pp"),
			Button: v.GetInt("pin.button"),
		},
		ButtonDebounce: v.GetDuration("button_debounce"),
		Clock: Clock{
			Interval:  v.GetDuration("clock.interval"),
			Threshold: v.GetDuration("clock.threshold"),
		},
		PrintState: printState,
		File:       file,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is empty"))
	}
	if c.SamplePeriod <= 0 {
		errs = append(errs, fmt.Errorf("sample_period must be positive, got %v", c.SamplePeriod))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.Clock.Interval <= 0 || c.Clock.Threshold <= 0 {
		errs = append(errs, errors.New("clock interval and threshold must be positive"))
	}
	p := c.Pins
	if p.SCA == p.Stop || p.SCA == p.PP || p.Stop == p.PP {
		errs = append(errs, fmt.Errorf("pins must be distinct: sca=%d stop=%d pp=%d", p.SCA, p.Stop, p.PP))
	}
	if p.Button >= 0 {
		if p.Button == p.SCA || p.Button == p.Stop || p.Button == p.PP {
			errs = append(errs, fmt.Errorf("button pin %d is already in use", p.Button))
		}
		if c.ButtonDebounce <= 0 {
			errs = append(errs, fmt.Errorf("button_debounce must be positive, got %v", c.ButtonDebounce))
		}
	}
	return errors.Join(errs...)
}

func defaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "gate"
	}
	return host
}
