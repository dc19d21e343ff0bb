// Package main is the entrypoint of the binwatch bin monitor.
//
// It loads configuration, wires the sensor, indicators, network, SMS
// notifier, metrics and telemetry chosen by the *_DRIVER settings, and runs
// the monitor loop until SIGINT or SIGTERM. On exit both indicators are
// switched off and the MQTT connection is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binwatch/internal/alert"
	"binwatch/internal/config"
	"binwatch/internal/external"
	"binwatch/internal/fill"
	"binwatch/internal/hardware"
	"binwatch/internal/metrics"
	"binwatch/internal/monitor"
	"binwatch/internal/network"
	"binwatch/internal/notify"
	"binwatch/internal/sensor"
	"binwatch/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Bootstrap logger until the configured one is available.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 1
	}

	logger = newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel).With("env", cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("binwatch starting",
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"build_time", cfg.Build.BuildTime,
		"bin_height_cm", cfg.Bin.HeightCM,
		"threshold_percent", cfg.Bin.ThresholdPercent,
		"interval", cfg.Loop.Interval,
		"sensor_driver", cfg.Sensor.Driver,
		"indicator_driver", cfg.Indicators.Driver,
		"wifi_driver", cfg.WiFi.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close()

	if err := a.monitor.Run(ctx); err != nil {
		logger.Error("monitor exited", "error", err)
		return 1
	}
	return 0
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app holds the wired components and what must be released on exit.
type app struct {
	monitor   *monitor.Monitor
	notifier  *notify.Notifier
	normal    alert.Output
	full      alert.Output
	publisher telemetry.Publisher
	closers   []func() error
	logger    *slog.Logger
}

// ranger is the hardware echo source; it must be halted on exit.
type ranger interface {
	sensor.EchoSource
	Halt() error
}

var openRanger = func(trigger, echo string) (ranger, error) {
	return hardware.OpenRanger(trigger, echo)
}

// Close switches the indicators off and releases hardware and connections.
func (a *app) Close() {
	for _, o := range []alert.Output{a.normal, a.full} {
		if err := o.Set(false); err != nil {
			a.logger.Warn("failed to switch indicator off", "error", err)
		}
	}
	a.notifier.Wait()
	a.publisher.Close()
	a.release()
	a.logger.Info("binwatch stopped")
}

// release runs the registered closers in reverse order.
func (a *app) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("cleanup failed", "error", err)
		}
	}
	a.closers = nil
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	echo, err := buildEchoSource(cfg.Sensor, cfg.Bin, a)
	if err != nil {
		return nil, err
	}
	sampler := sensor.NewSampler(sensor.SamplerConfig{
		Source:  echo,
		Band:    sensor.Band{MinCM: cfg.Bin.MinDistanceCM, MaxCM: cfg.Bin.MaxDistanceCM},
		Timeout: cfg.Sensor.EchoTimeout,
		Logger:  logger.With("component", "sensor"),
	})

	a.normal, a.full, err = buildIndicators(cfg.Indicators, logger)
	if err != nil {
		return nil, err
	}

	connector := buildConnector(cfg.WiFi, logger)

	httpClient := external.NewHTTPClient(cfg.SMS.Timeout, cfg.SMS.InsecureSkipVerify)
	sms := external.NewSMSClient(
		// An open breaker probes again within one cycle, so each new
		// episode still gets its POST.
		external.NewBaseClient(httpClient, "circuitdigest-sms", cfg.SMS.UserAgent, cfg.Loop.Interval),
		external.SMSClientConfig{
			BaseURL:    cfg.SMS.BaseURL,
			TemplateID: cfg.SMS.TemplateID,
			APIKey:     cfg.SMS.APIKey,
			Logger:     logger.With("component", "sms"),
		},
	)
	a.notifier = notify.New(notify.Config{
		Recipient: cfg.SMS.Recipient,
		Label:     cfg.SMS.Label,
		Sender:    sms,
		Connector: connector,
		Logger:    logger.With("component", "notify"),
	})

	controller := alert.NewController(alert.ControllerConfig{
		Threshold: cfg.Bin.ThresholdPercent,
		Normal:    a.normal,
		Full:      a.full,
		Notifier:  a.notifier,
		Logger:    logger.With("component", "alert"),
	})

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.PushgatewayURL != "" {
		recorder = metrics.NewPromRecorder(metrics.PromConfig{
			PushgatewayURL: cfg.Metrics.PushgatewayURL,
			Job:            cfg.Metrics.Job,
			Instance:       cfg.Metrics.Instance,
			PushTimeout:    cfg.Metrics.PushTimeout,
		})
	}

	a.publisher = buildPublisher(ctx, cfg.Telemetry, logger)

	a.monitor = monitor.New(monitor.Config{
		Interval:   cfg.Loop.Interval,
		Tick:       cfg.Loop.Tick,
		Sensor:     sampler,
		Estimator:  fill.Estimator{HeightCM: cfg.Bin.HeightCM},
		Controller: controller,
		Connector:  connector,
		Recorder:   recorder,
		Publisher:  a.publisher,
		Logger:     logger.With("component", "monitor"),
	})
	return a, nil
}

func buildEchoSource(sc config.SensorConfig, bin config.BinConfig, a *app) (sensor.EchoSource, error) {
	switch sc.Driver {
	case config.DriverSim:
		return sensor.NewSimulatedBin(sensor.SimulatedBinConfig{
			HeightCM:     bin.HeightCM,
			CapCM:        float64(bin.HeightCM - bin.MinDistanceCM - 1),
			RatePerMin:   sc.SimRatePerMin,
			AutoEmpty:    sc.SimAutoEmpty,
			DropoutEvery: sc.SimDropoutEvery,
			JitterCM:     sc.SimJitterCM,
			Seed:         uint64(time.Now().UnixNano()),
		}), nil
	case config.DriverGPIO:
		r, err := openRanger(sc.TriggerPin, sc.EchoPin)
		if err != nil {
			return nil, fmt.Errorf("open ranger: %w", err)
		}
		a.closers = append(a.closers, r.Halt)
		return r, nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", sc.Driver)
	}
}

func buildIndicators(ic config.IndicatorConfig, logger *slog.Logger) (normal, full alert.Output, err error) {
	switch ic.Driver {
	case config.DriverLog:
		l := logger.With("component", "indicator")
		return hardware.NewLogLED("green", l), hardware.NewLogLED("red", l), nil
	case config.DriverGPIO:
		green, gErr := hardware.OpenLED(ic.GreenPin)
		red, rErr := hardware.OpenLED(ic.RedPin)
		if err := errors.Join(gErr, rErr); err != nil {
			return nil, nil, fmt.Errorf("open indicators: %w", err)
		}
		return green, red, nil
	default:
		return nil, nil, fmt.Errorf("unknown indicator driver %q", ic.Driver)
	}
}

func buildConnector(wc config.WiFiConfig, logger *slog.Logger) network.Connector {
	if wc.Driver != config.DriverNmcli {
		return network.Always{}
	}
	return network.NewWiFi(network.WiFiConfig{
		SSID:        wc.SSID,
		Password:    wc.Password,
		Interface:   wc.Interface,
		MaxAttempts: wc.MaxAttempts,
		RetryDelay:  wc.RetryDelay,
		Logger:      logger.With("component", "wifi"),
	})
}

// buildPublisher connects to the MQTT broker when one is configured. A broker
// that cannot be reached disables telemetry instead of stopping the monitor.
func buildPublisher(ctx context.Context, tc config.TelemetryConfig, logger *slog.Logger) telemetry.Publisher {
	if tc.BrokerURL == "" {
		return telemetry.Nop{}
	}
	p, err := telemetry.NewMQTTPublisher(ctx, telemetry.MQTTConfig{
		BrokerURL: tc.BrokerURL,
		Topic:     tc.Topic,
		ClientID:  tc.ClientID,
		Username:  tc.Username,
		Password:  tc.Password,
		Logger:    logger.With("component", "telemetry"),
	})
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		return telemetry.Nop{}
	}
	return p
}
