// Package config defines the configuration of the binwatch monitor.
//
// Every tunable that used to be a compiled-in constant on the device (bin
// geometry, threshold, pins, WiFi credentials, SMS endpoint) is a field here.
// Configuration is loaded once at startup and is immutable thereafter; the
// defaults reproduce the stock bin so only secrets have to be supplied.
//
// Values are resolved via:
//
//	OS Environment (Highest) -> Dotenv File -> struct tag defaults (Lowest)
package config

import (
	"time"

	"binwatch/internal/types"
)

// SecretString is an alias for types.SecretString so callers can build a
// Config literal without importing types.
type SecretString = types.SecretString

// Driver names accepted by the *_DRIVER settings.
const (
	DriverGPIO  = "gpio"
	DriverSim   = "sim"
	DriverLog   = "log"
	DriverNmcli = "nmcli"
	DriverNone  = "none"
)

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"device" validate:"oneof=device sim dev"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	Bin        BinConfig
	Loop       LoopConfig
	Sensor     SensorConfig
	Indicators IndicatorConfig
	WiFi       WiFiConfig
	SMS        SMSConfig
	Metrics    MetricsConfig
	Telemetry  TelemetryConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// BinConfig describes the bin geometry and the alert threshold.
type BinConfig struct {
	HeightCM         int `envconfig:"BIN_HEIGHT_CM" default:"26" validate:"min=1,max=400"`
	ThresholdPercent int `envconfig:"FILL_THRESHOLD_PERCENT" default:"80" validate:"min=1,max=100"`
	// Readings must fall in (MinDistanceCM, MaxDistanceCM] to be valid.
	MinDistanceCM int `envconfig:"MIN_DISTANCE_CM" default:"2" validate:"min=0"`
	MaxDistanceCM int `envconfig:"MAX_DISTANCE_CM" default:"400" validate:"min=1,max=400,gtfield=MinDistanceCM"`
}

// LoopConfig controls cycle gating.
type LoopConfig struct {
	Interval time.Duration `envconfig:"CHECK_INTERVAL" default:"5s" validate:"min=100ms"`
	// Tick is how often the loop checks whether a cycle is due.
	Tick time.Duration `envconfig:"LOOP_TICK" default:"50ms" validate:"min=1ms,ltefield=Interval"`
}

// SensorConfig selects and wires the ultrasonic ranger.
type SensorConfig struct {
	Driver      string        `envconfig:"SENSOR_DRIVER" default:"gpio" validate:"oneof=gpio sim"`
	TriggerPin  string        `envconfig:"TRIGGER_PIN" default:"GPIO5" validate:"required"`
	EchoPin     string        `envconfig:"ECHO_PIN" default:"GPIO4" validate:"required"`
	EchoTimeout time.Duration `envconfig:"ECHO_TIMEOUT" default:"50ms" validate:"min=1ms,max=1s"`

	// Simulator settings, used when Driver is sim.
	SimRatePerMin   float64       `envconfig:"SIM_FILL_RATE" default:"2" validate:"min=0"`
	SimAutoEmpty    time.Duration `envconfig:"SIM_AUTO_EMPTY" default:"2m" validate:"min=0"`
	SimDropoutEvery int           `envconfig:"SIM_DROPOUT_EVERY" default:"7" validate:"min=0"`
	SimJitterCM     float64       `envconfig:"SIM_JITTER_CM" default:"0.5" validate:"min=0"`
}

// IndicatorConfig selects and wires the two status LEDs.
type IndicatorConfig struct {
	Driver   string `envconfig:"INDICATOR_DRIVER" default:"gpio" validate:"oneof=gpio log"`
	GreenPin string `envconfig:"GREEN_LED_PIN" default:"GPIO14" validate:"required"`
	RedPin   string `envconfig:"RED_LED_PIN" default:"GPIO12" validate:"required"`
}

// WiFiConfig holds the wireless association settings.
type WiFiConfig struct {
	Driver      string        `envconfig:"WIFI_DRIVER" default:"nmcli" validate:"oneof=nmcli none"`
	SSID        string        `envconfig:"WIFI_SSID" validate:"required_if=Driver nmcli"`
	Password    SecretString  `envconfig:"WIFI_PASSWORD"`
	Interface   string        `envconfig:"WIFI_INTERFACE"`
	MaxAttempts int           `envconfig:"WIFI_MAX_ATTEMPTS" default:"20" validate:"min=1"`
	RetryDelay  time.Duration `envconfig:"WIFI_RETRY_DELAY" default:"500ms" validate:"min=0"`
}

// SMSConfig holds the SMS gateway settings.
type SMSConfig struct {
	BaseURL    string       `envconfig:"SMS_BASE_URL" default:"https://www.circuitdigest.cloud/send_sms" validate:"required,url"`
	TemplateID string       `envconfig:"SMS_TEMPLATE_ID" default:"101" validate:"required"`
	APIKey     SecretString `envconfig:"SMS_API_KEY" validate:"required"`
	Recipient  string       `envconfig:"SMS_RECIPIENT" validate:"required,startswith=+,e164"`
	// Label is sent as var1 of the template.
	Label              string `envconfig:"SMS_LABEL" default:"Smart Bin" validate:"required"`
	InsecureSkipVerify bool   `envconfig:"SMS_INSECURE_SKIP_VERIFY" default:"true"`
	UserAgent          string `envconfig:"SMS_USER_AGENT" default:"binwatch/1.0"`
	// Timeout of zero leaves the request unbounded, matching the device.
	Timeout time.Duration `envconfig:"SMS_TIMEOUT" default:"0s" validate:"min=0"`
}

// MetricsConfig controls the Prometheus Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string        `envconfig:"PUSHGATEWAY_URL" validate:"omitempty,url"`
	Job            string        `envconfig:"METRICS_JOB" default:"binwatch" validate:"required"`
	Instance       string        `envconfig:"METRICS_INSTANCE"`
	PushTimeout    time.Duration `envconfig:"METRICS_PUSH_TIMEOUT" default:"1s" validate:"min=0"`
}

// TelemetryConfig controls the MQTT cycle report publisher.
type TelemetryConfig struct {
	BrokerURL string       `envconfig:"MQTT_BROKER_URL" validate:"omitempty,url"`
	Topic     string       `envconfig:"MQTT_TOPIC" default:"binwatch/cycle" validate:"required"`
	ClientID  string       `envconfig:"MQTT_CLIENT_ID" default:"binwatch" validate:"required"`
	Username  string       `envconfig:"MQTT_USERNAME"`
	Password  SecretString `envconfig:"MQTT_PASSWORD"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
