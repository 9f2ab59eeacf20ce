package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	EnableMCP       bool          `mapstructure:"enable_mcp"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"` // empty allows all
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// SMSConfig describes the modem link. Durations are given in milliseconds
// to match the deployed property files.
type SMSConfig struct {
	Port                string `mapstructure:"port"`
	Baud                int    `mapstructure:"baud"`
	CommandTimeoutMs    int    `mapstructure:"command_timeout_ms"`
	SendTimeoutMs       int    `mapstructure:"send_timeout_ms"`
	InterCommandDelayMs int    `mapstructure:"inter_command_delay_ms"`
	ReadPollMs          int    `mapstructure:"read_poll_ms"`
	ClubNumber          string `mapstructure:"club_number"`
	OperatorsFile       string `mapstructure:"operators_file"` // mcc_mnc.json
}

func (c SMSConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

func (c SMSConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMs) * time.Millisecond
}

func (c SMSConfig) InterCommandDelay() time.Duration {
	return time.Duration(c.InterCommandDelayMs) * time.Millisecond
}

func (c SMSConfig) ReadPoll() time.Duration {
	return time.Duration(c.ReadPollMs) * time.Millisecond
}

type QueueConfig struct {
	Capacity int    `mapstructure:"capacity"`
	Overflow string `mapstructure:"overflow"` // drop, block
}

type NotifyConfig struct {
	CustomerTemplate string `mapstructure:"customer_template"`
	ClubTemplate     string `mapstructure:"club_template"`
}

type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Platform   string `mapstructure:"platform"` // generic, slack, telegram
	ChannelID  string `mapstructure:"channel_id"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

var AppConfig Config

const (
	DefaultCustomerTemplate = "Rezervarea dumneavoastra a fost efectuata cu succes pentru intervalul {{.Start}} - {{.End}} in data de {{.Date}}. Veti avea de achitat suma de {{.Price}} RON."
	DefaultClubTemplate     = "{{.Customer}} a rezervat {{.Court}} in intervalul {{.Start}} - {{.End}} pentru data {{.Date}}."
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.enable_mcp", true)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "smsnotify.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("sms.port", "/dev/ttyUSB0")
	v.SetDefault("sms.baud", 115200)
	v.SetDefault("sms.command_timeout_ms", 4000)
	v.SetDefault("sms.send_timeout_ms", 20000)
	v.SetDefault("sms.inter_command_delay_ms", 100)
	v.SetDefault("sms.read_poll_ms", 100)
	v.SetDefault("sms.operators_file", "mcc_mnc.json")

	v.SetDefault("queue.capacity", 100)
	v.SetDefault("queue.overflow", "drop")

	v.SetDefault("notify.customer_template", DefaultCustomerTemplate)
	v.SetDefault("notify.club_template", DefaultClubTemplate)

	v.SetDefault("alert.platform", "generic")

	v.SetDefault("auth.token_ttl", "24h")
}

// LoadConfig reads config.yaml from the working directory, overlays the
// environment (SMS_PORT, QUEUE_CAPACITY, ...) and stores the result in
// AppConfig.
func LoadConfig() error {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit file. Unlike the default
// location, an explicit file must exist.
func LoadConfigFile(path string) error {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return fmt.Errorf("read %s: %w", path, err)
		}
		log.Printf("Warning: Config file not found, using defaults. Error: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	AppConfig = cfg
	log.Println("Configuration loaded successfully")
	return nil
}

// Validate rejects settings the modem link or queue cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SMS.Port == "" {
		errs = append(errs, errors.New("sms.port is required"))
	}
	if c.SMS.Baud <= 0 {
		errs = append(errs, fmt.Errorf("sms.baud must be positive, got %d", c.SMS.Baud))
	}
	if c.SMS.CommandTimeoutMs <= 0 {
		errs = append(errs, errors.New("sms.command_timeout_ms must be positive"))
	}
	if c.SMS.SendTimeoutMs <= 0 {
		errs = append(errs, errors.New("sms.send_timeout_ms must be positive"))
	}
	if c.SMS.InterCommandDelayMs < 0 {
		errs = append(errs, errors.New("sms.inter_command_delay_ms must not be negative"))
	}
	if c.Queue.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity))
	}
	switch c.Queue.Overflow {
	case "drop", "block":
	default:
		errs = append(errs, fmt.Errorf("queue.overflow must be drop or block, got %q", c.Queue.Overflow))
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}
