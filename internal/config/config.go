package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	LogLevel   string        `mapstructure:"log_level"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	RouterWait time.Duration `mapstructure:"router_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	RateLimit  RateLimit     `mapstructure:"rate_limit"`
	Media      Media         `mapstructure:"media"`
}

type RateLimit struct {
	CreateRoom int           `mapstructure:"create_room"`
	Interval   time.Duration `mapstructure:"interval"`
}

type Media struct {
	Engine                          string        `mapstructure:"engine"`
	NumWorkers                      int           `mapstructure:"num_workers"`
	RTCMinPort                      uint16        `mapstructure:"rtc_min_port"`
	RTCMaxPort                      uint16        `mapstructure:"rtc_max_port"`
	AnnouncedIPs                    []string      `mapstructure:"announced_ips"`
	ICEServers                      []string      `mapstructure:"ice_servers"`
	MaxIncomingBitrate              uint32        `mapstructure:"max_incoming_bitrate"`
	InitialAvailableOutgoingBitrate uint32        `mapstructure:"initial_available_outgoing_bitrate"`
	WorkerExitDelay                 time.Duration `mapstructure:"worker_exit_delay"`
	Codecs                          []Codec       `mapstructure:"codecs"`
}

// Codec is one router media codec. An empty list selects the engine
// defaults.
type Codec struct {
	Kind       string            `mapstructure:"kind"`
	MimeType   string            `mapstructure:"mime_type"`
	ClockRate  uint32            `mapstructure:"clock_rate"`
	Channels   uint16            `mapstructure:"channels"`
	Parameters map[string]string `mapstructure:"parameters"`
}

var ErrInvalidConfig = errors.New("invalid config")

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("engine", cfg.Media.Engine).
		Int("workers", cfg.Media.NumWorkers).
		Msg("config ready")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("router_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rate_limit.create_room", 5)
	v.SetDefault("rate_limit.interval", "1m")
	v.SetDefault("media.engine", "pion")
	v.SetDefault("media.num_workers", 1)
	v.SetDefault("media.rtc_min_port", 40000)
	v.SetDefault("media.rtc_max_port", 49999)
	v.SetDefault("media.announced_ips", []string{})
	v.SetDefault("media.ice_servers", []string{})
	v.SetDefault("media.max_incoming_bitrate", 1500000)
	v.SetDefault("media.initial_available_outgoing_bitrate", 1000000)
	v.SetDefault("media.worker_exit_delay", "2s")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		cfg.Secret = uuid.NewString()
		log.Warn().Str("module", "config").Msg("secret not set, sessions will not survive a restart")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Media.NumWorkers < 1 {
		return fmt.Errorf("%w: media.num_workers must be positive", ErrInvalidConfig)
	}
	if c.Media.RTCMinPort > c.Media.RTCMaxPort {
		return fmt.Errorf("%w: media.rtc_min_port above rtc_max_port", ErrInvalidConfig)
	}
	for _, codec := range c.Media.Codecs {
		if !domain.MediaKind(codec.Kind).Valid() {
			return fmt.Errorf("%w: codec %s has kind %q", ErrInvalidConfig, codec.MimeType, codec.Kind)
		}
	}
	return nil
}

// RouterCodecs converts the configured codecs for the media engine.
func (m Media) RouterCodecs() []domain.RtpCodecCapability {
	out := make([]domain.RtpCodecCapability, 0, len(m.Codecs))
	for _, c := range m.Codecs {
		out = append(out, domain.RtpCodecCapability{
			Kind:       domain.MediaKind(c.Kind),
			MimeType:   c.MimeType,
			ClockRate:  c.ClockRate,
			Channels:   c.Channels,
			Parameters: c.Parameters,
		})
	}
	return out
}
