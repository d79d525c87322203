package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	UseHTTPS bool   `mapstructure:"use_https"`
	SSLCert  string `mapstructure:"ssl_cert"`
	SSLKey   string `mapstructure:"ssl_key"`
	Secret   string `mapstructure:"secret"`
}

type CodecConfig struct {
	Kind        string `mapstructure:"kind"`
	MimeType    string `mapstructure:"mime_type"`
	PayloadType uint8  `mapstructure:"payload_type"`
	ClockRate   uint32 `mapstructure:"clock_rate"`
}

type SFUConfig struct {
	ListenIP    string        `mapstructure:"listen_ip"`
	AnnouncedIP string        `mapstructure:"announced_ip"`
	RTCMinPort  uint16        `mapstructure:"rtc_min_port"`
	RTCMaxPort  uint16        `mapstructure:"rtc_max_port"`
	Codecs      []CodecConfig `mapstructure:"codecs"`
}

// RecordingConfig is the fixed local sink the recording branch feeds.
type RecordingConfig struct {
	IP       string `mapstructure:"ip"`
	Port     int    `mapstructure:"port"`
	RTCPPort int    `mapstructure:"rtcp_port"`
	SDPDir   string `mapstructure:"sdp_dir"`
}

type AnalysisConfig struct {
	Workers       int      `mapstructure:"workers"`
	WorkerCommand []string `mapstructure:"worker_command"`
	Delimiter     string   `mapstructure:"delimiter"`
}

type TranscoderConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	OutputSize string `mapstructure:"output_size"`
	FPS        int    `mapstructure:"fps"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	SFU        SFUConfig        `mapstructure:"sfu"`
	Recording  RecordingConfig  `mapstructure:"recording"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Transcoder TranscoderConfig `mapstructure:"transcoder"`
}

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

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.SFU.Codecs) == 0 {
		cfg.SFU.Codecs = []CodecConfig{{
			Kind:        "video",
			MimeType:    "video/VP8",
			PayloadType: 97,
			ClockRate:   90000,
		}}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.use_https", false)
	v.SetDefault("server.secret", "inveritas")

	v.SetDefault("sfu.listen_ip", "127.0.0.1")
	v.SetDefault("sfu.rtc_min_port", 10000)
	v.SetDefault("sfu.rtc_max_port", 10100)

	v.SetDefault("recording.ip", "127.0.0.1")
	v.SetDefault("recording.port", 5006)
	v.SetDefault("recording.rtcp_port", 5007)
	v.SetDefault("recording.sdp_dir", "tmp/sdp")

	v.SetDefault("analysis.workers", 6)
	v.SetDefault("analysis.worker_command", []string{"python3", "engine/detector.py"})
	v.SetDefault("analysis.delimiter", "mjpeg")

	v.SetDefault("transcoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcoder.output_size", "320x240")
	v.SetDefault("transcoder.fps", 10)
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.Server.UseHTTPS {
		if _, err := os.Stat(c.Server.SSLCert); err != nil {
			return fmt.Errorf("ssl cert %q: %w", c.Server.SSLCert, err)
		}
		if _, err := os.Stat(c.Server.SSLKey); err != nil {
			return fmt.Errorf("ssl key %q: %w", c.Server.SSLKey, err)
		}
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be >= 1, got %d", c.Analysis.Workers)
	}
	if c.SFU.RTCMinPort > c.SFU.RTCMaxPort {
		return fmt.Errorf("sfu rtc port range inverted: %d > %d", c.SFU.RTCMinPort, c.SFU.RTCMaxPort)
	}
	if len(c.Analysis.WorkerCommand) == 0 {
		return fmt.Errorf("analysis.worker_command is empty")
	}
	return nil
}
