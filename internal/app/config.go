package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Version is reported to initiators in server_info.
var Version = "0.1.0"

// Config holds runtime options for both peers.
type Config struct {
	Home       string `env:"MURMUR_HOME"`
	Passphrase string `env:"MURMUR_PASSPHRASE"`
	RelayURL   string `env:"MURMUR_RELAY_URL" env-default:"ws://127.0.0.1:8080/ws"`
	LogLevel   string `env:"MURMUR_LOG_LEVEL" env-default:"info"`
	LogJSON    bool   `env:"MURMUR_LOG_JSON" env-default:"false"`

	HandshakeTimeout  time.Duration `env:"MURMUR_HANDSHAKE_TIMEOUT" env-default:"10s"`
	HeartbeatInterval time.Duration `env:"MURMUR_HEARTBEAT_INTERVAL" env-default:"15s"`

	// Executor.
	Name             string        `env:"MURMUR_NAME"`
	Backend          string        `env:"MURMUR_BACKEND" env-default:"echo"`
	BackendCommand   string        `env:"MURMUR_BACKEND_COMMAND"`
	BackendArgs      []string      `env:"MURMUR_BACKEND_ARGS" env-separator:" "`
	ResumeFlag       string        `env:"MURMUR_BACKEND_RESUME_FLAG" env-default:"--resume"`
	BackendTimeout   time.Duration `env:"MURMUR_BACKEND_TIMEOUT" env-default:"120s"`
	CompactThreshold int           `env:"MURMUR_COMPACT_THRESHOLD" env-default:"150000"`

	// Initiator.
	TurnTimeout    time.Duration `env:"MURMUR_TURN_TIMEOUT" env-default:"120s"`
	Speaker        string        `env:"MURMUR_SPEAKER" env-default:"print"`
	SpeakerCommand string        `env:"MURMUR_SPEAKER_COMMAND" env-default:"espeak-ng"`
	Voice          string        `env:"MURMUR_VOICE"`
	SpeechRate     int           `env:"MURMUR_SPEECH_RATE"`
}

// RelayConfig holds options for the relay broker.
type RelayConfig struct {
	Addr          string        `env:"MURMUR_RELAY_ADDR" env-default:":8080"`
	ProbeInterval time.Duration `env:"MURMUR_RELAY_PROBE_INTERVAL" env-default:"30s"`
	ProbeTimeout  time.Duration `env:"MURMUR_RELAY_PROBE_TIMEOUT" env-default:"2s"`
	MaxFrameBytes int64         `env:"MURMUR_RELAY_MAX_FRAME_BYTES" env-default:"1048576"`
	Rate          float64       `env:"MURMUR_RELAY_RATE" env-default:"5"`
	Burst         int           `env:"MURMUR_RELAY_BURST" env-default:"10"`
	MDNS          bool          `env:"MURMUR_RELAY_MDNS" env-default:"false"`
	MDNSName      string        `env:"MURMUR_RELAY_MDNS_NAME" env-default:"murmur-relay"`
	LogLevel      string        `env:"MURMUR_LOG_LEVEL" env-default:"info"`
	LogJSON       bool          `env:"MURMUR_LOG_JSON" env-default:"false"`
}

// LoadConfig reads Config from the environment after loading envFile. An
// empty envFile loads ./.env if it exists.
func LoadConfig(envFile string) (Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if cfg.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, err
		}
		cfg.Home = filepath.Join(dir, ".murmur")
	}
	if cfg.Name == "" {
		cfg.Name, _ = os.Hostname()
	}
	return cfg, nil
}

// LoadRelayConfig reads RelayConfig the same way as LoadConfig.
func LoadRelayConfig(envFile string) (RelayConfig, error) {
	if err := loadEnvFile(envFile); err != nil {
		return RelayConfig{}, err
	}
	var cfg RelayConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return RelayConfig{}, fmt.Errorf("read relay config: %w", err)
	}
	return cfg, nil
}

// Variables already present in the environment win over the file.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
