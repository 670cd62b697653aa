package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/adityadhimaann/brocode-realtime/internal/feed"
	"github.com/adityadhimaann/brocode-realtime/internal/logger"
)

// SpeechConfig holds dictation settings.
type SpeechConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// PlaybackConfig holds audio rendering settings.
type PlaybackConfig struct {
	GraceSeconds float64 `mapstructure:"grace_seconds"`
}

// GracePeriod returns the post-terminal detach delay.
func (p PlaybackConfig) GracePeriod() time.Duration {
	if p.GraceSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(p.GraceSeconds * float64(time.Second))
}

// FeedConfig holds the scrolling panel tuning.
type FeedConfig struct {
	ScrollSpeed       float64 `mapstructure:"scroll_speed"`
	SafetyFactor      float64 `mapstructure:"safety_factor"`
	MinLoopSeconds    float64 `mapstructure:"min_loop_seconds"`
	Copies            int     `mapstructure:"copies"`
	ScrollIdleSeconds float64 `mapstructure:"scroll_idle_seconds"`
}

// Tuning converts the config into engine tuning, filling defaults for
// unset fields.
func (f FeedConfig) Tuning() feed.Tuning {
	t := feed.DefaultTuning()
	if f.ScrollSpeed > 0 {
		t.ScrollSpeed = f.ScrollSpeed
	}
	if f.SafetyFactor > 0 {
		t.SafetyFactor = f.SafetyFactor
	}
	if f.MinLoopSeconds > 0 {
		t.MinLoopSeconds = f.MinLoopSeconds
	}
	if f.Copies >= 2 {
		t.Copies = f.Copies
	}
	if f.ScrollIdleSeconds > 0 {
		t.ScrollIdle = time.Duration(f.ScrollIdleSeconds * float64(time.Second))
	}
	return t
}

// BackendConfig holds inference backend settings.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the backend request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Config is the full server configuration.
type Config struct {
	RootDir        string         `mapstructure:"-"`
	Host           string         `mapstructure:"host"`
	Port           int            `mapstructure:"port"`
	HTTPAddr       string         `mapstructure:"http_addr"`
	FrontendDir    string         `mapstructure:"frontend_dir"`
	PersonasDir    string         `mapstructure:"personas_dir"`
	DefaultPersona string         `mapstructure:"default_persona"`
	AutoSpeak      bool           `mapstructure:"auto_speak"`
	Backend        BackendConfig  `mapstructure:"backend"`
	Speech         SpeechConfig   `mapstructure:"speech"`
	Playback       PlaybackConfig `mapstructure:"playback"`
	Feed           FeedConfig     `mapstructure:"feed"`
	Log            logger.Config  `mapstructure:"log"`
}

// Load reads conf.yaml from the resolved root directory.
func Load() (Config, error) {
	return LoadConfig("")
}

// LoadConfig reads the given config file, or the default conf.yaml when
// the path is empty. Environment variables with the BROCODE_ prefix
// override file values.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("brocode")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var rootDir string
	path := strings.TrimSpace(configPath)
	if path == "" {
		resolved, err := resolveRootDir()
		if err != nil {
			return Config{}, err
		}
		rootDir = resolved
		v.SetConfigName("conf")
		v.AddConfigPath(rootDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, err
		}
		rootDir = filepath.Dir(absPath)
		v.SetConfigFile(absPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	deriveHTTPAddr(&cfg)
	derivePaths(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", 5050)
	v.SetDefault("http_addr", "")
	v.SetDefault("default_persona", "classic")
	v.SetDefault("auto_speak", false)
	v.SetDefault("backend.base_url", "http://localhost:5002")
	v.SetDefault("backend.timeout_seconds", 30)
	v.SetDefault("speech.default_language", "hi-IN")
	v.SetDefault("speech.languages", []string{"hi-IN", "en", "hinglish"})
	v.SetDefault("playback.grace_seconds", 3)
	v.SetDefault("feed.scroll_speed", 80)
	v.SetDefault("feed.safety_factor", 1.3)
	v.SetDefault("feed.min_loop_seconds", 8)
	v.SetDefault("feed.copies", 3)
	v.SetDefault("feed.scroll_idle_seconds", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "brocode-realtime.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

func deriveHTTPAddr(cfg *Config) {
	if cfg.HTTPAddr != "" {
		return
	}
	port := cfg.Port
	if port == 0 {
		port = 5050
	}
	if cfg.Host == "" {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
		return
	}
	cfg.HTTPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
}

func derivePaths(cfg *Config) {
	cfg.FrontendDir = resolvePath(cfg.RootDir, cfg.FrontendDir, filepath.Join("webassets", "chat"))
	cfg.PersonasDir = resolvePath(cfg.RootDir, cfg.PersonasDir, "personas")
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("BROCODE_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
