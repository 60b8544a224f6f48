package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "magpie"
)

// Profile modes: how a platform's URLs are acquired.
const (
	// ModeDirect fetches the URL body over plain HTTP.
	ModeDirect = "direct"
	// ModeDownloader hands the URL to the external downloader.
	ModeDownloader = "downloader"
)

// QueryProfile is the reserved profile name used for provider-resolved
// search results.
const QueryProfile = "query"

// ErrNoProfile is returned when a URL's domain has no configured platform
// profile. The lookup happens before any network activity.
var ErrNoProfile = errors.New("no platform profile")

// ConfigDir returns the standard config directory for magpie.
// Windows: %APPDATA%\magpie\
// macOS/Linux: ~/.config/magpie/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file.
// e.g., ~/.config/magpie/config.yml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

type Config struct {
	// Logging output settings
	Log LogConfig `yaml:"log,omitempty"`

	// Global media ceilings and post-processing toggles
	File FileConfig `yaml:"file,omitempty"`

	// Dispatch queue and worker pool settings
	Queue QueueConfig `yaml:"queue,omitempty"`

	// Chat command settings
	Command CommandConfig `yaml:"command,omitempty"`

	// External downloader settings
	YTDLP YTDLPConfig `yaml:"ytdlp,omitempty"`

	// ffmpeg/ffprobe settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg,omitempty"`

	// Admin HTTP server settings
	Server ServerConfig `yaml:"server,omitempty"`

	// Chat transport connection settings
	Transport TransportConfig `yaml:"transport,omitempty"`

	// Search-query provider settings
	Query QueryConfig `yaml:"query,omitempty"`

	// Platforms maps a registrable domain (e.g., "youtube.com") to a
	// profile name. Domains not listed here are refused outright.
	Platforms map[string]string `yaml:"platforms,omitempty"`

	// Profiles holds the named acquisition profiles platforms point at.
	Profiles map[string]Profile `yaml:"profiles,omitempty"`
}

// LogConfig controls the zerolog root logger.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error (default: info)
	Level string `yaml:"level,omitempty"`

	// Pretty switches from JSON lines to the human console writer
	Pretty bool `yaml:"pretty,omitempty"`
}

// FileConfig holds the global ceilings profiles fall back to, plus the
// post-processing toggles.
type FileConfig struct {
	// MaxSizeMB is the artifact byte cap in megabytes (default: 100)
	MaxSizeMB int `yaml:"max_size_mb,omitempty"`

	// MaxDurationSecs is the duration ceiling in seconds (default: 600)
	MaxDurationSecs int `yaml:"max_duration_secs,omitempty"`

	// ThumbnailFallback delivers a ceiling-rejected item as its thumbnail
	// image instead of failing (default: true)
	ThumbnailFallback bool `yaml:"thumbnail_fallback"`

	// ExtractThumbnail pulls a first-frame thumbnail for videos that
	// arrive without one (default: true)
	ExtractThumbnail bool `yaml:"extract_thumbnail"`

	// NormalizeVideo remuxes downloaded video to mp4 (default: true)
	NormalizeVideo bool `yaml:"normalize_video"`
}

// QueueConfig bounds the dispatch layer.
type QueueConfig struct {
	// Capacity is the task queue depth; new tasks are dropped when the
	// queue is full (default: 10)
	Capacity int `yaml:"capacity,omitempty"`

	// Workers is the fixed worker pool size (default: 2)
	Workers int `yaml:"workers,omitempty"`

	// IndicatorLimit caps how many reaction indicators may stand at
	// once (default: 5)
	IndicatorLimit int `yaml:"indicator_limit,omitempty"`

	// RouteTimeoutSecs is the hard per-task deadline (default: 180)
	RouteTimeoutSecs int `yaml:"route_timeout_secs,omitempty"`
}

// RouteTimeout returns the per-task deadline as a duration.
func (q QueueConfig) RouteTimeout() time.Duration {
	return time.Duration(q.RouteTimeoutSecs) * time.Second
}

// CommandConfig controls how chat messages are classified.
type CommandConfig struct {
	// Prefix starts a command message (default: "!")
	Prefix string `yaml:"prefix,omitempty"`

	// PassiveURLListening routes bare URLs in ordinary messages through
	// the default route (default: true)
	PassiveURLListening bool `yaml:"passive_url_listening"`

	// MaxURLs caps how many URLs one message may carry (default: 3)
	MaxURLs int `yaml:"max_urls,omitempty"`

	// Aliases maps extra command words to route names
	// (e.g., "gif: tenor")
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

// YTDLPConfig configures the external downloader binary.
type YTDLPConfig struct {
	// Path to the binary (default: "yt-dlp")
	Path string `yaml:"path,omitempty"`

	// Proxy passed via --proxy when set
	Proxy string `yaml:"proxy,omitempty"`

	// UserAgent passed via --user-agent when set
	UserAgent string `yaml:"user_agent,omitempty"`

	// CookiesEnv names an env var whose value is written to a cookies
	// file at startup and passed via --cookies
	CookiesEnv string `yaml:"cookies_env,omitempty"`

	// QueryTimeoutSecs bounds one simulate run (default: 30)
	QueryTimeoutSecs int `yaml:"query_timeout_secs,omitempty"`

	// DownloadTimeoutSecs bounds one download attempt (default: 120)
	DownloadTimeoutSecs int `yaml:"download_timeout_secs,omitempty"`

	// Formats is the global ordered format fallback list, used by
	// profiles that don't carry their own
	Formats []string `yaml:"formats,omitempty"`
}

// QueryTimeout returns the simulate-run deadline as a duration.
func (y YTDLPConfig) QueryTimeout() time.Duration {
	return time.Duration(y.QueryTimeoutSecs) * time.Second
}

// DownloadTimeout returns the per-attempt download deadline as a duration.
func (y YTDLPConfig) DownloadTimeout() time.Duration {
	return time.Duration(y.DownloadTimeoutSecs) * time.Second
}

// FFmpegConfig configures the ffmpeg and ffprobe binaries.
type FFmpegConfig struct {
	// Path to ffmpeg (default: "ffmpeg")
	Path string `yaml:"path,omitempty"`

	// ProbePath to ffprobe (default: "ffprobe")
	ProbePath string `yaml:"probe_path,omitempty"`

	// LiveCaptureSecs is how much of a live stream to record
	// (default: 30)
	LiveCaptureSecs int `yaml:"live_capture_secs,omitempty"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	// Enabled starts the admin server with `magpie run` (default: false)
	Enabled bool `yaml:"enabled,omitempty"`

	// Host is the listen address (default: "127.0.0.1")
	Host string `yaml:"host,omitempty"`

	// Port is the HTTP listen port (default: 8321)
	Port int `yaml:"port,omitempty"`

	// APIKey for authentication (optional, if set all requests except
	// the health check must include X-API-Key header)
	APIKey string `yaml:"api_key,omitempty"`
}

// TransportConfig holds the chat transport connection settings.
type TransportConfig struct {
	// Homeserver is the Matrix homeserver URL
	Homeserver string `yaml:"homeserver,omitempty"`

	// UserID is the bot's full Matrix user ID (e.g., "@magpie:example.org")
	UserID string `yaml:"user_id,omitempty"`

	// AccessTokenEnv names the env var holding the access token
	// (default: "MAGPIE_ACCESS_TOKEN")
	AccessTokenEnv string `yaml:"access_token_env,omitempty"`

	// Rooms is an allow-list of room IDs; empty means all joined rooms
	Rooms []string `yaml:"rooms,omitempty"`
}

// QueryConfig holds the search-provider settings. Key env vars name the
// variable to read, not the secret itself.
type QueryConfig struct {
	TenorKeyEnv    string `yaml:"tenor_key_env,omitempty"`
	GiphyKeyEnv    string `yaml:"giphy_key_env,omitempty"`
	UnsplashKeyEnv string `yaml:"unsplash_key_env,omitempty"`

	// SearxInstance is the searx server queried for image results
	SearxInstance string `yaml:"searx_instance,omitempty"`

	// Providers maps a query route to its provider fallback chain,
	// e.g. "gif: tenor|giphy"
	Providers map[string]string `yaml:"providers,omitempty"`
}

// Profile describes how one platform's URLs are acquired. Zero ceilings
// fall back to the file section's globals on lookup.
type Profile struct {
	// Name is filled in by ProfileFor; it is not read from yaml.
	Name string `yaml:"-"`

	// Mode is "direct" or "downloader"
	Mode string `yaml:"mode"`

	// Formats overrides the global ordered format fallback list
	Formats []string `yaml:"formats,omitempty"`

	// MaxDurationSecs overrides file.max_duration_secs
	MaxDurationSecs int `yaml:"max_duration_secs,omitempty"`

	// MaxSizeMB overrides file.max_size_mb
	MaxSizeMB int `yaml:"max_size_mb,omitempty"`

	// AllowLive permits bounded live-stream capture
	AllowLive bool `yaml:"allow_live,omitempty"`

	// LiveCaptureSecs overrides ffmpeg.live_capture_secs
	LiveCaptureSecs int `yaml:"live_capture_secs,omitempty"`
}

// MaxBytes returns the profile's byte cap. Zero means unlimited.
func (p Profile) MaxBytes() int64 {
	return int64(p.MaxSizeMB) * 1024 * 1024
}

// ProfileFor resolves the profile for a registrable domain (the last two
// DNS labels of a host). A miss is a configuration error and must abort
// before any network activity.
func (c *Config) ProfileFor(domain string) (Profile, error) {
	name, ok := c.Platforms[domain]
	if !ok {
		return Profile{}, fmt.Errorf("%w for domain %q", ErrNoProfile, domain)
	}
	prof, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: platform %q points at unknown profile %q", ErrNoProfile, domain, name)
	}
	prof.Name = name
	return c.resolveProfile(prof), nil
}

// QueryProfileFor resolves the reserved profile used for search results.
func (c *Config) QueryProfileFor() (Profile, error) {
	prof, ok := c.Profiles[QueryProfile]
	if !ok {
		return Profile{}, fmt.Errorf("%w: reserved profile %q missing", ErrNoProfile, QueryProfile)
	}
	prof.Name = QueryProfile
	return c.resolveProfile(prof), nil
}

func (c *Config) resolveProfile(p Profile) Profile {
	if p.MaxDurationSecs == 0 {
		p.MaxDurationSecs = c.File.MaxDurationSecs
	}
	if p.MaxSizeMB == 0 {
		p.MaxSizeMB = c.File.MaxSizeMB
	}
	if len(p.Formats) == 0 {
		p.Formats = c.YTDLP.Formats
	}
	if p.LiveCaptureSecs == 0 {
		p.LiveCaptureSecs = c.FFmpeg.LiveCaptureSecs
	}
	return p
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	if c.Queue.Capacity <= 0 {
		return errors.New("queue.capacity must be positive")
	}
	if c.Queue.Workers <= 0 {
		return errors.New("queue.workers must be positive")
	}
	if c.Queue.RouteTimeoutSecs <= 0 {
		return errors.New("queue.route_timeout_secs must be positive")
	}
	if c.Command.Prefix == "" {
		return errors.New("command.prefix must not be empty")
	}
	for domain, name := range c.Platforms {
		prof, ok := c.Profiles[name]
		if !ok {
			return fmt.Errorf("platform %q points at unknown profile %q", domain, name)
		}
		if prof.Mode != ModeDirect && prof.Mode != ModeDownloader {
			return fmt.Errorf("profile %q has invalid mode %q", name, prof.Mode)
		}
	}
	return nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		File: FileConfig{
			MaxSizeMB:         100,
			MaxDurationSecs:   600,
			ThumbnailFallback: true,
			ExtractThumbnail:  true,
			NormalizeVideo:    true,
		},
		Queue: QueueConfig{
			Capacity:         10,
			Workers:          2,
			IndicatorLimit:   5,
			RouteTimeoutSecs: 180,
		},
		Command: CommandConfig{
			Prefix:              "!",
			PassiveURLListening: true,
			MaxURLs:             3,
			Aliases:             map[string]string{"gif": "tenor", "dl": "get"},
		},
		YTDLP: YTDLPConfig{
			Path:                "yt-dlp",
			QueryTimeoutSecs:    30,
			DownloadTimeoutSecs: 120,
			Formats: []string{
				"bv[ext=mp4][vcodec^=avc]+ba[ext=m4a]/b[ext=mp4]",
				"best",
			},
		},
		FFmpeg: FFmpegConfig{
			Path:            "ffmpeg",
			ProbePath:       "ffprobe",
			LiveCaptureSecs: 30,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8321,
		},
		Transport: TransportConfig{
			AccessTokenEnv: "MAGPIE_ACCESS_TOKEN",
		},
		Query: QueryConfig{
			TenorKeyEnv:    "TENOR_API_KEY",
			GiphyKeyEnv:    "GIPHY_API_KEY",
			UnsplashKeyEnv: "UNSPLASH_API_KEY",
			SearxInstance:  "https://searx.be",
		},
		Platforms: map[string]string{
			"youtube.com":    "video",
			"youtu.be":       "video",
			"tiktok.com":     "video",
			"twitter.com":    "video",
			"x.com":          "video",
			"instagram.com":  "video",
			"reddit.com":     "video",
			"twitch.tv":      "live",
			"soundcloud.com": "video",
			"tenor.com":      "image",
			"giphy.com":      "image",
			"imgur.com":      "image",
		},
		Profiles: map[string]Profile{
			"video": {Mode: ModeDownloader},
			"live":  {Mode: ModeDownloader, AllowLive: true},
			"image": {Mode: ModeDirect, MaxSizeMB: 20},
			"query": {Mode: ModeDirect, MaxSizeMB: 20},
		},
	}
}

// Exists checks if the config file exists at the default path.
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// LoadFile reads a config file. Absent keys keep their defaults, so a
// partial file is fine.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Decoding merges mappings into the pre-seeded defaults. When the file
	// lists a map section itself, that listing replaces the default one.
	var explicit struct {
		Platforms map[string]string  `yaml:"platforms"`
		Profiles  map[string]Profile `yaml:"profiles"`
		Command   struct {
			Aliases map[string]string `yaml:"aliases"`
		} `yaml:"command"`
	}
	if err := yaml.Unmarshal(data, &explicit); err == nil {
		if explicit.Platforms != nil {
			cfg.Platforms = explicit.Platforms
		}
		if explicit.Profiles != nil {
			cfg.Profiles = explicit.Profiles
		}
		if explicit.Command.Aliases != nil {
			cfg.Command.Aliases = explicit.Command.Aliases
		}
	}
	return cfg, nil
}

// Load reads the config from the default path.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// SaveFile writes the config to the given path, creating directories as
// needed.
func SaveFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Add a header comment
	header := "# magpie configuration file\n# Run 'magpie init' to regenerate with defaults\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0644)
}

// Init writes a fresh default config at path (default path when empty)
// and returns where it landed. With force it overwrites an existing
// file.
func Init(path string, force bool) (string, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return "", err
		}
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%s already exists", path)
		}
	}
	return path, SaveFile(DefaultConfig(), path)
}

// LoadOrDefault loads the config at path (default path when empty),
// falling back to defaults when no file exists.
func LoadOrDefault(path string) *Config {
	var (
		cfg *Config
		err error
	)
	if path != "" {
		cfg, err = LoadFile(path)
	} else {
		cfg, err = Load()
	}
	if err != nil {
		cfg = DefaultConfig()
	}
	return cfg
}
