package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPort           = 3000
	DefaultAPIURL         = "http://127.0.0.1:3000"
	DefaultMaxPhotos      = 1000
	DefaultLogLevel       = "info"
	DefaultDBFileName     = "photowall.db"
	DefaultBlobDirName    = "blobs"
	DefaultSweepSchedule  = "@every 10m"
	DefaultEventKeepalive = 25 * time.Second
	DefaultEventBuffer    = 64
	DefaultNATSSubject    = "photowall.events"

	DefaultUploadMaxBytes     int64 = 10 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024

	FileName    = "photowall.toml"
	DotEnvFile  = ".env"
	dataDirName = "data"

	configDirEnvKey = "PHOTOWALL_CONFIG_DIR"
)

// DefaultAllowedMediaTypes lists the image types accepted by default.
var DefaultAllowedMediaTypes = []string{"image/gif", "image/jpeg", "image/png", "image/webp"}

// StorageConfig selects where photos and their metadata live.
type StorageConfig struct {
	DBPath      string `toml:"db_path" yaml:"db_path" json:"db_path"`
	DatabaseURL string `toml:"database_url" yaml:"database_url" json:"database_url"`
	BlobDir     string `toml:"blob_dir" yaml:"blob_dir" json:"blob_dir"`
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxBytes           int64    `toml:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
	MultipartMaxMemory int64    `toml:"multipart_max_memory" yaml:"multipart_max_memory" json:"multipart_max_memory"`
	AllowedMediaTypes  []string `toml:"allowed_media_types" yaml:"allowed_media_types" json:"allowed_media_types"`
}

// CapacityConfig configures catalog trimming.
type CapacityConfig struct {
	SweepSchedule string `toml:"sweep_schedule" yaml:"sweep_schedule" json:"sweep_schedule"`
}

// EventsConfig configures live update delivery.
type EventsConfig struct {
	Keepalive   Duration `toml:"keepalive" yaml:"keepalive" json:"keepalive"`
	Buffer      int      `toml:"buffer" yaml:"buffer" json:"buffer"`
	NATSURL     string   `toml:"nats_url" yaml:"nats_url" json:"nats_url"`
	NATSSubject string   `toml:"nats_subject" yaml:"nats_subject" json:"nats_subject"`
}

// Config defines runtime configuration for photowall.
type Config struct {
	APIURL    string         `toml:"api_url" yaml:"api_url" json:"api_url"`
	Port      int            `toml:"port" yaml:"port" json:"port"`
	PublicURL string         `toml:"public_url" yaml:"public_url" json:"public_url"`
	LogLevel  string         `toml:"log_level" yaml:"log_level" json:"log_level"`
	AdminKey  string         `toml:"admin_key" yaml:"admin_key" json:"admin_key"`
	MaxPhotos int            `toml:"max_photos" yaml:"max_photos" json:"max_photos"`
	Storage   StorageConfig  `toml:"storage" yaml:"storage" json:"storage"`
	Uploads   UploadConfig   `toml:"uploads" yaml:"uploads" json:"uploads"`
	Capacity  CapacityConfig `toml:"capacity" yaml:"capacity" json:"capacity"`
	Events    EventsConfig   `toml:"events" yaml:"events" json:"events"`

	// LoadedPath is the config file that was read, if any.
	LoadedPath string `toml:"-" yaml:"loaded_path,omitempty" json:"loaded_path,omitempty"`
}

// Duration decodes TOML strings such as "25s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:    DefaultAPIURL,
		Port:      DefaultPort,
		LogLevel:  DefaultLogLevel,
		MaxPhotos: DefaultMaxPhotos,
		Uploads: UploadConfig{
			MaxBytes:           DefaultUploadMaxBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
			AllowedMediaTypes:  append([]string(nil), DefaultAllowedMediaTypes...),
		},
		Capacity: CapacityConfig{SweepSchedule: DefaultSweepSchedule},
		Events: EventsConfig{
			Keepalive:   Duration{DefaultEventKeepalive},
			Buffer:      DefaultEventBuffer,
			NATSSubject: DefaultNATSSubject,
		},
	}
}

// Path returns the config file location.
func Path() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, FileName), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, FileName), nil
}

// LoadDotEnv loads .env from the working directory without overriding
// variables already present in the environment.
func LoadDotEnv() error {
	if _, err := os.Stat(DotEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(DotEnvFile); err != nil {
		return fmt.Errorf("load %s: %w", DotEnvFile, err)
	}
	return nil
}

// Load reads .env, the config file and env overrides.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Default()
	path, err := Path()
	if err != nil {
		return nil, err
	}
	loaded, err := loadFileIfExists(path, &cfg)
	if err != nil {
		return nil, err
	}
	if loaded {
		cfg.LoadedPath = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func (c *Config) applyEnv() error {
	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("PORT must be an integer")
		}
		c.Port = port
	}
	if raw := strings.TrimSpace(os.Getenv("MAX_PHOTOS")); raw != "" {
		maxPhotos, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("MAX_PHOTOS must be an integer")
		}
		c.MaxPhotos = maxPhotos
	}
	if key, ok := os.LookupEnv("ADMIN_KEY"); ok {
		c.AdminKey = key
	}
	if v := os.Getenv("PHOTOWALL_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("PHOTOWALL_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("PHOTOWALL_DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("PHOTOWALL_BLOB_DIR"); v != "" {
		c.Storage.BlobDir = v
	}
	if v := os.Getenv("PHOTOWALL_PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}
	if raw := strings.TrimSpace(os.Getenv("PHOTOWALL_MAX_UPLOAD_BYTES")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("PHOTOWALL_MAX_UPLOAD_BYTES must be an integer")
		}
		c.Uploads.MaxBytes = parsed
	}
	if raw := strings.TrimSpace(os.Getenv("PHOTOWALL_ALLOWED_MEDIA_TYPES")); raw != "" {
		c.Uploads.AllowedMediaTypes = splitCSV(raw)
	}
	if v, ok := os.LookupEnv("PHOTOWALL_SWEEP_SCHEDULE"); ok {
		c.Capacity.SweepSchedule = strings.TrimSpace(v)
	}
	if v := os.Getenv("PHOTOWALL_NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}
	if v := os.Getenv("PHOTOWALL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) normalize() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Storage.DBPath == "" || c.Storage.BlobDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			if c.Storage.DBPath == "" {
				c.Storage.DBPath = filepath.Join(cwd, dataDirName, DefaultDBFileName)
			}
			if c.Storage.BlobDir == "" {
				c.Storage.BlobDir = filepath.Join(cwd, dataDirName, DefaultBlobDirName)
			}
		}
	}
	if strings.TrimSpace(c.PublicURL) == "" {
		c.PublicURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.PublicURL = strings.TrimRight(strings.TrimSpace(c.PublicURL), "/")
	c.AdminKey = strings.TrimSpace(c.AdminKey)
	if c.Uploads.MaxBytes <= 0 {
		c.Uploads.MaxBytes = DefaultUploadMaxBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	c.Uploads.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Uploads.AllowedMediaTypes)
	if len(c.Uploads.AllowedMediaTypes) == 0 {
		c.Uploads.AllowedMediaTypes = append([]string(nil), DefaultAllowedMediaTypes...)
	}
	if c.Events.Keepalive.Duration <= 0 {
		c.Events.Keepalive = Duration{DefaultEventKeepalive}
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = DefaultEventBuffer
	}
	if c.Events.NATSSubject == "" {
		c.Events.NATSSubject = DefaultNATSSubject
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.MaxPhotos <= 0 {
		return fmt.Errorf("max_photos must be > 0")
	}
	if c.Capacity.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Capacity.SweepSchedule); err != nil {
			return fmt.Errorf("invalid capacity.sweep_schedule: %w", err)
		}
	}
	return nil
}

// ListenAddr returns the address the server binds.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

var allowedKeys = []string{
	"api_url",
	"port",
	"public_url",
	"log_level",
	"admin_key",
	"max_photos",
	"storage.db_path",
	"storage.database_url",
	"storage.blob_dir",
	"uploads.max_bytes",
	"uploads.multipart_max_memory",
	"uploads.allowed_media_types",
	"capacity.sweep_schedule",
	"events.keepalive",
	"events.buffer",
	"events.nats_url",
	"events.nats_subject",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "port":
		return strconv.Itoa(c.Port), nil
	case "public_url":
		return c.PublicURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "admin_key":
		if c.AdminKey == "" {
			return "", nil
		}
		return "(set)", nil
	case "max_photos":
		return strconv.Itoa(c.MaxPhotos), nil
	case "storage.db_path":
		return c.Storage.DBPath, nil
	case "storage.database_url":
		return c.Storage.DatabaseURL, nil
	case "storage.blob_dir":
		return c.Storage.BlobDir, nil
	case "uploads.max_bytes":
		return strconv.FormatInt(c.Uploads.MaxBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "uploads.allowed_media_types":
		return strings.Join(c.Uploads.AllowedMediaTypes, ","), nil
	case "capacity.sweep_schedule":
		return c.Capacity.SweepSchedule, nil
	case "events.keepalive":
		return c.Events.Keepalive.String(), nil
	case "events.buffer":
		return strconv.Itoa(c.Events.Buffer), nil
	case "events.nats_url":
		return c.Events.NATSURL, nil
	case "events.nats_subject":
		return c.Events.NATSSubject, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.AdminKey != "" {
		c.AdminKey = "(set)"
	}
	c.Uploads.AllowedMediaTypes = append([]string(nil), c.Uploads.AllowedMediaTypes...)
	return c
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "port", "max_photos", "events.buffer":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "events.keepalive":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return parsed.String(), nil
	case "capacity.sweep_schedule":
		if value != "" {
			if _, err := cron.ParseStandard(value); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		}
		return value, nil
	case "uploads.allowed_media_types":
		return splitCSV(value), nil
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be one of debug, info, warn, error", key)
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
