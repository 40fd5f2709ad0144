package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "./config.yaml"

	BackendFS = "fs"
	BackendS3 = "s3"

	LockMemory = "memory"
	LockRedis  = "redis"
)

type Config struct {
	ListenAddr   string   `yaml:"listen_addr" json:"listen_addr"`
	LogLevel     string   `yaml:"log_level" json:"log_level"`
	LogFormat    string   `yaml:"log_format" json:"log_format"`
	MaxChunkSize ByteSize `yaml:"max_chunk_size" json:"max_chunk_size"`
	MetaDSN      string   `yaml:"meta_dsn" json:"meta_dsn"`

	Storage Storage `yaml:"storage" json:"storage"`
	Merge   Merge   `yaml:"merge" json:"merge"`
	GC      GC      `yaml:"gc" json:"gc"`
}

type Storage struct {
	Backend string `yaml:"backend" json:"backend"`
	// Root: каталог загрузок для backend=fs.
	Root string `yaml:"root" json:"root"`
	S3   S3     `yaml:"s3" json:"s3"`
}

type S3 struct {
	Bucket          string   `yaml:"bucket" json:"bucket"`
	Region          string   `yaml:"region" json:"region"`
	Prefix          string   `yaml:"prefix" json:"prefix"`
	Endpoint        string   `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string   `yaml:"access_key_id" json:"-"`
	SecretAccessKey string   `yaml:"secret_access_key" json:"-"`
	PartSize        ByteSize `yaml:"part_size" json:"part_size"`
}

type Merge struct {
	RequireContiguous bool          `yaml:"require_contiguous" json:"require_contiguous"`
	Lock              string        `yaml:"lock" json:"lock"`
	RedisAddr         string        `yaml:"redis_addr" json:"redis_addr"`
	LockTTL           time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

type GC struct {
	// SessionTTL задаёт, через сколько после последнего чанка сессия считается брошенной; 0 отключает GC.
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`
	Interval   time.Duration `yaml:"interval" json:"interval"`
}

// ByteSize хранит размер в байтах. В YAML и ENV пишется как "100MiB", "512k" или число.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := ParseByteSize(raw)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// ParseByteSize разбирает размер в двоичных единицах (KiB = 1024).
func ParseByteSize(s string) (ByteSize, error) {
	v, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("size %q must not be negative", s)
	}
	return ByteSize(v), nil
}

// Default возвращает настройки, с которыми сервис поднимается без файла конфигурации.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		MaxChunkSize: 100 * units.MiB,
		MetaDSN:      "memory://",
		Storage: Storage{
			Backend: BackendFS,
			Root:    "./uploads",
			S3: S3{
				PartSize: 16 * units.MiB,
			},
		},
		Merge: Merge{
			RequireContiguous: true,
			Lock:              LockMemory,
			LockTTL:           10 * time.Minute,
		},
		GC: GC{
			SessionTTL: 24 * time.Hour,
			Interval:   time.Hour,
		},
	}
}

// Load читает YAML-конфигурацию поверх значений по умолчанию, применяет ENV-переопределения
// и проверяет результат. Пустой path берётся из CONFIG_PATH; отсутствие файла по умолчанию не ошибка.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = getenv("CONFIG_PATH", DefaultPath)
		explicit = os.Getenv("CONFIG_PATH") != ""
	}

	c := Default()

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err = yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err = c.applyEnv(); err != nil {
		return nil, err
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.MetaDSN, "META_DSN")
	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.Root, "UPLOAD_ROOT")
	setString(&c.Storage.S3.Bucket, "S3_BUCKET")
	setString(&c.Storage.S3.Region, "S3_REGION")
	setString(&c.Storage.S3.Prefix, "S3_PREFIX")
	setString(&c.Storage.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&c.Storage.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&c.Merge.Lock, "MERGE_LOCK")
	setString(&c.Merge.RedisAddr, "REDIS_ADDR")

	if v := os.Getenv("MAX_CHUNK_SIZE"); v != "" {
		size, err := ParseByteSize(v)
		if err != nil {
			return fmt.Errorf("MAX_CHUNK_SIZE: %w", err)
		}
		c.MaxChunkSize = size
	}
	if v := os.Getenv("MERGE_REQUIRE_CONTIGUOUS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MERGE_REQUIRE_CONTIGUOUS: %w", err)
		}
		c.Merge.RequireContiguous = b
	}
	for env, dst := range map[string]*time.Duration{
		"MERGE_LOCK_TTL": &c.Merge.LockTTL,
		"GC_SESSION_TTL": &c.GC.SessionTTL,
		"GC_INTERVAL":    &c.GC.Interval,
	} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*dst = d
	}

	return nil
}

// Validate проверяет, что выбранные бэкенды сконфигурированы полностью.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr is empty"))
	}
	if c.MaxChunkSize <= 0 {
		errs = append(errs, errors.New("max_chunk_size must be positive"))
	}

	switch c.Storage.Backend {
	case BackendFS:
		if strings.TrimSpace(c.Storage.Root) == "" {
			errs = append(errs, errors.New("storage.root is required for fs backend"))
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for s3 backend"))
		}
		if c.Storage.S3.Region == "" {
			errs = append(errs, errors.New("storage.s3.region is required for s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch c.Merge.Lock {
	case LockMemory:
	case LockRedis:
		if c.Merge.RedisAddr == "" {
			errs = append(errs, errors.New("merge.redis_addr is required for redis lock"))
		}
		if c.Merge.LockTTL <= 0 {
			errs = append(errs, errors.New("merge.lock_ttl must be positive for redis lock"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown merge.lock %q", c.Merge.Lock))
	}

	if c.GC.SessionTTL < 0 || c.GC.Interval < 0 {
		errs = append(errs, errors.New("gc durations must not be negative"))
	}
	if c.GC.SessionTTL > 0 && c.GC.Interval == 0 {
		errs = append(errs, errors.New("gc.interval is required when gc.session_ttl is set"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}
