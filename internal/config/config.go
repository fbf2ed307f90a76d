package config

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "CART"

const (
	StorageRedis  = "redis"
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	CatalogFile  = "file"
	CatalogMySQL = "mysql"
)

type Config struct {
	Env      string
	LogLevel string

	HTTPAddr string
	GRPCAddr string

	Storage   string
	RedisAddr string
	MySQLDSN  string

	CatalogSource string
	CatalogPath   string

	TaxRate        decimal.Decimal
	WorkerCount    int
	QueueSize      int
	IdempotencyTTL time.Duration
}

// newViper binds CART_* variables, mapping nested keys like "a.b" to CART_A_B.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":50051")
	v.SetDefault("storage", StorageRedis)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("mysql_dsn", "root:root@tcp(localhost:3306)/cartstore?parseTime=true")
	v.SetDefault("catalog_source", CatalogFile)
	v.SetDefault("catalog_path", "data/products.json")
	v.SetDefault("tax_rate", "0.10")
	v.SetDefault("worker_count", 4)
	v.SetDefault("queue_size", 1000)
	v.SetDefault("idempotency_ttl", "24h")
}

// Load reads configuration from CART_* environment variables, falling back
// to defaults for anything unset.
func Load() (Config, error) {
	return fromViper(newViper())
}

// LoadFile reads a config file (any format viper understands), with the
// environment still taking precedence.
func LoadFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	taxRate, err := decimal.NewFromString(v.GetString("tax_rate"))
	if err != nil {
		return Config{}, errors.Wrap(err, "parse tax_rate")
	}

	cfg := Config{
		Env:            v.GetString("env"),
		LogLevel:       v.GetString("log_level"),
		HTTPAddr:       v.GetString("http_addr"),
		GRPCAddr:       v.GetString("grpc_addr"),
		Storage:        strings.ToLower(v.GetString("storage")),
		RedisAddr:      v.GetString("redis_addr"),
		MySQLDSN:       v.GetString("mysql_dsn"),
		CatalogSource:  strings.ToLower(v.GetString("catalog_source")),
		CatalogPath:    v.GetString("catalog_path"),
		TaxRate:        taxRate,
		WorkerCount:    v.GetInt("worker_count"),
		QueueSize:      v.GetInt("queue_size"),
		IdempotencyTTL: v.GetDuration("idempotency_ttl"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case StorageRedis, StorageMySQL, StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}

	switch c.CatalogSource {
	case CatalogFile:
		if c.CatalogPath == "" {
			return errors.New("catalog_path is required for the file catalog")
		}
	case CatalogMySQL:
	default:
		return errors.Errorf("unknown catalog_source %q", c.CatalogSource)
	}

	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.Errorf("tax_rate %s out of range [0, 1)", c.TaxRate)
	}
	if c.WorkerCount < 1 {
		return errors.Errorf("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize < 0 {
		return errors.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	}
	if c.IdempotencyTTL <= 0 {
		return errors.New("idempotency_ttl must be positive")
	}
	return nil
}

// UsesMySQL reports whether any component needs a MySQL connection. Receipts
// are archived to MySQL for every storage except memory.
func (c Config) UsesMySQL() bool {
	return c.Storage != StorageMemory || c.CatalogSource == CatalogMySQL
}
