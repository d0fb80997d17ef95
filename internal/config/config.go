package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Admin   AdminConfig
	Session SessionConfig
	Geo     GeoConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type AdminConfig struct {
	Username string `mapstructure:"username"`
	// Password may be a plain value or a bcrypt hash ($2a$... / $2b$...).
	Password string `mapstructure:"password"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type GeoConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

// RedisConfig configures the optional shared geo-lookup cache. An empty Addr
// disables it and lookups are cached in process only.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "5103")
	viper.SetDefault("server.readTimeout", 5*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Second)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)

	viper.SetDefault("store.path", "./dashboard_data.json")

	viper.SetDefault("admin.username", "admin")
	viper.SetDefault("admin.password", "change_this_secure_password")

	viper.SetDefault("session.ttl", 24*time.Hour)

	viper.SetDefault("geo.endpoint", "http://ip-api.com/json")
	viper.SetDefault("geo.timeout", 2*time.Second)
	viper.SetDefault("geo.cacheTTL", time.Hour)
	viper.SetDefault("geo.redis.db", 0)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", true)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
