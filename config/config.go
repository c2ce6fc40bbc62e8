package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address  string
		HTTPPort string
	}
	Database struct {
		Driver string // mysql | postgres | sqlite
		DSN    string
	}
	Logging struct {
		Level  string
		Format string // text | json
		File   string // пусто — stdout
	}
}

// Load читает config.yaml (рядом или в /etc/rackyard) и переменные
// окружения RACKYARD_* (env перекрывает файл).
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.httpport", "8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "rackyard.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/rackyard")

	v.SetEnvPrefix("RACKYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// файла может не быть — работаем на дефолтах и env
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
