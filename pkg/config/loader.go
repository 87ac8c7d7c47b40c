package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.use_tls", false)
	viper.SetDefault("ocpp.port", 5000)
	viper.SetDefault("ocpp.heartbeat_interval", 60)
	viper.SetDefault("ocpp.time_offset", 0)
	viper.SetDefault("ocpp.subprotocols", []string{"ocpp1.6"})
	viper.SetDefault("logs.database", "logs.db")
	viper.SetDefault("logs.dir", "./logs")
	viper.SetDefault("auth.secret", "change-me")

	viper.SetEnvPrefix("CSMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without the CSMS_ prefix for container deploys
	viper.BindEnv("server.host", "HOST", "CSMS_SERVER_HOST")
	viper.BindEnv("server.port", "HTTP_PORT", "CSMS_SERVER_PORT")
	viper.BindEnv("server.use_tls", "USE_TLS", "CSMS_SERVER_USE_TLS")
	viper.BindEnv("ocpp.port", "OCPP_PORT", "CSMS_OCPP_PORT")
	viper.BindEnv("ocpp.heartbeat_interval", "HEARTBEAT_INTERVAL", "CSMS_OCPP_HEARTBEAT_INTERVAL")
	viper.BindEnv("ocpp.time_offset", "TIME_OFFSET", "CSMS_OCPP_TIME_OFFSET")
	viper.BindEnv("ocpp.auth_password", "OCPP_AUTH_PASSWORD", "CSMS_OCPP_AUTH_PASSWORD")
	viper.BindEnv("auth.secret", "SESSION_SECRET", "CSMS_AUTH_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// env vars only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
