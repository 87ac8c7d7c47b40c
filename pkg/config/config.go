// Package config holds the runtime configuration, loaded from YAML with
// environment overrides.
package config

import "fmt"

// Fixed PEM filenames loaded when TLS is enabled.
const (
	TLSCertFile = "cert.pem"
	TLSKeyFile  = "key.pem"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	OCPP   OCPPConfig   `mapstructure:"ocpp"`
	Logs   LogsConfig   `mapstructure:"logs"`
	Auth   AuthConfig   `mapstructure:"auth"`
}

// ServerConfig covers the operator-facing HTTP server.
type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// OCPPConfig covers the charge-station listener and reply synthesis.
type OCPPConfig struct {
	Port int `mapstructure:"port"`
	// HeartbeatInterval, in seconds, populates the interval field of
	// BootNotification responses.
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	// TimeOffset, in whole hours, is added to server time in reply
	// timestamps.
	TimeOffset int `mapstructure:"time_offset"`
	// AuthPassword enables HTTP Basic on station upgrades when non-empty.
	AuthPassword string `mapstructure:"auth_password"`
	// Subprotocols offered during upgrade negotiation.
	Subprotocols []string `mapstructure:"subprotocols"`
}

type LogsConfig struct {
	Database string `mapstructure:"database"`
	Dir      string `mapstructure:"dir"`
}

type AuthConfig struct {
	// Users is the operator login allow-list.
	Users []string `mapstructure:"users"`
	// Secret signs operator session cookies.
	Secret string `mapstructure:"secret"`
}

// BaseURL is the externally reachable root of the operator HTTP server, used
// to address extracted log artifacts.
func (c *Config) BaseURL() string {
	scheme := "http"
	if c.Server.UseTLS {
		scheme = "https"
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.Server.Port)
}

// HTTPAddr is the listen address of the operator server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// OCPPAddr is the listen address of the charge-station server.
func (c *Config) OCPPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.OCPP.Port)
}
