package messaging

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/userhub/userhub/internal/constants"
)

// Config holds the broker connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	// RetryCount is the number of connection attempts before giving up.
	RetryCount int
	// RetryBackoff is the wait after the first failed attempt. It doubles after each attempt.
	RetryBackoff time.Duration

	// Workers is the number of messages handled concurrently by a consumer.
	Workers int
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		Host:         "rabbitmq",
		Port:         5672,
		User:         "guest",
		Password:     "guest",
		VHost:        "/",
		RetryCount:   5,
		RetryBackoff: time.Second,
		Workers:      constants.DefaultConsumerWorkers,
	}
}

// URL returns the AMQP URL for the configuration.
func (c Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.VHost,
	}
	// The default vhost "/" must be escaped so it is not mistaken for the path separator.
	u.RawPath = "/" + url.PathEscape(c.VHost)
	return u.String()
}

// Redacted returns the AMQP URL with the password hidden, for logging.
func (c Config) Redacted() string {
	u, err := url.Parse(c.URL())
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// withDefaults fills unset values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.User == "" {
		c.User = d.User
	}
	if c.Password == "" {
		c.Password = d.Password
	}
	if c.VHost == "" {
		c.VHost = d.VHost
	}
	if c.RetryCount <= 0 {
		c.RetryCount = d.RetryCount
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}
