package pgstat

import (
	"net"
	"net/url"
	"strconv"

	"codeberg.org/mutker/pgmon/internal/errors"
)

const defaultSSLMode = "disable"

// Config carries the connection settings and check thresholds.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	LatencyThresholdMS int
	BloatThresholdPct  float64
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Host == "" {
		return invalidField(errFactory, "host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return invalidField(errFactory, "port")
	}
	if c.Database == "" {
		return invalidField(errFactory, "database")
	}
	if c.User == "" {
		return invalidField(errFactory, "user")
	}

	return nil
}

func invalidField(errFactory errors.Factory, field string) error {
	return errFactory.WithData(ErrInvalidConfig, struct {
		Field string
	}{
		Field: field,
	})
}

// DSN renders the postgres:// connection string pgdriver understands.
// The password is URL-escaped so it survives special characters.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}

	switch {
	case c.User != "" && c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}

	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = defaultSSLMode
	}
	u.RawQuery = url.Values{"sslmode": {sslmode}}.Encode()

	return u.String()
}
