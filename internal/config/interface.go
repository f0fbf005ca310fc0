package config

// Option adjusts how Load resolves configuration sources.
type Option func(*options)

// options holds internal configuration options
type options struct {
	configFile string
	envPrefix  string
	args       []string
}

// WithConfigFile specifies an explicit configuration file path,
// bypassing the PGMON_CONFIG lookup and the default search paths.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "PGMON".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithArgs overrides the command-line arguments to parse.
// Default is os.Args[1:].
func WithArgs(args []string) Option {
	return func(o *options) {
		o.args = args
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
