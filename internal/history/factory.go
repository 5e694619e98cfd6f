package history

import (
	"errors"
	"strings"
)

// Config is the history section of the daemon configuration.
type Config struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DSN     string `json:"dsn" mapstructure:"dsn"`
}

// NewSinkFromDSN creates a sink based on DSN format. Supported:
//   - "postgres://..." / "postgresql://..."
//   - "sqlite:///path/to/file.db", ":memory:", or a bare file path
func NewSinkFromDSN(dsn string) (Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.HasPrefix(lower, "sqlite://") || !strings.Contains(dsn, "://") {
		return NewSQLSink(dsn)
	}
	return nil, errors.New("unsupported DSN format: " + dsn)
}

// NewFromConfig returns the configured sinks, or none when disabled.
func NewFromConfig(c Config) ([]Sink, error) {
	if !c.Enabled || c.DSN == "" {
		return nil, nil
	}
	s, err := NewSinkFromDSN(c.DSN)
	if err != nil {
		return nil, err
	}
	return []Sink{s}, nil
}
