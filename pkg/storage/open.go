package storage

import (
	"fmt"
)

// Options selects and configures a Persistence backend.
type Options struct {
	Driver   string `mapstructure:"driver"` // memory, redis, postgres
	URL      string `mapstructure:"url"`    // postgres connection string
	Addr     string `mapstructure:"addr"`   // redis address
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Open creates the backend named by opts.Driver. An empty driver selects
// the in-memory store.
func Open(opts Options) (Persistence, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(opts.Prefix), nil
	case "redis":
		s, err := NewRedisStore(opts.Addr, opts.Password, opts.DB, opts.Prefix)
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(opts.URL, opts.Prefix)
		if err != nil {
			return nil, fmt.Errorf("postgres storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
