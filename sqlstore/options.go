package sqlstore

import (
	"time"

	"github.com/relaycore/outbox"
)

const (
	defaultTable             = "outbox"
	defaultSchemaVersionTable = "outbox_schema_version"
	defaultWriteLockTimeout  = 2 * time.Second
)

// Config configures a Persistor.
type Config struct {
	Table              string
	SchemaVersionTable string
	Dialect            Dialect
	WriteLockTimeout   time.Duration
	Clock              outbox.Clock
	Generator          outbox.IDGenerator
	Serializer         outbox.Serializer
	MigrationsSource   string
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.SchemaVersionTable == "" {
		c.SchemaVersionTable = defaultSchemaVersionTable
	}
	if c.WriteLockTimeout <= 0 {
		c.WriteLockTimeout = defaultWriteLockTimeout
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = outbox.NewUUIDv7Generator(c.Clock)
	}
	if c.Serializer == nil {
		c.Serializer = outbox.JSONSerializer{}
	}

	return c
}

// Option configures the sqlstore Persistor.
type Option func(*Config)

// WithTable sets the outbox entry table name.
func WithTable(name string) Option {
	return func(c *Config) { c.Table = name }
}

// WithSchemaVersionTable sets the migration-tracking table name.
func WithSchemaVersionTable(name string) Option {
	return func(c *Config) { c.SchemaVersionTable = name }
}

// WithDialect sets the required Dialect.
func WithDialect(d Dialect) Option {
	return func(c *Config) { c.Dialect = d }
}

// WithWriteLockTimeout bounds how long Lock waits to acquire a row lock
// before giving up and reporting it as not acquired.
func WithWriteLockTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteLockTimeout = d }
}

// WithClock overrides the default SystemClock.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithGenerator overrides the default UUIDv7Generator.
func WithGenerator(gen outbox.IDGenerator) Option {
	return func(c *Config) { c.Generator = gen }
}

// WithSerializer overrides the default JSONSerializer used to encode the
// invocation column.
func WithSerializer(s outbox.Serializer) Option {
	return func(c *Config) { c.Serializer = s }
}

// WithMigrationsSource sets the golang-migrate source URL (e.g.
// "file://./migrations") consulted by Migrate.
func WithMigrationsSource(source string) Option {
	return func(c *Config) { c.MigrationsSource = source }
}
