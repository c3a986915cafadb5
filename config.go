package kt

import (
	"time"

	"github.com/coleifer/kt/pkg/ktcodec"
)

// ServerKind selects which wire protocol family the Client speaks.
type ServerKind int8

const (
	// KyotoTycoon is the cache server: binary protocol A for point/bulk
	// ops and scripts, HTTP/TSV for everything else.
	KyotoTycoon ServerKind = iota
	// TokyoTyrant is the sibling server: binary protocol B only.
	TokyoTyrant
)

const defaultPort = 1978

type cfg struct {
	kind ServerKind

	host string
	port int

	serializer ktcodec.Name
	decodeKeys bool

	timeout time.Duration

	usePool     bool
	maxPoolSize int
	maxIdleAge  time.Duration

	defaultDB uint16

	logger Logger
}

func defaultCfg() cfg {
	return cfg{
		kind:        KyotoTycoon,
		host:        "127.0.0.1",
		port:        defaultPort,
		serializer:  ktcodec.Binary,
		decodeKeys:  true,
		usePool:     true,
		maxPoolSize: 8,
		maxIdleAge:  10 * time.Minute,
		logger:      nopLogger{},
	}
}

// Opt configures a Client. Options compose via functional application,
// exactly as franz-go's kgo.Option/kgo.NewClient(opts...).
type Opt func(*cfg)

// WithServerKind selects the wire protocol family. Default: KyotoTycoon.
func WithServerKind(k ServerKind) Opt { return func(c *cfg) { c.kind = k } }

// WithHost sets the server hostname. Default: "127.0.0.1".
func WithHost(host string) Opt { return func(c *cfg) { c.host = host } }

// WithPort sets the server port. Default: 1978.
func WithPort(port int) Opt { return func(c *cfg) { c.port = port } }

// WithSerializer selects the value Codec. Default: binary.
func WithSerializer(name ktcodec.Name) Opt { return func(c *cfg) { c.serializer = name } }

// WithDecodeKeys controls whether returned keys are UTF-8 decoded to text
// (true) or surfaced as raw bytes (false). Default: true.
func WithDecodeKeys(decode bool) Opt { return func(c *cfg) { c.decodeKeys = decode } }

// WithTimeout sets the per-I/O deadline for every Connection. Zero means no
// deadline. Default: 0.
func WithTimeout(d time.Duration) Opt { return func(c *cfg) { c.timeout = d } }

// WithConnectionPool toggles pooled connections. When false, the Client
// dials a single Connection and serializes all requests through it.
// Default: true.
func WithConnectionPool(enabled bool) Opt { return func(c *cfg) { c.usePool = enabled } }

// WithMaxPoolSize bounds the number of Connections the Pool will create for
// a given (host, port). Default: 8.
func WithMaxPoolSize(n int) Opt { return func(c *cfg) { c.maxPoolSize = n } }

// WithMaxIdleAge sets the idle cutoff beyond which a pooled Connection is
// redialed rather than reused. Default: 10 minutes.
func WithMaxIdleAge(d time.Duration) Opt { return func(c *cfg) { c.maxIdleAge = d } }

// WithDefaultDB sets the implicit database index used when a call site
// doesn't specify one (binary protocol A and HTTP only). Default: 0.
func WithDefaultDB(db uint16) Opt { return func(c *cfg) { c.defaultDB = db } }

// WithLogger installs a Logger. Default: a no-op logger.
func WithLogger(l Logger) Opt { return func(c *cfg) { c.logger = l } }
