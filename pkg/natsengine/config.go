package natsengine

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// HandleErrorMode selects how the engine reacts to a message the format
// registry fails to parse.
type HandleErrorMode string

const (
	// HandleErrorModeDefault tolerates up to SkipBrokenMessages parse
	// failures per streaming pass, otherwise fails the pass.
	HandleErrorModeDefault HandleErrorMode = "DEFAULT"

	// HandleErrorModeStream materializes malformed messages as rows with
	// the _raw_message/_error virtual columns instead of failing.
	HandleErrorModeStream HandleErrorMode = "STREAM"

	// handleErrorModeDeadLetterQueue is recognized only to be rejected at
	// configuration time; a dead-letter sideband is explicitly a Non-goal.
	handleErrorModeDeadLetterQueue HandleErrorMode = "DEAD_LETTER_QUEUE"
)

// TLSConfig configures a TLS broker connection.
type TLSConfig struct {
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
	Enabled  bool   `mapstructure:"enabled"`
}

// GlobalCredentials are server-wide fallback credentials, consulted when an
// engine's own settings omit nats_username/nats_password/
// nats_credential_file.
type GlobalCredentials struct {
	Username       string
	Password       string
	CredentialFile string
}

// Config is the engine's immutable construction-time configuration, built
// from the settings recognized in SPEC_FULL.md §6 (nats_* table settings).
type Config struct {
	Servers             []string
	Subjects            []string
	Format              string
	Schema              string
	QueueGroup          string
	Username            string
	Password            string
	Token               string
	CredentialFile      string
	HandleErrorMode     HandleErrorMode
	TLS                 TLSConfig
	NumConsumers        int
	MaxBlockSize        int
	MaxRowsPerMessage   int
	SkipBrokenMessages  int64
	ReconnectWait       time.Duration
	StartupConnectTries int
	FlushInterval       time.Duration
	Secure              bool
}

// rawConfig mirrors the mapstructure tags of the "nats_*" settings table
// (SPEC_FULL.md §6), the way peer/nats.Config and peer/kafka.Config mirror
// their own settings.
type rawConfig struct {
	URL                 string   `mapstructure:"nats_url"`
	ServerList          string   `mapstructure:"nats_server_list"`
	Subjects            string   `mapstructure:"nats_subjects"`
	Format              string   `mapstructure:"nats_format"`
	Schema              string   `mapstructure:"nats_schema"`
	QueueGroup          string   `mapstructure:"nats_queue_group"`
	Username            string   `mapstructure:"nats_username"`
	Password            string   `mapstructure:"nats_password"`
	Token               string   `mapstructure:"nats_token"`
	CredentialFile      string   `mapstructure:"nats_credential_file"`
	HandleErrorMode     string   `mapstructure:"nats_handle_error_mode"`
	NumConsumers        int      `mapstructure:"nats_num_consumers"`
	MaxBlockSize        int      `mapstructure:"nats_max_block_size"`
	MaxRowsPerMessage   int      `mapstructure:"nats_max_rows_per_message"`
	SkipBrokenMessages  int64    `mapstructure:"nats_skip_broken_messages"`
	ReconnectWaitMs     int      `mapstructure:"nats_reconnect_wait"`
	StartupConnectTries int      `mapstructure:"nats_startup_connect_tries"`
	FlushIntervalMs     int      `mapstructure:"nats_flush_interval_ms"`
	Secure              bool     `mapstructure:"nats_secure"`
	TLSCertFile         string   `mapstructure:"nats_tls_cert_file"`
	TLSKeyFile          string   `mapstructure:"nats_tls_key_file"`
	TLSCAFile           string   `mapstructure:"nats_tls_ca_file"`
}

// LoadConfig decodes settings (a table's ENGINE = NATS(...) settings,
// arriving as a map the way pipeline.Peer.Config does) into a Config,
// applying defaults and raising ErrConfigError for any invalid combination.
func LoadConfig(settings map[string]any, globals GlobalCredentials) (Config, error) {
	var raw rawConfig
	decoderCfg := &mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(decoderCfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: build decoder: %v", ErrConfigError, err)
	}
	if err := decoder.Decode(settings); err != nil {
		return Config{}, fmt.Errorf("%w: decode settings: %v", ErrConfigError, err)
	}

	if raw.Subjects == "" {
		return Config{}, fmt.Errorf("%w: nats_subjects is required", ErrConfigError)
	}
	if raw.Format == "" {
		return Config{}, fmt.Errorf("%w: nats_format is required", ErrConfigError)
	}
	if (raw.URL == "") == (raw.ServerList == "") {
		return Config{}, fmt.Errorf("%w: exactly one of nats_url or nats_server_list must be set", ErrConfigError)
	}

	mode := HandleErrorMode(cmp.Or(raw.HandleErrorMode, string(HandleErrorModeDefault)))
	if mode == handleErrorModeDeadLetterQueue {
		return Config{}, fmt.Errorf("%w: nats_handle_error_mode=DEAD_LETTER_QUEUE is not supported", ErrConfigError)
	}
	if mode != HandleErrorModeDefault && mode != HandleErrorModeStream {
		return Config{}, fmt.Errorf("%w: unrecognized nats_handle_error_mode %q", ErrConfigError, raw.HandleErrorMode)
	}

	cfg := Config{
		Servers:             splitServers(raw.URL, raw.ServerList),
		Subjects:            splitAndTrim(raw.Subjects),
		Format:              raw.Format,
		Schema:              raw.Schema,
		QueueGroup:          raw.QueueGroup,
		NumConsumers:        cmp.Or(raw.NumConsumers, 1),
		MaxBlockSize:        raw.MaxBlockSize,
		MaxRowsPerMessage:   raw.MaxRowsPerMessage,
		SkipBrokenMessages:  raw.SkipBrokenMessages,
		HandleErrorMode:     mode,
		ReconnectWait:       time.Duration(cmp.Or(raw.ReconnectWaitMs, 5000)) * time.Millisecond,
		StartupConnectTries: cmp.Or(raw.StartupConnectTries, 5),
		// Zero when nats_flush_interval_ms is unset: getFlushInterval falls
		// back to the session's stream_flush_interval_ms before defaulting.
		FlushInterval: time.Duration(raw.FlushIntervalMs) * time.Millisecond,
		Secure:              raw.Secure,
		Username:            cmp.Or(raw.Username, globals.Username),
		Password:            cmp.Or(raw.Password, globals.Password),
		Token:               raw.Token,
		CredentialFile:      cmp.Or(raw.CredentialFile, globals.CredentialFile),
		TLS: TLSConfig{
			Enabled:  raw.Secure,
			CertFile: raw.TLSCertFile,
			KeyFile:  raw.TLSKeyFile,
			CAFile:   raw.TLSCAFile,
		},
	}

	if cfg.NumConsumers < 1 {
		return Config{}, fmt.Errorf("%w: nats_num_consumers must be >= 1", ErrConfigError)
	}
	for _, s := range cfg.Subjects {
		if s == "" {
			return Config{}, fmt.Errorf("%w: nats_subjects contains an empty subject", ErrConfigError)
		}
	}

	return cfg, nil
}

const (
	// defaultMaxInsertBlockSize stands in for the session's own
	// max_insert_block_size default when neither the table setting nor the
	// session supplies one.
	defaultMaxInsertBlockSize = 1048576

	// defaultFlushInterval stands in for the session's own
	// stream_flush_interval_ms default under the same circumstances.
	defaultFlushInterval = 5 * time.Second
)

// getMaxBlockSize resolves the per-source block size: an explicit
// nats_max_block_size setting, or maxInsertBlockSize / N (falling back to
// defaultMaxInsertBlockSize when the caller has none to offer).
func (c Config) getMaxBlockSize(maxInsertBlockSize int) int {
	if c.MaxBlockSize > 0 {
		return c.MaxBlockSize
	}
	if maxInsertBlockSize <= 0 {
		maxInsertBlockSize = defaultMaxInsertBlockSize
	}
	if c.NumConsumers == 0 {
		return maxInsertBlockSize
	}
	size := maxInsertBlockSize / c.NumConsumers
	if size < 1 {
		size = 1
	}
	return size
}

// getFlushInterval resolves the per-pass time budget: an explicit
// nats_flush_interval_ms setting, the session's stream_flush_interval_ms,
// or defaultFlushInterval.
func (c Config) getFlushInterval(streamFlushInterval time.Duration) time.Duration {
	if c.FlushInterval > 0 {
		return c.FlushInterval
	}
	if streamFlushInterval > 0 {
		return streamFlushInterval
	}
	return defaultFlushInterval
}

// queueCapacity is the per-consumer bounded queue size: max(100000, maxBlockSize).
func (c Config) queueCapacity() int {
	const minCapacity = 100000
	if c.MaxBlockSize > minCapacity {
		return c.MaxBlockSize
	}
	return minCapacity
}

func splitServers(url, serverList string) []string {
	if url != "" {
		return []string{url}
	}
	return splitAndTrim(serverList)
}

func splitAndTrim(csv string) []string {
	var out []string
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
