// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Layer file and environment overrides through Load.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the record store: mem or mongo.
	StoreBackend string `koanf:"store_backend"`

	// MongoURI and MongoDatabase configure the mongo record store.
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// SinkBackend selects artifact storage: fs, s3, or none.
	SinkBackend string `koanf:"sink_backend"`

	// SinkDir is the artifact root for the fs sink.
	SinkDir string `koanf:"sink_dir"`

	// S3Bucket, S3Region, S3Endpoint configure the s3 sink.
	S3Bucket    string `koanf:"s3_bucket"`
	S3Region    string `koanf:"s3_region"`
	S3Endpoint  string `koanf:"s3_endpoint"`
	S3PathStyle bool   `koanf:"s3_path_style"`

	// InvokerBackend selects step dispatch: local or lambda.
	InvokerBackend string `koanf:"invoker_backend"`

	// LambdaRegion is used when InvokerBackend is lambda.
	LambdaRegion string `koanf:"lambda_region"`

	// FreshnessWindowMinutes bounds how old a cached result may be before a
	// new computation runs.
	FreshnessWindowMinutes int `koanf:"freshness_window_minutes"`

	// RunTTLHours and CacheTTLHours control record expiry stamps.
	RunTTLHours   int `koanf:"run_ttl_hours"`
	CacheTTLHours int `koanf:"cache_ttl_hours"`

	// BusCapacity bounds the in-memory notification bus.
	BusCapacity int `koanf:"bus_capacity"`

	// SeasonStart and SeasonEnd (MM-DD) bound the default match window when a
	// request does not carry explicit dates.
	SeasonStart string `koanf:"season_start"`
	SeasonEnd   string `koanf:"season_end"`

	// MatchPageSize bounds one page of the match query.
	MatchPageSize int `koanf:"match_page_size"`

	// MaxRankingsLimit caps GET /rankings?limit.
	MaxRankingsLimit int `koanf:"max_rankings_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		StoreBackend:           "mem",
		MongoURI:               "mongodb://localhost:27017",
		MongoDatabase:          "fieldrank",
		SinkBackend:            "fs",
		SinkDir:                "artifacts",
		S3Region:               "us-east-1",
		InvokerBackend:         "local",
		FreshnessWindowMinutes: 60,
		RunTTLHours:            2,
		CacheTTLHours:          24,
		BusCapacity:            1024,
		SeasonStart:            "08-01",
		SeasonEnd:              "12-31",
		MatchPageSize:          500,
		MaxRankingsLimit:       100,
	}
}
