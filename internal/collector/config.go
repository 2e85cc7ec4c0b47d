// Package collector synthesizes the remote pipeline configuration for one
// ingestion shard. The result is modeled as explicit structs and serialized
// to JSON; identical inputs yield byte-identical output, which keeps the
// config hash stable at the collector.
package collector

// Config is the root of an emitted collector configuration. Component maps
// are keyed by component name; encoding/json sorts map keys, so
// serialization is deterministic.
type Config struct {
	Receivers  map[string]OTLPReceiver `json:"receivers"`
	Processors map[string]any          `json:"processors,omitempty"`
	Exporters  map[string]any          `json:"exporters"`
	Extensions map[string]any          `json:"extensions"`
	Service    Service                 `json:"service"`
}

type OTLPReceiver struct {
	Protocols OTLPProtocols `json:"protocols"`
}

type OTLPProtocols struct {
	GRPC OTLPTransport `json:"grpc"`
	HTTP OTLPTransport `json:"http"`
}

type OTLPTransport struct {
	Endpoint        string        `json:"endpoint"`
	IncludeMetadata bool          `json:"include_metadata,omitempty"`
	CORS            *CORSSettings `json:"cors,omitempty"`
}

type CORSSettings struct {
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedHeaders []string `json:"allowed_headers"`
}

type MemoryLimiter struct {
	CheckInterval        string `json:"check_interval"`
	LimitPercentage      int    `json:"limit_percentage"`
	SpikeLimitPercentage int    `json:"spike_limit_percentage"`
}

type ClickHouseExporter struct {
	Endpoint       string       `json:"endpoint"`
	Database       string       `json:"database"`
	Username       string       `json:"username"`
	Password       string       `json:"password"`
	TTL            string       `json:"ttl"`
	Timeout        string       `json:"timeout"`
	RetryOnFailure RetrySetting `json:"retry_on_failure"`
}

type RetrySetting struct {
	Enabled         bool   `json:"enabled"`
	InitialInterval string `json:"initial_interval"`
	MaxInterval     string `json:"max_interval"`
	MaxElapsedTime  string `json:"max_elapsed_time"`
}

type Service struct {
	Extensions []string            `json:"extensions"`
	Pipelines  map[string]Pipeline `json:"pipelines"`
}

type Pipeline struct {
	Receivers  []string `json:"receivers"`
	Processors []string `json:"processors,omitempty"`
	Exporters  []string `json:"exporters"`
}

// clickhouseEndpointRef is resolved by the collector from its own
// environment; the control plane never embeds the endpoint itself.
const clickhouseEndpointRef = "${env:CLICKHOUSE_ENDPOINT}"

// NopConfig is the configuration delivered to a shard with no tenant bound:
// receivers stay open, every signal drains to the nop exporter, and the
// health-check extension keeps the process observable.
func NopConfig() *Config {
	nopPipeline := Pipeline{
		Receivers: []string{"otlp"},
		Exporters: []string{"nop"},
	}
	return &Config{
		Receivers: map[string]OTLPReceiver{
			"otlp": {
				Protocols: OTLPProtocols{
					GRPC: OTLPTransport{Endpoint: "0.0.0.0:4317"},
					HTTP: OTLPTransport{Endpoint: "0.0.0.0:4318"},
				},
			},
		},
		Exporters: map[string]any{
			"nop": struct{}{},
		},
		Extensions: map[string]any{
			"health_check": struct{}{},
		},
		Service: Service{
			Extensions: []string{"health_check"},
			Pipelines: map[string]Pipeline{
				"logs/nop":    nopPipeline,
				"traces/nop":  nopPipeline,
				"metrics/nop": nopPipeline,
			},
		},
	}
}

// TenantConfig routes everything received on the shard into the tenant's
// database using the managed connection's write credential.
func TenantConfig(database, username, password string) *Config {
	cors := &CORSSettings{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	}
	tenantPipeline := Pipeline{
		Receivers:  []string{"otlp/hyperdx"},
		Processors: []string{"memory_limiter", "batch"},
		Exporters:  []string{"clickhouse"},
	}
	return &Config{
		Receivers: map[string]OTLPReceiver{
			"otlp/hyperdx": {
				Protocols: OTLPProtocols{
					GRPC: OTLPTransport{Endpoint: "0.0.0.0:4317", IncludeMetadata: true},
					HTTP: OTLPTransport{Endpoint: "0.0.0.0:4318", IncludeMetadata: true, CORS: cors},
				},
			},
		},
		Processors: map[string]any{
			"memory_limiter": MemoryLimiter{
				CheckInterval:        "2s",
				LimitPercentage:      75,
				SpikeLimitPercentage: 20,
			},
			"batch": struct{}{},
		},
		Exporters: map[string]any{
			"clickhouse": ClickHouseExporter{
				Endpoint: clickhouseEndpointRef,
				Database: database,
				Username: username,
				Password: password,
				TTL:      "720h",
				Timeout:  "5s",
				RetryOnFailure: RetrySetting{
					Enabled:         true,
					InitialInterval: "5s",
					MaxInterval:     "30s",
					MaxElapsedTime:  "300s",
				},
			},
		},
		Extensions: map[string]any{
			"health_check": struct{}{},
		},
		Service: Service{
			Extensions: []string{"health_check"},
			Pipelines: map[string]Pipeline{
				"logs":    tenantPipeline,
				"traces":  tenantPipeline,
				"metrics": tenantPipeline,
			},
		},
	}
}
