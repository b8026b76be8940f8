package config

type Observability struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`
	// TracingURL may be empty; tracing is then left uninitialized.
	TracingURL string `mapstructure:"tracing_url"`
}
