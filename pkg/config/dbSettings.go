package config

// DbSettings selects and configures the durable store backend.
type DbSettings struct {
	Type       string `mapstructure:"type" validate:"omitempty,oneof=postgres mongo spanner"`
	DSN        string `mapstructure:"dsn"`        // postgres
	URI        string `mapstructure:"uri"`        // mongo connection string or spanner database path
	DBName     string `mapstructure:"db_name"`    // mongo
	Collection string `mapstructure:"collection"` // mongo
}

// ServerSettings configures the receiver's HTTP listener.
type ServerSettings struct {
	Port     int    `mapstructure:"port" validate:"gt=0"`
	BasePath string `mapstructure:"base_path"`
}
