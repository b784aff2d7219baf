package config

// LoggingConfig configures logging. It is handed to logging.Initialize.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`                     // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"`                   // json, console
	File       string          `yaml:"file" json:"file,omitempty"`                       // empty logs to stderr
	Categories map[string]bool `yaml:"categories,omitempty" json:"categories,omitempty"` // category -> enabled; unlisted categories are enabled
}
