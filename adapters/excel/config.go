package excel

// Config controls how tabular files become datasets
type Config struct {
	// Sheet is the XLSX sheet to read; empty means the first sheet.
	Sheet string `json:"sheet" yaml:"sheet"`
	// Factors lists columns kept as factors even when numeric, e.g. IDs.
	Factors []string `json:"factors" yaml:"factors"`
}

// DefaultConfig reads the first sheet and infers every column type
func DefaultConfig() Config {
	return Config{}
}
