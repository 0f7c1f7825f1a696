package config

// Defaults applied by WithDefaults when the corresponding field is unset.
const (
	DefaultAddr        = ":8080"
	DefaultBotsDir     = "./bots"
	DefaultBackend     = "bow"
	DefaultWorkers     = 2
	DefaultStoreDriver = "memory"
	DefaultCacheSize   = 256
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
)

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.BotsDir == "" {
		c.BotsDir = DefaultBotsDir
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"en"}
	}
	if c.Engine.Backend == "" {
		c.Engine.Backend = DefaultBackend
	}
	if c.Engine.DefaultLanguage == "" {
		c.Engine.DefaultLanguage = c.Languages[0]
	}
	if c.Training.Workers <= 0 {
		c.Training.Workers = DefaultWorkers
	}
	if c.ModelStore.Driver == "" {
		c.ModelStore.Driver = DefaultStoreDriver
	}
	if c.ModelStore.Path == "" {
		switch c.ModelStore.Driver {
		case "file":
			c.ModelStore.Path = "~/.nlud/models"
		case "sqlite":
			c.ModelStore.Path = "~/.nlud/models.db"
		}
	}
	if c.ModelStore.CacheSize <= 0 {
		c.ModelStore.CacheSize = DefaultCacheSize
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	return c
}
