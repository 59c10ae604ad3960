package config

import (
	"flag"
	"strings"
)

// Flags holds command-line settings. Each flag's default is seeded from an
// environment variable, so explicit flags win over the environment, and
// non-empty values of either win over the config file (see Apply).
type Flags struct {
	ConfigPath     string
	Addr           string
	UploadDir      string
	StorageKind    string
	DSN            string
	MetricsBackend string
	PushgatewayURL string
	DatadogAddr    string
	Validate       bool
	Verbose        bool
}

// LoadFromArgs defines flags on fs with defaults taken from getenv and parses
// args. Callers pass a private FlagSet and a map-backed getenv in tests.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Flags, error) {
	f := &Flags{}

	boolEnv := func(k string) bool {
		switch strings.ToLower(getenv(k)) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	}

	fs.StringVar(&f.ConfigPath, "config", getenv("MEDINET_CONFIG"), "Path to a JSON config file.")
	fs.StringVar(&f.Addr, "addr", getenv("MEDINET_ADDR"), "HTTP listen address (default :5000).")
	fs.StringVar(&f.UploadDir, "upload-dir", getenv("MEDINET_UPLOAD_DIR"), "Directory for uploaded files.")
	fs.StringVar(&f.StorageKind, "storage", getenv("MEDINET_STORAGE"), "Storage kind: memory, sqlite, postgres, mssql, mysql, mongo.")
	fs.StringVar(&f.DSN, "dsn", getenv("MEDINET_DSN"), "Storage connection string.")
	fs.StringVar(&f.MetricsBackend, "metrics-backend", getenv("METRICS_BACKEND"), "Metrics backend: none, prometheus, datadog.")
	fs.StringVar(&f.PushgatewayURL, "pushgateway-url", getenv("PUSHGATEWAY_URL"), "Prometheus Pushgateway URL.")
	fs.StringVar(&f.DatadogAddr, "datadog-addr", getenv("DD_AGENT_ADDR"), "DogStatsD address.")
	fs.BoolVar(&f.Validate, "validate", false, "Validate the configuration and exit.")
	fs.BoolVar(&f.Verbose, "v", boolEnv("MEDINET_VERBOSE"), "Verbose logging.")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// Apply overlays every non-empty flag value onto app.
func (f *Flags) Apply(app *App) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&app.Server.Addr, f.Addr)
	set(&app.Server.UploadDir, f.UploadDir)
	set(&app.Storage.Kind, f.StorageKind)
	set(&app.Storage.DSN, f.DSN)
	set(&app.Metrics.Backend, f.MetricsBackend)
	set(&app.Metrics.PushgatewayURL, f.PushgatewayURL)
	set(&app.Metrics.DatadogAddr, f.DatadogAddr)
}
