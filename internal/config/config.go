// Package config defines the JSON-serializable application configuration,
// its defaults, a flag/environment overlay and a static validator.
//
// Example (trimmed):
//
//	{
//	  "job":     "medinet",
//	  "server":  { "addr": ":5000", "upload_dir": "./uploads", "max_upload_mb": 32 },
//	  "storage": { "kind": "postgres", "dsn": "postgres://...", "collection": "medinetprocesses",
//	               "auto_create": true },
//	  "query":   { "fields": ["Patient_Name", "Chart_ID"] },
//	  "metrics": { "backend": "prometheus", "pushgateway_url": "http://pushgateway:9091" }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// App is the top-level configuration object.
type App struct {
	// Job labels metrics and log lines.
	Job     string  `json:"job"`
	Server  Server  `json:"server"`
	Storage Storage `json:"storage"`
	Query   Query   `json:"query"`
	Metrics Metrics `json:"metrics"`
}

// Server configures the HTTP boundary.
type Server struct {
	// Addr is the listen address, e.g. ":5000".
	Addr string `json:"addr"`
	// UploadDir receives uploaded files until they are decoded.
	UploadDir string `json:"upload_dir"`
	// MaxUploadMB caps the multipart request body.
	MaxUploadMB int `json:"max_upload_mb"`
}

// Storage selects the record store.
type Storage struct {
	// Kind is a registered storage kind: memory, sqlite, postgres, mssql,
	// mysql or mongo.
	Kind string `json:"kind"`
	// DSN is the backend connection string. Unused by memory.
	DSN string `json:"dsn"`
	// Collection is the table (SQL) or collection (mongo) name.
	Collection string `json:"collection"`
	// AutoCreate creates the table or collection at startup.
	AutoCreate bool `json:"auto_create"`
	// Options holds backend-specific settings, e.g. mongo "database".
	Options Options `json:"options"`
}

// Query configures the condition builder.
type Query struct {
	// Fields is the enumeration of selectable record fields.
	Fields []string `json:"fields"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "", "none", "prometheus" or "datadog".
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr"`
}

// Default returns the configuration used when no file is given.
func Default() App {
	return App{
		Job: "medinet",
		Server: Server{
			Addr:        ":5000",
			UploadDir:   "./uploads",
			MaxUploadMB: 32,
		},
		Storage: Storage{
			Kind:       "memory",
			Collection: "medinetprocesses",
			Options:    Options{},
		},
		Query: Query{
			Fields: []string{"Patient_Name", "Chart_ID"},
		},
	}
}

// Load reads a JSON file over Default, so keys missing from the file keep
// their default values.
func Load(path string) (App, error) {
	app := Default()
	f, err := os.Open(path)
	if err != nil {
		return app, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&app); err != nil {
		return app, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if app.Storage.Options == nil {
		app.Storage.Options = Options{}
	}
	return app, nil
}

// Options fetches typed values from a free-form JSON object, returning the
// given default when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers arrive as float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings; non-string elements are skipped. Missing keys yield nil.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object as an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
