package config

import (
	"fmt"
	"regexp"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config, e.g. "storage.dsn".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var knownStorage = map[string]struct{}{
	"memory":   {},
	"sqlite":   {},
	"postgres": {},
	"mssql":    {},
	"mysql":    {},
	"mongo":    {},
}

// ValidateApp statically checks app without mutating it.
func ValidateApp(app App) []Issue {
	var issues []Issue
	if strings.TrimSpace(app.Job) == "" {
		issues = append(issues, Issue{SeverityError, "job", "job must not be empty; it labels metrics"})
	}
	issues = append(issues, validateServer(app.Server)...)
	issues = append(issues, validateStorage(app.Storage)...)
	issues = append(issues, validateQuery(app.Query)...)
	issues = append(issues, validateMetrics(app.Metrics)...)
	return issues
}

func validateServer(s Server) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Addr) == "" {
		issues = append(issues, Issue{SeverityError, "server.addr", "listen address must not be empty"})
	}
	if strings.TrimSpace(s.UploadDir) == "" {
		issues = append(issues, Issue{SeverityError, "server.upload_dir", "upload directory must not be empty"})
	}
	if s.MaxUploadMB <= 0 {
		issues = append(issues, Issue{SeverityError, "server.max_upload_mb", "must be > 0"})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{SeverityError, "storage.kind", "storage.kind must not be empty"})
	}
	if _, ok := knownStorage[s.Kind]; !ok {
		issues = append(issues, Issue{
			SeverityWarning, "storage.kind",
			fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if s.Kind != "memory" && strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn", fmt.Sprintf("%s storage requires a dsn", s.Kind)})
	}
	if !identRe.MatchString(s.Collection) {
		issues = append(issues, Issue{
			SeverityError, "storage.collection",
			fmt.Sprintf("collection %q must match %s", s.Collection, identRe.String()),
		})
	}
	if s.AutoCreate && s.Kind == "memory" {
		issues = append(issues, Issue{SeverityWarning, "storage.auto_create", "ignored for memory storage"})
	}
	if s.Kind == "mongo" && s.Options.String("database", "") == "" {
		issues = append(issues, Issue{SeverityWarning, "storage.options.database", `not set; using "medinet"`})
	}
	return issues
}

func validateQuery(q Query) []Issue {
	var issues []Issue
	if len(q.Fields) == 0 {
		return append(issues, Issue{SeverityError, "query.fields", "at least one field is required"})
	}
	seen := make(map[string]struct{}, len(q.Fields))
	for i, f := range q.Fields {
		path := fmt.Sprintf("query.fields[%d]", i)
		if strings.TrimSpace(f) == "" {
			issues = append(issues, Issue{SeverityError, path, "field name must not be empty"})
			continue
		}
		if strings.HasPrefix(f, "$") {
			issues = append(issues, Issue{SeverityError, path, "field name must not start with $"})
		}
		if _, dup := seen[f]; dup {
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("duplicate field %q", f)})
		}
		seen[f] = struct{}{}
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
		return nil
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			return []Issue{{SeverityError, "metrics.pushgateway_url", "prometheus backend requires a pushgateway URL"}}
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			return []Issue{{SeverityError, "metrics.datadog_addr", "datadog backend requires an agent address"}}
		}
	default:
		return []Issue{{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q", m.Backend)}}
	}
	return nil
}
