package telemetry

import (
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ciEnvKeys are checked in order to tag spans with the CI system that ran
// the count.
var ciEnvKeys = []struct {
	env, name string
}{
	{"TEAMCITY_VERSION", "teamcity"},
	{"GITHUB_ACTIONS", "github-actions"},
	{"GITLAB_CI", "gitlab"},
	{"JENKINS_URL", "jenkins"},
	{"CI", "generic"},
}

// buildResource describes this process: service, host and CI system.
func buildResource(cfg *Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		attrs = append(attrs, semconv.HostName(host))
	}
	if ci := detectCI(); ci != "" {
		attrs = append(attrs, attribute.String("dexcount.ci", ci))
	}
	for k, v := range cfg.ResourceAttrs {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func detectCI() string {
	for _, k := range ciEnvKeys {
		if os.Getenv(k.env) != "" {
			return k.name
		}
	}
	return ""
}
