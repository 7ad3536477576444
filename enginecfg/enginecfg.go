// Package enginecfg loads the engine's configuration surface (spec.md §6):
// a small record naming the collector's substring filter, whether to
// capture output, and whether to stop on the first failure.
//
// Grounded on cmd/tast/internal/run/config/vars.go's use of
// gopkg.in/yaml.v2 to decode a small declarative config blob; this engine
// has no vars-merging concern, so only the decode step is carried over.
package enginecfg

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/apexrun/fixrunner/report"
	"github.com/apexrun/fixrunner/rterrors"
)

// Config is the engine's configuration surface (spec.md §6).
type Config struct {
	// Pattern is a substring filter the collector applies to test ids;
	// the engine itself never inspects it.
	Pattern string `yaml:"pattern"`

	// CaptureOutput, if true, redirects the host runtime's stdout/stderr
	// into per-test (or per-batch) buffers during Execute/RunGathered.
	CaptureOutput bool `yaml:"capture_output"`

	// FailFast, if true, tells the orchestrator to stop after the first
	// failed result, drain all live teardown layers, and return.
	FailFast bool `yaml:"fail_fast"`

	// EventCallback, if set, receives every Sink event the orchestrator
	// emits. It is not part of the YAML document: a sink is a live Go
	// value, not configuration data.
	EventCallback report.Sink `yaml:"-"`
}

// Default returns a Config with the engine's zero-value defaults: no
// pattern filter, no output capture, fail-fast disabled.
func Default() Config {
	return Config{}
}

// Load reads and decodes a YAML document at path into a Config. The
// returned Config's EventCallback is always nil; callers wire one in
// afterwards.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, rterrors.Wrap(err, "enginecfg: read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, rterrors.Wrapf(err, "enginecfg: parse %s", path)
	}
	return cfg, nil
}

// Sink returns cfg's EventCallback, or report.NopSink{} if none was set,
// so callers never need a nil check before handing a sink to the
// orchestrator.
func (cfg Config) Sink() report.Sink {
	if cfg.EventCallback == nil {
		return report.NopSink{}
	}
	return cfg.EventCallback
}
