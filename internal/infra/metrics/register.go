package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pending      []prometheus.Collector
	registerOnce sync.Once
)

// register is called from each file's init; nothing reaches a registry until
// MustRegister.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister publishes every collector on the default registry. Only the
// first call has an effect, so tests and main can both call it.
func MustRegister() {
	registerOnce.Do(func() { prometheus.MustRegister(pending...) })
}

var labelFolder = strings.NewReplacer(" ", "_", ":", "_", "/", "_")

// norm folds a label value to a stable form: trimmed, lower case, separators
// as underscores, and "unknown" for empty.
func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return labelFolder.Replace(s)
}
