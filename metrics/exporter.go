package metrics

import (
	"net/http"
	_ "net/http/pprof"

	"contrib.go.opencensus.io/exporter/prometheus"
	logging "github.com/ipfs/go-log/v2"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats/view"
)

var log = logging.Logger("metrics")

// Exporter returns a prometheus scrape handler serving every registered
// view under the given namespace.
func Exporter(namespace string) http.Handler {
	if err := view.Register(DefaultViews...); err != nil {
		log.Errorf("cannot register metric views: %s", err)
	}

	// The opencensus exporter wants a concrete *Registry, while the
	// prometheus globals are typed as interfaces. The globals are a
	// *Registry in practice, so downcast, and fall back to a private
	// registry if that ever stops holding.
	registry, ok := promclient.DefaultRegisterer.(*promclient.Registry)
	if !ok {
		log.Warnf("default prometheus registerer has unexpected type %T, process collectors will be missing from the scrape", promclient.DefaultRegisterer)
		registry = promclient.NewRegistry()
	}

	exporter, err := prometheus.NewExporter(prometheus.Options{
		Registry:  registry,
		Namespace: namespace,
	})
	if err != nil {
		log.Errorf("creating prometheus stats exporter: %v", err)
	}
	return exporter
}
