package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// writeMetrics prints the memstore_* families in the Prometheus text format.
func writeMetrics(w io.Writer) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "Warning: failed to gather metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "memstore_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			fmt.Fprintf(w, "Warning: failed to write metric %s: %v\n", mf.GetName(), err)
			return
		}
	}
}
