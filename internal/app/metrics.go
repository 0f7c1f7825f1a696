package app

import "github.com/prometheus/client_golang/prometheus"

var botsMounted = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "nlud",
		Name:      "bots_mounted",
		Help:      "Bots currently mounted",
	},
)

func init() {
	prometheus.MustRegister(botsMounted)
}
