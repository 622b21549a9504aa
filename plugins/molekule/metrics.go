package molekule

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes the last snapshot as gauges. Scrapes never
// hit the cloud; they read what the refresh loop already fetched.
type MetricsCollector struct {
	service *Service

	fanSpeed    *prometheus.GaugeVec
	online      *prometheus.GaugeVec
	autoMode    *prometheus.GaugeVec
	pecoFilter  *prometheus.GaugeVec
	aqiLevel    *prometheus.GaugeVec
	pollutant   *prometheus.GaugeVec
	lastRefresh prometheus.Gauge
	success     prometheus.Gauge
}

func NewMetricsCollector(service *Service) *MetricsCollector {
	labels := []string{"serial", "name"}
	return &MetricsCollector{
		service: service,
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "purehome_molekule_fan_speed",
			Help: "Current fan speed per device (1-6)",
		}, labels),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "purehome_molekule_online_bool",
			Help: "Device cloud connectivity (1=online, 0=offline)",
		}, labels),
		autoMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "purehome_molekule_auto_mode_bool",
			Help: "Smart mode active per device (1=auto, 0=manual)",
		}, labels),
		pecoFilter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "purehome_molekule_peco_filter_percent",
			Help: "Remaining PECO filter life per device",
		}, labels),
		aqiLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "purehome_molekule_aqi_level",
			Help: "Air quality level per device (1=good .. 4=very_bad, 0=unknown)",
		}, labels),
		pollutant: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "purehome_molekule_pollutant",
			Help: "Latest pollutant reading per device",
		}, []string{"serial", "name", "pollutant"}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "purehome_molekule_last_refresh_timestamp_seconds",
			Help: "Last successful refresh timestamp (epoch seconds)",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "purehome_molekule_refresh_success",
			Help: "Last refresh success (1=ok, 0=error)",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.fanSpeed.Describe(ch)
	c.online.Describe(ch)
	c.autoMode.Describe(ch)
	c.pecoFilter.Describe(ch)
	c.aqiLevel.Describe(ch)
	c.pollutant.Describe(ch)
	c.lastRefresh.Describe(ch)
	c.success.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.service.Snapshot()
	if snapshot == nil || c.service.LastError() != nil {
		c.success.Set(0)
	} else {
		c.success.Set(1)
	}

	if snapshot != nil {
		c.fanSpeed.Reset()
		c.online.Reset()
		c.autoMode.Reset()
		c.pecoFilter.Reset()
		c.aqiLevel.Reset()
		c.pollutant.Reset()

		for _, device := range snapshot.Devices {
			labels := prometheus.Labels{
				"serial": device.SerialNumber,
				"name":   device.Name,
			}
			if speed, ok := parseSpeed(device.FanSpeed); ok {
				c.fanSpeed.With(labels).Set(speed)
			}
			c.online.With(labels).Set(boolToFloat(device.Online == "true"))
			c.autoMode.With(labels).Set(boolToFloat(device.AutoMode()))
			if life, err := strconv.ParseFloat(device.PECOFilter, 64); err == nil {
				c.pecoFilter.With(labels).Set(life)
			}
			c.aqiLevel.With(labels).Set(aqiOrdinal(AQILevel(device.AQI)))

			for pollutant, value := range snapshot.Sensors[device.SerialNumber] {
				c.pollutant.With(prometheus.Labels{
					"serial":    device.SerialNumber,
					"name":      device.Name,
					"pollutant": pollutant,
				}).Set(value)
			}
		}

		c.lastRefresh.Set(float64(snapshot.FetchedAt.Unix()))
	}

	c.fanSpeed.Collect(ch)
	c.online.Collect(ch)
	c.autoMode.Collect(ch)
	c.pecoFilter.Collect(ch)
	c.aqiLevel.Collect(ch)
	c.pollutant.Collect(ch)
	c.lastRefresh.Collect(ch)
	c.success.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
