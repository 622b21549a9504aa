package molekule

import (
	"context"
	_ "embed"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/purehome/internal/authstate"
	"github.com/joshp123/purehome/internal/config"
	"github.com/joshp123/purehome/internal/core"
	"github.com/joshp123/purehome/internal/homebus"
	"github.com/joshp123/purehome/internal/logging"
	"github.com/joshp123/purehome/internal/rate"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the PureHome plugin contract.
type Plugin struct {
	service       *Service
	health        core.HealthStatus
	healthMessage string
}

var (
	_ rate.RateLimited = (*Plugin)(nil)
	_ core.Runner      = (*Plugin)(nil)
)

// NewPlugin constructs a Molekule plugin from config.
func NewPlugin(cfg *config.MolekuleConfig, state config.StateConfig, bus *homebus.Client) (Plugin, bool) {
	if cfg == nil {
		return Plugin{}, false
	}

	runtimeCfg, err := ConfigFromSettings(cfg)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error()}, true
	}

	provider, err := newDefaultProvider(runtimeCfg.Email, runtimeCfg.Password)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error()}, true
	}

	var blob authstate.BlobStore
	if state.S3 != nil {
		store, err := authstate.NewS3Store(authstate.BlobConfig{
			Endpoint:      state.S3.Endpoint,
			Bucket:        state.S3.Bucket,
			Prefix:        state.S3.Prefix,
			Region:        state.S3.Region,
			AccessKeyFile: state.S3.AccessKeyFile,
			SecretKeyFile: state.S3.SecretKeyFile,
		})
		if err != nil {
			return Plugin{health: core.HealthError, healthMessage: err.Error()}, true
		}
		blob = store
	}
	store := authstate.NewStore("molekule", runtimeCfg.Email, state.Dir, blob)

	client, err := NewClient(runtimeCfg, Plugin{}.RateLimits(), provider, store)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error()}, true
	}

	log := logging.Get(logging.InfoLevel).Named("molekule")
	service := NewService(client, bus, runtimeCfg.RefreshInterval, log)

	return Plugin{service: service, health: core.HealthHealthy}, true
}

func (p Plugin) ID() string {
	return "molekule"
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "molekule",
		DisplayName: "Molekule",
		Version:     "0.1.0",
		Endpoints: []string{
			"/api/molekule/devices",
			"/api/molekule/devices/{serial}/sensors",
			"/api/molekule/devices/{serial}/aqi",
			"/api/molekule/devices/{serial}/power",
			"/api/molekule/devices/{serial}/fan-speed",
			"/api/molekule/devices/{serial}/auto",
			"/api/molekule/refresh",
		},
	}
}

func (p Plugin) AgentsMD() string {
	return agentsMD
}

func (p Plugin) RateLimits() rate.Declaration {
	return rate.Provider("molekule").
		MaxRequestsPer(rate.Minute, 60).
		MaxRequestsPer(rate.Day, 5000).
		ReadHeaders(rate.StandardHeaders())
}

func (p Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "molekule-overview", JSON: dashboardJSON}}
}

func (p Plugin) Collectors() []prometheus.Collector {
	if p.service == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.service)}
}

// Start runs the refresh loop until ctx is cancelled.
func (p Plugin) Start(ctx context.Context) {
	if p.service == nil {
		return
	}
	p.service.Start(ctx)
}

func (p Plugin) Close() error {
	if p.service == nil {
		return nil
	}
	return p.service.Close()
}

func (p Plugin) Health() core.HealthStatus {
	if p.health != core.HealthHealthy {
		return p.health
	}
	if p.service.Snapshot() == nil || p.service.LastError() != nil {
		return core.HealthDegraded
	}
	return core.HealthHealthy
}

func (p Plugin) HealthMessage() string {
	if p.healthMessage != "" {
		return p.healthMessage
	}
	if p.service != nil {
		if p.service.Snapshot() == nil {
			return "waiting for first refresh"
		}
		if err := p.service.LastError(); err != nil {
			return err.Error()
		}
	}
	return ""
}
