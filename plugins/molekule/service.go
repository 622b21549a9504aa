package molekule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joshp123/purehome/internal/homebus"
)

const manufacturer = "Molekule"

// deviceState is the published per-device document: the raw device
// record plus derived fields and the latest sensor readings.
type deviceState struct {
	Device
	AQILevel  string         `json:"aqi_level"`
	Auto      bool           `json:"auto"`
	Sensors   SensorSnapshot `json:"sensors,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Service polls the cloud on an interval and publishes snapshots.
// Refreshes are single-flight; readers always see the last complete
// snapshot, never a partial one.
type Service struct {
	client   *Client
	bus      *homebus.Client
	interval time.Duration
	log      *zap.SugaredLogger

	snapshot  atomic.Pointer[Snapshot]
	refreshMu sync.Mutex
	kick      chan struct{}

	mu         sync.Mutex
	lastErr    error
	discovered map[string]bool
}

func NewService(client *Client, bus *homebus.Client, interval time.Duration, log *zap.SugaredLogger) *Service {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	return &Service{
		client:     client,
		bus:        bus,
		interval:   interval,
		log:        log,
		kick:       make(chan struct{}, 1),
		discovered: make(map[string]bool),
	}
}

// Start runs the refresh loop until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		case <-s.kick:
			s.refresh(ctx)
		}
	}
}

// RequestRefresh schedules an out-of-band refresh. Non-blocking; a
// pending request is enough.
func (s *Service) RequestRefresh() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Snapshot returns the last complete snapshot, or nil before the
// first successful refresh.
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// LastError returns the failure of the most recent refresh, if any.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) refresh(ctx context.Context) {
	if !s.refreshMu.TryLock() {
		return
	}
	defer s.refreshMu.Unlock()

	tickID := uuid.NewString()[:8]
	started := time.Now()

	list, err := s.client.Devices(ctx)
	if err != nil {
		s.recordFailure(err)
		s.log.Errorw("refresh failed", "tick", tickID, "error", err)
		return
	}
	if list == nil {
		s.recordFailure(errNoDeviceData)
		s.log.Warnw("refresh returned no device data", "tick", tickID)
		return
	}

	next := &Snapshot{
		Devices:   list.Content,
		Sensors:   make(map[string]SensorSnapshot),
		FetchedAt: time.Now(),
	}

	for _, device := range list.Content {
		caps := CapabilitiesForModel(device.Model())
		if !caps.HasSensorData {
			continue
		}
		// One device's telemetry failure never spoils the others.
		readings, err := s.client.SensorData(ctx, device.SerialNumber)
		if err != nil {
			s.log.Warnw("sensor data unavailable",
				"tick", tickID, "serial", device.SerialNumber, "error", err)
			continue
		}
		if readings != nil {
			next.Sensors[device.SerialNumber] = readings
		}
	}

	s.snapshot.Store(next)
	s.recordFailure(nil)
	s.publish(next)

	s.log.Infow("refresh complete",
		"tick", tickID,
		"devices", len(next.Devices),
		"elapsed", time.Since(started).Round(time.Millisecond))
}

func (s *Service) recordFailure(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Service) publish(snapshot *Snapshot) {
	if s.bus == nil {
		return
	}

	for _, device := range snapshot.Devices {
		s.announce(device)

		state := deviceState{
			Device:    device,
			AQILevel:  AQILevel(device.AQI),
			Auto:      device.AutoMode(),
			Sensors:   snapshot.Sensors[device.SerialNumber],
			FetchedAt: snapshot.FetchedAt,
		}
		if err := s.bus.PublishState("molekule", device.SerialNumber, state); err != nil {
			s.log.Warnw("state publish failed", "serial", device.SerialNumber, "error", err)
		}
	}
}

// announce publishes discovery payloads once per device per process.
func (s *Service) announce(device Device) {
	s.mu.Lock()
	seen := s.discovered[device.SerialNumber]
	s.discovered[device.SerialNumber] = true
	s.mu.Unlock()
	if seen {
		return
	}

	identity := homebus.NewIdentity(
		device.SerialNumber, device.Name, manufacturer,
		device.Model(), device.FirmwareVersion, device.MACAddress)
	stateTopic := s.bus.StateTopic("molekule", device.SerialNumber)
	availability := s.bus.AvailabilityTopic()

	entities := []homebus.DiscoveryEntity{
		homebus.FanEntity(identity, device.SerialNumber, stateTopic, availability),
	}
	if CapabilitiesForModel(device.Model()).HasSensorData {
		entities = append(entities,
			homebus.SensorEntity(identity, device.SerialNumber, "PM2_5", "µg/m³", "pm25", stateTopic, availability),
			homebus.SensorEntity(identity, device.SerialNumber, "PM10", "µg/m³", "pm10", stateTopic, availability),
			homebus.SensorEntity(identity, device.SerialNumber, "RH", "%", "humidity", stateTopic, availability),
			homebus.SensorEntity(identity, device.SerialNumber, "TVOC", "ppb", "volatile_organic_compounds_parts", stateTopic, availability),
			homebus.SensorEntity(identity, device.SerialNumber, "CO2", "ppm", "carbon_dioxide", stateTopic, availability),
		)
	}

	for _, entity := range entities {
		if err := s.bus.PublishDiscovery(entity); err != nil {
			s.log.Warnw("discovery publish failed",
				"serial", device.SerialNumber, "entity", entity.ObjectID, "error", err)
		}
	}
}

// Close releases the API client. The bus is shared and closed by the
// daemon.
func (s *Service) Close() error {
	s.client.Close()
	return nil
}
