package molekule

import (
	"encoding/json"
	"time"
)

// DeviceList is the /users/me/devices/ response envelope.
type DeviceList struct {
	Content []Device `json:"content"`
}

// Device is one purifier record from the cloud. The API reports every
// runtime field as a string, including booleans and counters.
type Device struct {
	SerialNumber    string     `json:"serialNumber"`
	Name            string     `json:"name"`
	MACAddress      string     `json:"macAddress"`
	SubProduct      SubProduct `json:"subProduct"`
	FirmwareVersion string     `json:"firmwareVersion"`
	FanSpeed        string     `json:"fanspeed"`
	PECOFilter      string     `json:"pecoFilter"`
	Mode            string     `json:"mode"`
	Online          string     `json:"online"`
	AQI             string     `json:"aqi"`
	Silent          string     `json:"silent"`
	Burst           string     `json:"burst"`
}

// SubProduct carries the model name. Null stripping can turn the
// whole object into an empty string, so decoding tolerates both.
type SubProduct struct {
	Name string `json:"name"`
}

func (s *SubProduct) UnmarshalJSON(data []byte) error {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		s.Name = obj.Name
		return nil
	}
	// Non-object value (cleaned null): no model information.
	s.Name = ""
	return nil
}

// fillDefaults substitutes presentation defaults for fields the cloud
// occasionally omits.
func (d *Device) fillDefaults() {
	if d.FanSpeed == "" {
		d.FanSpeed = "1"
	}
	if d.PECOFilter == "" {
		d.PECOFilter = "0"
	}
	if d.Mode == "" {
		d.Mode = "manual"
	}
	if d.Online == "" {
		d.Online = "false"
	}
}

// Model returns the device model name, or a placeholder.
func (d *Device) Model() string {
	if d.SubProduct.Name == "" {
		return "Unknown Model"
	}
	return d.SubProduct.Name
}

// AutoMode reports whether the purifier runs its smart mode.
func (d *Device) AutoMode() bool {
	return d.Mode == "smart"
}

// SensorSnapshot holds the most recent valid reading per pollutant.
// Pollutants without a valid reading in the window carry no key.
type SensorSnapshot map[string]float64

// Capabilities describes what a device model can report.
type Capabilities struct {
	HasSensorData    bool
	SupportedSensors []string
}

var modelCapabilities = map[string]Capabilities{
	"Molekule Air": {
		HasSensorData:    false,
		SupportedSensors: []string{"air_quality", "peco_filter"},
	},
	"Molekule Air Pro": {
		HasSensorData:    true,
		SupportedSensors: []string{"air_quality", "humidity", "pm25", "pm10", "voc", "co2", "peco_filter"},
	},
}

var defaultCapabilities = Capabilities{
	HasSensorData:    false,
	SupportedSensors: []string{"air_quality", "peco_filter"},
}

// CapabilitiesForModel returns the sensor capabilities of a model.
func CapabilitiesForModel(model string) Capabilities {
	if caps, ok := modelCapabilities[model]; ok {
		return caps
	}
	return defaultCapabilities
}

// AQI levels reported on the devices endpoint.
const (
	AQIUnknown  = "unknown"
	AQIGood     = "good"
	AQIModerate = "moderate"
	AQIBad      = "bad"
	AQIVeryBad  = "very_bad"
)

var aqiMapping = map[string]string{
	"good":     AQIGood,
	"moderate": AQIModerate,
	"bad":      AQIBad,
	"very bad": AQIVeryBad,
}

// AQILevel normalizes a raw aqi field to a stable level name.
func AQILevel(raw string) string {
	if level, ok := aqiMapping[raw]; ok {
		return level
	}
	return AQIUnknown
}

// aqiOrdinal maps levels to a numeric scale for metrics.
func aqiOrdinal(level string) float64 {
	switch level {
	case AQIGood:
		return 1
	case AQIModerate:
		return 2
	case AQIBad:
		return 3
	case AQIVeryBad:
		return 4
	default:
		return 0
	}
}

// Snapshot is one completed refresh of the whole account, published
// atomically by the service.
type Snapshot struct {
	Devices   []Device                  `json:"devices"`
	Sensors   map[string]SensorSnapshot `json:"sensors"`
	FetchedAt time.Time                 `json:"fetched_at"`
}

// Fan speed bounds accepted by the cloud actions.
const (
	minFanSpeed = 1
	maxFanSpeed = 6
)
