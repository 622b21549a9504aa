package homebus

import "fmt"

// DeviceIdentity is the Home Assistant device registry record shared
// by every entity of one physical device.
type DeviceIdentity struct {
	Identifiers  []string   `json:"identifiers"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model"`
	SWVersion    string     `json:"sw_version,omitempty"`
	Connections  [][]string `json:"connections,omitempty"`
}

// EntityConfig is a Home Assistant MQTT discovery payload. Fields
// cover the fan and sensor components; unused ones stay empty.
type EntityConfig struct {
	Name              string         `json:"name"`
	UniqueID          string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	AvailabilityTopic string         `json:"availability_topic,omitempty"`
	ValueTemplate     string         `json:"value_template,omitempty"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	StateClass        string         `json:"state_class,omitempty"`
	Device            DeviceIdentity `json:"device"`
}

// DiscoveryEntity pairs a payload with its discovery topic parts.
type DiscoveryEntity struct {
	Component string
	NodeID    string
	ObjectID  string
	Config    EntityConfig
}

// NewIdentity builds the shared device record.
func NewIdentity(serial, name, manufacturer, model, swVersion, mac string) DeviceIdentity {
	identity := DeviceIdentity{
		Identifiers:  []string{serial},
		Name:         name,
		Manufacturer: manufacturer,
		Model:        model,
		SWVersion:    swVersion,
	}
	if mac != "" {
		identity.Connections = [][]string{{"mac", mac}}
	}
	return identity
}

// FanEntity announces the purifier fan itself.
func FanEntity(identity DeviceIdentity, serial, stateTopic, availabilityTopic string) DiscoveryEntity {
	return DiscoveryEntity{
		Component: "fan",
		NodeID:    "purehome_" + serial,
		ObjectID:  "fan",
		Config: EntityConfig{
			Name:              identity.Name,
			UniqueID:          fmt.Sprintf("purehome_%s_fan", serial),
			StateTopic:        stateTopic,
			AvailabilityTopic: availabilityTopic,
			ValueTemplate:     "{{ value_json.online }}",
			Device:            identity,
		},
	}
}

// SensorEntity announces one pollutant reading of a device.
func SensorEntity(identity DeviceIdentity, serial, pollutant, unit, deviceClass, stateTopic, availabilityTopic string) DiscoveryEntity {
	return DiscoveryEntity{
		Component: "sensor",
		NodeID:    "purehome_" + serial,
		ObjectID:  pollutant,
		Config: EntityConfig{
			Name:              fmt.Sprintf("%s %s", identity.Name, pollutant),
			UniqueID:          fmt.Sprintf("purehome_%s_%s", serial, pollutant),
			StateTopic:        stateTopic,
			AvailabilityTopic: availabilityTopic,
			ValueTemplate:     fmt.Sprintf("{{ value_json.sensors.%s }}", pollutant),
			UnitOfMeasurement: unit,
			DeviceClass:       deviceClass,
			StateClass:        "measurement",
			Device:            identity,
		},
	}
}
