package molekule

import (
	"encoding/json"
	"net/http"
)

// RegisterHTTP mounts the plugin API on the shared mux.
func (p Plugin) RegisterHTTP(mux *http.ServeMux) {
	if p.service == nil {
		return
	}
	mux.HandleFunc("GET /api/molekule/devices", p.handleDevices)
	mux.HandleFunc("GET /api/molekule/devices/{serial}/sensors", p.handleSensors)
	mux.HandleFunc("GET /api/molekule/devices/{serial}/aqi", p.handleAQI)
	mux.HandleFunc("POST /api/molekule/devices/{serial}/power", p.handlePower)
	mux.HandleFunc("POST /api/molekule/devices/{serial}/fan-speed", p.handleFanSpeed)
	mux.HandleFunc("POST /api/molekule/devices/{serial}/auto", p.handleAuto)
	mux.HandleFunc("POST /api/molekule/refresh", p.handleRefresh)
}

func (p Plugin) handleDevices(w http.ResponseWriter, _ *http.Request) {
	snapshot := p.service.Snapshot()
	if snapshot == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snapshot)
}

func (p Plugin) handleSensors(w http.ResponseWriter, r *http.Request) {
	snapshot := p.service.Snapshot()
	if snapshot == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	serial := r.PathValue("serial")
	readings, ok := snapshot.Sensors[serial]
	if !ok {
		http.Error(w, "no sensor data for device", http.StatusNotFound)
		return
	}
	writeJSON(w, readings)
}

func (p Plugin) handleAQI(w http.ResponseWriter, r *http.Request) {
	doc, err := p.service.client.AQI(r.Context(), r.PathValue("serial"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if doc == nil {
		http.Error(w, "no aqi data", http.StatusNotFound)
		return
	}
	writeJSON(w, doc)
}

func (p Plugin) handlePower(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := p.service.client.SetPower(r.Context(), r.PathValue("serial"), body.On); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	p.service.RequestRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func (p Plugin) handleFanSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed int `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Speed < minFanSpeed || body.Speed > maxFanSpeed {
		http.Error(w, "speed must be 1..6", http.StatusBadRequest)
		return
	}
	if err := p.service.client.SetFanSpeed(r.Context(), r.PathValue("serial"), body.Speed); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	p.service.RequestRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func (p Plugin) handleAuto(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Auto   bool  `json:"auto"`
		Silent *bool `json:"silent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := p.service.client.SetAutoMode(r.Context(), r.PathValue("serial"), body.Auto, body.Silent); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	p.service.RequestRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func (p Plugin) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	p.service.RequestRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
