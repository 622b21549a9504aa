package molekule

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joshp123/purehome/internal/logging"
)

const deviceListBody = `{"content":[
	{"serialNumber":"A1","name":"Bedroom","subProduct":{"name":"Molekule Air"},
	 "fanspeed":"2","pecoFilter":"80","mode":"smart","online":"true","aqi":"good"},
	{"serialNumber":"A2","name":"Office","subProduct":{"name":"Molekule Air Pro"},
	 "fanspeed":"4","pecoFilter":"55","mode":"manual","online":"true","aqi":"moderate"}
]}`

func newTestService(t *testing.T, handler http.Handler) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL+"/", &fakeProvider{}, nil)
	log := logging.Get(logging.InfoLevel).Named("molekule-test")
	return NewService(client, nil, time.Minute, log), srv
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sensordata") {
			if !strings.HasPrefix(r.URL.Path, "/A2/") {
				t.Errorf("sensordata requested for %s, only Air Pro models report it", r.URL.Path)
			}
			fmt.Fprint(w, `{"sensorData":[{"type":"PM2_5","sensorDataValue":[{"v":12}]}]}`)
			return
		}
		fmt.Fprint(w, deviceListBody)
	}))

	service.refresh(context.Background())

	snapshot := service.Snapshot()
	if snapshot == nil {
		t.Fatal("expected snapshot after refresh")
	}
	if len(snapshot.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(snapshot.Devices))
	}
	if _, ok := snapshot.Sensors["A1"]; ok {
		t.Error("A1 is a Molekule Air and must not have sensor data")
	}
	if got := snapshot.Sensors["A2"]["PM2_5"]; got != 12 {
		t.Errorf("A2 PM2_5 = %v, want 12", got)
	}
	if err := service.LastError(); err != nil {
		t.Errorf("LastError = %v, want nil", err)
	}
}

func TestRefreshIsolatesSensorFailures(t *testing.T) {
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sensordata") {
			http.Error(w, "telemetry down", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, deviceListBody)
	}))

	service.refresh(context.Background())

	snapshot := service.Snapshot()
	if snapshot == nil {
		t.Fatal("device failure must not block the snapshot")
	}
	if len(snapshot.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(snapshot.Devices))
	}
	if len(snapshot.Sensors) != 0 {
		t.Errorf("sensors = %v, want none on telemetry failure", snapshot.Sensors)
	}
}

func TestRefreshMergesPartialTelemetry(t *testing.T) {
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/A1/"):
			fmt.Fprint(w, `{"sensorData":[{"type":"PM2_5","sensorDataValue":[{"v":-1},{"v":12.3},{"v":-1}]}]}`)
		case strings.HasPrefix(r.URL.Path, "/A2/"):
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		default:
			fmt.Fprint(w, `{"content":[
				{"serialNumber":"A1","name":"Bedroom","subProduct":{"name":"Molekule Air Pro"}},
				{"serialNumber":"A2","name":"Office","subProduct":{"name":"Molekule Air Pro"}}
			]}`)
		}
	}))

	service.refresh(context.Background())

	snapshot := service.Snapshot()
	if snapshot == nil {
		t.Fatal("tick must succeed despite one device's telemetry failing")
	}
	if got := snapshot.Sensors["A1"]["PM2_5"]; got != 12.3 {
		t.Errorf("A1 PM2_5 = %v, want 12.3", got)
	}
	if _, ok := snapshot.Sensors["A2"]; ok {
		t.Error("A2 sensors must be absent, not partially filled")
	}
	if err := service.LastError(); err != nil {
		t.Errorf("LastError = %v, want nil for an isolated failure", err)
	}
}

func TestRefreshKeepsPreviousSnapshotOnFailure(t *testing.T) {
	var failing bool
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/sensordata") {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		fmt.Fprint(w, deviceListBody)
	}))

	service.refresh(context.Background())
	first := service.Snapshot()
	if first == nil {
		t.Fatal("expected initial snapshot")
	}

	failing = true
	service.refresh(context.Background())

	if service.Snapshot() != first {
		t.Error("failed tick must retain the previous snapshot")
	}
	if service.LastError() == nil {
		t.Error("failed tick should surface on LastError")
	}
}

func TestRequestRefreshDoesNotBlock(t *testing.T) {
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content":[]}`)
	}))

	// Saturating the kick channel must never block the caller.
	for i := 0; i < 10; i++ {
		service.RequestRefresh()
	}
}
