package molekule

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestCleanNulls(t *testing.T) {
	var doc any
	raw := `{
		"name": "Bedroom",
		"subProduct": null,
		"nested": {"mode": null, "online": "true"},
		"list": [null, "x", {"aqi": null}]
	}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}

	got := cleanNulls(doc)

	want := map[string]any{
		"name":       "Bedroom",
		"subProduct": "",
		"nested":     map[string]any{"mode": "", "online": "true"},
		"list":       []any{"", "x", map[string]any{"aqi": ""}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cleanNulls = %#v, want %#v", got, want)
	}
}

func TestCleanNullsIdempotent(t *testing.T) {
	raw := `{
		"serialNumber": null,
		"nested": {"subProduct": null, "values": [null, 1, {"v": null}]}
	}`
	var doc1, doc2 any
	if err := json.Unmarshal([]byte(raw), &doc1); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(raw), &doc2); err != nil {
		t.Fatal(err)
	}

	once := cleanNulls(doc1)
	twice := cleanNulls(cleanNulls(doc2))
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second pass changed the tree: %#v vs %#v", once, twice)
	}
}

func TestCleanNullsScalars(t *testing.T) {
	if got := cleanNulls(nil); got != "" {
		t.Errorf("cleanNulls(nil) = %v, want empty string", got)
	}
	if got := cleanNulls(float64(3)); got != float64(3) {
		t.Errorf("cleanNulls(3) = %v, want 3", got)
	}
	if got := cleanNulls(false); got != false {
		t.Errorf("cleanNulls(false) = %v, want false", got)
	}
}
