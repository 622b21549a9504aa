package molekule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/purehome/internal/authstate"
	"github.com/joshp123/purehome/internal/logging"
	"github.com/joshp123/purehome/internal/rate"
)

const (
	retryAttempts = 3
	retryDelay    = time.Second

	sensorWindow     = time.Hour
	sensorResolution = 5
)

// Client talks to the Molekule cloud API.
type Client struct {
	baseURL    string
	silentAuto bool
	sessions   *sessionManager
	retryDelay time.Duration
	sleep      func(time.Duration)
	log        *zap.SugaredLogger
}

func NewClient(cfg Config, rateDecl rate.Declaration, provider CredentialProvider, store *authstate.Store) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("credential provider is required")
	}

	log := logging.Get(logging.InfoLevel).Named("molekule")

	var transport http.RoundTripper
	if rateDecl.HasLimits() {
		transport = rate.WrapTransport(rateDecl, nil)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:    baseURL,
		silentAuto: cfg.SilentAuto,
		sessions:   newSessionManager(provider, store, transport, timeout, log),
		retryDelay: retryDelay,
		log:        log,
	}, nil
}

// NewStandaloneClient builds a client for one-shot CLI use: no rate
// guard, no persisted auth state.
func NewStandaloneClient(email, password string) (*Client, error) {
	provider, err := newDefaultProvider(email, password)
	if err != nil {
		return nil, err
	}
	cfg := Config{
		Email:          email,
		Password:       password,
		BaseURL:        defaultBaseURL,
		RequestTimeout: defaultRequestTimeout,
	}
	return NewClient(cfg, rate.Declaration{}, provider, nil)
}

// Devices returns the account's purifiers with defaults filled in.
func (c *Client) Devices(ctx context.Context) (*DeviceList, error) {
	raw, err := c.request(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	cleaned, err := cleanDocument(raw)
	if err != nil {
		return nil, err
	}
	if cleaned == nil {
		return nil, nil
	}

	var list DeviceList
	if err := json.Unmarshal(cleaned, &list); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	for i := range list.Content {
		list.Content[i].fillDefaults()
	}
	return &list, nil
}

// SensorData returns the latest valid reading per pollutant over the
// trailing hour, or nil when the device reported nothing usable.
func (c *Client) SensorData(ctx context.Context, serial string) (SensorSnapshot, error) {
	end := time.Now().UnixMilli()
	start := end - sensorWindow.Milliseconds()
	url := fmt.Sprintf("%s%s/sensordata?aggregation=false&fromDate=%d&resolution=%d&toDate=%d",
		c.baseURL, serial, start, sensorResolution, end)

	raw, err := c.request(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return reduceSensorData(raw), nil
}

// AQI returns the air-quality-index document for one device.
func (c *Client) AQI(ctx context.Context, serial string) (map[string]any, error) {
	raw, err := c.request(ctx, http.MethodGet, c.baseURL+serial+"/air-quality-index", nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	cleaned, err := cleanDocument(raw)
	if err != nil {
		return nil, err
	}
	if cleaned == nil {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(cleaned, &doc); err != nil {
		return nil, fmt.Errorf("decode aqi: %w", err)
	}
	return doc, nil
}

// SetPower turns the purifier on or off.
func (c *Client) SetPower(ctx context.Context, serial string, on bool) error {
	status := "off"
	if on {
		status = "on"
	}
	_, err := c.request(ctx, http.MethodPost, c.baseURL+serial+"/actions/set-power-status",
		map[string]string{"status": status})
	return err
}

// SetFanSpeed sets the manual fan speed (1..6).
func (c *Client) SetFanSpeed(ctx context.Context, serial string, speed int) error {
	if speed < minFanSpeed || speed > maxFanSpeed {
		return fmt.Errorf("fan speed %d out of range %d..%d", speed, minFanSpeed, maxFanSpeed)
	}
	_, err := c.request(ctx, http.MethodPost, c.baseURL+serial+"/actions/set-fan-speed",
		map[string]int{"fanSpeed": speed})
	return err
}

// SetAutoMode switches between smart and manual mode. Leaving auto
// drops the purifier to its lowest manual speed. A nil silent keeps
// the configured default.
func (c *Client) SetAutoMode(ctx context.Context, serial string, auto bool, silentOverride *bool) error {
	if !auto {
		return c.SetFanSpeed(ctx, serial, minFanSpeed)
	}
	silentAuto := c.silentAuto
	if silentOverride != nil {
		silentAuto = *silentOverride
	}
	silent := "0"
	if silentAuto {
		silent = "1"
	}
	_, err := c.request(ctx, http.MethodPost, c.baseURL+serial+"/actions/enable-smart-mode",
		map[string]string{"silent": silent})
	return err
}

// Close releases the underlying session.
func (c *Client) Close() {
	c.sessions.Close()
}

// request runs one API call through the retry pipeline. A nil result
// with nil error means the API answered without usable content.
func (c *Client) request(ctx context.Context, method, url string, payload any) (json.RawMessage, error) {
	token, err := c.sessions.EnsureTokenValid(ctx)
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-version", "1.0")

		resp, err := c.sessions.Session().Do(req)
		if err != nil {
			lastErr = err
			c.log.Errorw("request failed",
				"attempt", attempt+1, "attempts", retryAttempts, "error", err)
			if attempt+1 < retryAttempts {
				if err := c.backoff(ctx, attempt); err != nil {
					return nil, err
				}
				c.sessions.DropSession()
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			drain(resp)
			token, err = c.sessions.ForceAuthenticate(ctx)
			if err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode == http.StatusNoContent:
			drain(resp)
			return nil, nil

		case resp.StatusCode != http.StatusOK:
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			c.log.Errorw("api request failed",
				"status", resp.StatusCode, "body", strings.TrimSpace(string(data)))
			return nil, nil

		default:
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			return data, nil
		}
	}

	if lastErr != nil {
		return nil, &ConnError{Attempts: retryAttempts, Err: lastErr}
	}
	// Every attempt was consumed by 401 re-authentication.
	return nil, nil
}

// backoff waits retryDelay*(attempt+1) between attempts, growing
// linearly. The sleep hook keeps tests off the wall clock.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	d := c.retryDelay * time.Duration(attempt+1)
	if c.sleep != nil {
		c.sleep(d)
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// cleanDocument strips JSON nulls from a raw payload. A payload that
// is not a JSON object (a literal null, a bare scalar) carries no
// usable content and comes back nil.
func cleanDocument(raw json.RawMessage) (json.RawMessage, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, nil
	}
	return json.Marshal(cleanNulls(doc))
}

// reduceSensorData keeps the most recent valid value per pollutant.
// Readings of -1 are sensor sentinels, not measurements.
func reduceSensorData(raw json.RawMessage) SensorSnapshot {
	var doc struct {
		SensorData []struct {
			Type            string `json:"type"`
			SensorDataValue []struct {
				V json.Number `json:"v"`
			} `json:"sensorDataValue"`
		} `json:"sensorData"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil || doc.SensorData == nil {
		return nil
	}

	tracked := map[string]bool{"PM2_5": true, "PM10": true, "RH": true, "TVOC": true, "CO2": true}
	snapshot := make(SensorSnapshot)
	for _, pollutant := range doc.SensorData {
		if !tracked[pollutant.Type] {
			continue
		}
		for _, value := range pollutant.SensorDataValue {
			v, err := value.V.Float64()
			if err != nil || v == -1 {
				continue
			}
			snapshot[pollutant.Type] = v
		}
	}
	if len(snapshot) == 0 {
		return nil
	}
	return snapshot
}

// parseSpeed converts the string fanspeed field for metrics.
func parseSpeed(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
