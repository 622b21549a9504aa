package molekule

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joshp123/purehome/internal/cognito"
	"github.com/joshp123/purehome/internal/config"
)

const (
	defaultBaseURL = "https://api.molekule.com/users/me/devices/"

	// Cognito pool the Molekule mobile app authenticates against.
	cognitoRegion   = "us-west-2"
	cognitoPoolID   = "us-west-2_KqrEZKC6r"
	cognitoClientID = "1ec4fa3oriciupg94ugoi84kkk"

	defaultRequestTimeout = 30 * time.Second
)

func newDefaultProvider(email, password string) (CredentialProvider, error) {
	return cognito.New(cognito.Config{
		Region:     cognitoRegion,
		UserPoolID: cognitoPoolID,
		ClientID:   cognitoClientID,
		Email:      email,
		Password:   password,
	})
}

// Config defines runtime configuration for the Molekule client.
type Config struct {
	Email           string
	Password        string
	BaseURL         string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	SilentAuto      bool
}

func ConfigFromSettings(cfg *config.MolekuleConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("molekule config is required")
	}
	if cfg.Email == "" {
		return Config{}, fmt.Errorf("molekule email is required")
	}

	password, err := os.ReadFile(cfg.PasswordFile)
	if err != nil {
		return Config{}, fmt.Errorf("read molekule password: %w", err)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return Config{
		Email:           cfg.Email,
		Password:        strings.TrimSpace(string(password)),
		BaseURL:         baseURL,
		RefreshInterval: cfg.RefreshInterval(),
		RequestTimeout:  defaultRequestTimeout,
		SilentAuto:      cfg.SilentAuto,
	}, nil
}
