package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Collect     CollectConfig     `toml:"collect"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and, after `hitscan auth`, the user's tokens.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	TokenExpiry  string `toml:"token_expiry,omitempty"` // RFC 3339
}

// CollectConfig contains the tunables for a collection run.
type CollectConfig struct {
	Locale              string  `toml:"locale"`
	Pages               int     `toml:"pages"`
	PageSize            int     `toml:"page_size"`
	PopularityThreshold int     `toml:"popularity_threshold"`
	Workers             int     `toml:"workers"`
	RateLimit           float64 `toml:"rate_limit"`
	Output              string  `toml:"output"`
	Format              string  `toml:"format"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Map returns the credentials in the shape [services.NewSpotifyService] expects.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"token_expiry":  s.TokenExpiry,
	}
}

// Token returns the stored user token, or nil when none has been saved.
//
// A refresh token without a stored expiry yields an already expired token so the first request refreshes it.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}

	token := &oauth2.Token{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, TokenType: "Bearer"}
	if expiry, err := time.Parse(time.RFC3339, s.TokenExpiry); err == nil {
		token.Expiry = expiry
	} else if s.RefreshToken != "" {
		token.Expiry = time.Now().Add(-time.Minute)
	}
	return token
}

// Update stores the tokens from an authorization flow or refresh.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidInput)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenExpiry = ""
	if !token.Expiry.IsZero() {
		s.TokenExpiry = token.Expiry.UTC().Format(time.RFC3339)
	}
	return nil
}

// HasClientCredentials reports whether a client id and secret are present and not the example placeholders.
func (s SpotifyConfig) HasClientCredentials() bool {
	if s.ClientID == "" || s.ClientSecret == "" {
		return false
	}
	return !strings.HasPrefix(s.ClientID, "your_") && !strings.HasPrefix(s.ClientSecret, "your_")
}

// Validate checks the collect section for values no run can use.
func (c *Config) Validate() error {
	if c.Collect.PageSize < 1 || c.Collect.PageSize > 50 {
		return fmt.Errorf("%w: collect.page_size must be between 1 and 50, got %d", ErrInvalidConfig, c.Collect.PageSize)
	}
	if err := ValidateThreshold(c.Collect.PopularityThreshold); err != nil {
		return fmt.Errorf("%w: collect.popularity_threshold: %v", ErrInvalidConfig, err)
	}
	if c.Collect.RateLimit < 0 {
		return fmt.Errorf("%w: collect.rate_limit must not be negative", ErrInvalidConfig)
	}
	switch c.Collect.Format {
	case "", "csv", "json":
	default:
		return fmt.Errorf("%w: unknown collect.format %q", ErrInvalidConfig, c.Collect.Format)
	}
	return nil
}

// ValidateThreshold checks that a popularity threshold lies in 1..100.
func ValidateThreshold(threshold int) error {
	if threshold < 1 || threshold > 100 {
		return fmt.Errorf("%w: popularity threshold must be between 1 and 100, got %d", ErrInvalidArgument, threshold)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
//
// The file holds tokens, so it is written owner-only.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv loads the optional dotenv files and lets the environment override Spotify credentials.
//
// Both SPOTIFY_* and the SPOTIPY_* names used by spotipy are honored; SPOTIFY_* wins.
func ApplyEnv(config *Config, envFiles ...string) error {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, f, err)
		}
	}

	spotify := &config.Credentials.Spotify
	if v := lookupEnv("SPOTIFY_CLIENT_ID", "SPOTIPY_CLIENT_ID"); v != "" {
		spotify.ClientID = v
	}
	if v := lookupEnv("SPOTIFY_CLIENT_SECRET", "SPOTIPY_CLIENT_SECRET"); v != "" {
		spotify.ClientSecret = v
	}
	if v := lookupEnv("SPOTIFY_REDIRECT_URI", "SPOTIPY_REDIRECT_URI"); v != "" {
		spotify.RedirectURI = v
	}
	return nil
}

func lookupEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
