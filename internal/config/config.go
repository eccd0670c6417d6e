// Package config loads and validates the runtime configuration from CLI
// flags and GDL_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Identity provider
	TrustedHosts []string `mapstructure:"trusted-hosts"`
	AuthHost     string   `mapstructure:"auth-host"`
	ClientID     string   `mapstructure:"client-id"`
	ClientSecret string   `mapstructure:"client-secret"`
	RedirectURI  string   `mapstructure:"redirect-uri"`

	// Credentials
	AccessToken    string `mapstructure:"access-token"`
	TokenEncrypted bool   `mapstructure:"token-encrypted"`
	SharedSecret   string `mapstructure:"shared-secret-key"`
	UseExchange    bool   `mapstructure:"auth-exchange"`
	FallbackAuth   bool   `mapstructure:"fallback-auth"`
	FallbackUser   string `mapstructure:"fallback-username"`
	FallbackPass   string `mapstructure:"fallback-password"`

	// Retry / transport
	MaxAttempts    int           `mapstructure:"max-attempts"`
	BaseDelay      time.Duration `mapstructure:"retry-base-delay"`
	MaxDelay       time.Duration `mapstructure:"retry-max-delay"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	PostURLLength  int           `mapstructure:"post-url-length"`

	// Input
	URLFile string `mapstructure:"file"`

	// Processing
	Workers   int    `mapstructure:"workers"`
	OutputDir string `mapstructure:"output"`
	RequestID string `mapstructure:"request-id"`

	// Staging (blob store)
	StagingBucket  string `mapstructure:"staging-bucket"`
	StagingPath    string `mapstructure:"staging-path"`
	Region         string `mapstructure:"aws-region"`
	UseLocalstack  bool   `mapstructure:"use-localstack"`
	LocalstackHost string `mapstructure:"localstack-host"`
	Env            string `mapstructure:"env"`

	// Logging / identification
	AppName    string `mapstructure:"app-name"`
	UserAgent  string `mapstructure:"user-agent"`
	TextLogger bool   `mapstructure:"text-logger"`
	LogLevel   string `mapstructure:"log-level"`
}

// SetupFlags configures CLI flags for the root command and binds them to
// viper along with GDL_-prefixed environment variables.
func SetupFlags(cmd *cobra.Command) {
	// Identity provider flags
	cmd.Flags().StringSlice("trusted-hosts", nil, "Hostnames that may receive the bearer credential (exact match)")
	cmd.Flags().String("auth-host", "", "Base URL of the identity provider, e.g. https://auth.example.gov")
	cmd.Flags().String("client-id", "", "Application client ID registered with the identity provider")
	cmd.Flags().String("client-secret", "", "Application client secret (or set GDL_CLIENT_SECRET)")
	cmd.Flags().String("redirect-uri", "", "Registered redirect URI for the authorization-code exchange")

	// Credential flags
	cmd.Flags().String("access-token", "", "User access token (or set GDL_ACCESS_TOKEN)")
	cmd.Flags().Bool("token-encrypted", false, "Treat the access token as encrypted with the shared secret key")
	cmd.Flags().String("shared-secret-key", "", "32-byte shared secret for token decryption (or set GDL_SHARED_SECRET_KEY)")
	cmd.Flags().Bool("auth-exchange", false, "Exchange the user token for an application token before downloading")
	cmd.Flags().Bool("fallback-auth", false, "Allow Basic-auth downloads when no access token is supplied")
	cmd.Flags().String("fallback-username", "", "Basic-auth fallback username")
	cmd.Flags().String("fallback-password", "", "Basic-auth fallback password (or set GDL_FALLBACK_PASSWORD)")

	// Retry / transport flags
	cmd.Flags().Int("max-attempts", 5, "Maximum attempts per download")
	cmd.Flags().Duration("retry-base-delay", 2500*time.Millisecond, "Base delay for exponential backoff")
	cmd.Flags().Duration("retry-max-delay", 90*time.Second, "Cap on the backoff delay")
	cmd.Flags().Duration("request-timeout", 60*time.Second, "Per-attempt request timeout")
	cmd.Flags().Int("post-url-length", 2000, "URLs longer than this are rewritten as form POSTs")

	// Input flags
	cmd.Flags().StringP("file", "f", "", "File containing URLs to download (one per line)")

	// Processing flags
	cmd.Flags().IntP("workers", "w", 4, "Number of parallel downloads")
	cmd.Flags().StringP("output", "o", "./output", "Destination directory for downloaded files")
	cmd.Flags().String("request-id", "", "Request id propagated to the backend for metrics correlation")

	// Staging flags
	cmd.Flags().String("staging-bucket", "", "Bucket for staged results")
	cmd.Flags().String("staging-path", "", "Key prefix for staged results")
	cmd.Flags().String("aws-region", "us-west-2", "Region for the blob-store client")
	cmd.Flags().Bool("use-localstack", false, "Point the blob-store client at a LocalStack instance")
	cmd.Flags().String("localstack-host", "localhost", "Hostname of the LocalStack instance")
	cmd.Flags().String("env", "", "Application environment (dev, test, or empty for production)")

	// Logging flags
	cmd.Flags().String("app-name", "granule-dl", "Service name attached to log records")
	cmd.Flags().String("user-agent", "", "Upstream user agent to extend")
	cmd.Flags().Bool("text-logger", false, "Log human-readable text instead of JSON")
	cmd.Flags().String("log-level", "info", "Minimum log level")

	viper.BindPFlags(cmd.Flags())

	viper.SetEnvPrefix("GDL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Load unmarshals and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Late env fallbacks for secrets that are awkward as flags.
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("GDL_ACCESS_TOKEN")
	}
	if cfg.SharedSecret == "" {
		cfg.SharedSecret = os.Getenv("GDL_SHARED_SECRET_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.AccessToken == "" && !c.FallbackAuth {
		return fmt.Errorf("authentication required: set --access-token (GDL_ACCESS_TOKEN) or enable --fallback-auth")
	}
	if c.FallbackAuth && c.FallbackUser == "" {
		return fmt.Errorf("fallback-auth requires --fallback-username")
	}
	if c.UseExchange {
		if c.AuthHost == "" || c.ClientID == "" || c.ClientSecret == "" || c.RedirectURI == "" {
			return fmt.Errorf("auth-exchange requires auth-host, client-id, client-secret, and redirect-uri")
		}
	}
	if c.TokenEncrypted && len(c.SharedSecret) != 32 {
		return fmt.Errorf("token-encrypted requires a 32-byte shared-secret-key, got %d bytes", len(c.SharedSecret))
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1")
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("retry delays must be non-negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

// FullUserAgent combines the upstream user agent, this tool's identity, and
// the app name into the value sent on every request.
func (c *Config) FullUserAgent(version string) string {
	ua := strings.TrimSpace(c.UserAgent)
	lib := "granule-dl/" + version
	if ua == "" {
		ua = lib
	} else {
		ua += " " + lib
	}
	if c.AppName != "" {
		ua += " (" + c.AppName + ")"
	}
	return ua
}
