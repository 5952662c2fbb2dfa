package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	pstrings "verifiedai/pkg/platform/strings"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	Server       Server
	Site         Site
	Verification Verification
	Email        Email
	Payment      Payment
	Session      Session
	Redis        RedisConfig
	Log          Log
	Tracing      Tracing
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"SERVER_ADDR" envDefault:":8080"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"90s"`
}

// Site is the static configuration object served at /api/site-config.
type Site struct {
	Name    string `env:"SITE_NAME" envDefault:"VerifiedAI"`
	Tagline string `env:"SITE_TAGLINE" envDefault:"Trusted AI solutions for everyone."`
}

// Verification points at the external verification API.
type Verification struct {
	BaseURL        string        `env:"VERIFICATION_API_URL"`
	Trade          string        `env:"VERIFICATION_TRADE" envDefault:"General"`
	Timeout        time.Duration `env:"VERIFICATION_TIMEOUT" envDefault:"15s"`
	ResultAttempts int           `env:"VERIFICATION_RESULT_ATTEMPTS" envDefault:"6"`
	ResultBackoff  time.Duration `env:"VERIFICATION_RESULT_BACKOFF" envDefault:"1s"`
	MaxUploadBytes int64         `env:"VERIFICATION_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	// StepBudget bounds one user action end to end, including result polling.
	StepBudget time.Duration `env:"VERIFICATION_STEP_BUDGET" envDefault:"75s"`
}

// Email configures the hosted email delivery service.
type Email struct {
	APIURL      string        `env:"EMAIL_API_URL" envDefault:"https://api.emailjs.com/api/v1.0/email/send"`
	ServiceID   string        `env:"EMAIL_SERVICE_ID" envDefault:"service_srfgy0f"`
	TemplateID  string        `env:"EMAIL_TEMPLATE_ID" envDefault:"template_z4eqm1d"`
	PublicKey   string        `env:"EMAIL_PUBLIC_KEY"`
	AccessToken string        `env:"EMAIL_ACCESS_TOKEN"`
	Timeout     time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
}

// Payment configures the hosted payment link "Download Report" redirects to.
type Payment struct {
	Link string `env:"PAYMENT_LINK"`
}

// Session configures the browser session cookie and its server-side state.
type Session struct {
	CookieName   string        `env:"SESSION_COOKIE" envDefault:"verifiedai_session"`
	TTL          time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	CookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
}

// RedisConfig enables the Redis session store when URL is set.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Tracing selects the OpenTelemetry span exporter. "none" still installs the
// provider and W3C propagation so trace context flows to the verification API.
type Tracing struct {
	Exporter    string  `env:"TRACE_EXPORTER" envDefault:"none"`
	SampleRatio float64 `env:"TRACE_SAMPLE_RATIO" envDefault:"1"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"verifiedai"`
}

// Log selects level and output format.
type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Server.AllowedOrigins = pstrings.NormalizeOrigins(cfg.Server.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks URL shaped settings and numeric bounds. Optional
// integrations (verification API, payment link, email key, redis) may be empty.
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL("PUBLIC_BASE_URL", c.Server.PublicBaseURL, true); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("VERIFICATION_API_URL", c.Verification.BaseURL, false); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("EMAIL_API_URL", c.Email.APIURL, true); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("PAYMENT_LINK", c.Payment.Link, false); err != nil {
		errs = append(errs, err)
	}
	if c.Verification.ResultAttempts < 1 {
		errs = append(errs, errors.New("VERIFICATION_RESULT_ATTEMPTS must be at least 1"))
	}
	if c.Verification.Timeout <= 0 {
		errs = append(errs, errors.New("VERIFICATION_TIMEOUT must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("SERVER_WRITE_TIMEOUT must be positive"))
	}
	switch {
	case c.Verification.StepBudget <= 0:
		errs = append(errs, errors.New("VERIFICATION_STEP_BUDGET must be positive"))
	case c.Server.WriteTimeout > 0 && c.Verification.StepBudget >= c.Server.WriteTimeout:
		errs = append(errs, fmt.Errorf("VERIFICATION_STEP_BUDGET (%s) must be shorter than SERVER_WRITE_TIMEOUT (%s)",
			c.Verification.StepBudget, c.Server.WriteTimeout))
	case c.Verification.Timeout > c.Verification.StepBudget:
		errs = append(errs, fmt.Errorf("VERIFICATION_TIMEOUT (%s) must not exceed VERIFICATION_STEP_BUDGET (%s)",
			c.Verification.Timeout, c.Verification.StepBudget))
	case c.Verification.ResultBackoff >= c.Verification.StepBudget:
		errs = append(errs, fmt.Errorf("VERIFICATION_RESULT_BACKOFF (%s) must be shorter than VERIFICATION_STEP_BUDGET (%s)",
			c.Verification.ResultBackoff, c.Verification.StepBudget))
	}
	if c.Tracing.Exporter != "none" && c.Tracing.Exporter != "stdout" {
		errs = append(errs, fmt.Errorf("TRACE_EXPORTER must be none or stdout, got %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("TRACE_SAMPLE_RATIO must be between 0 and 1"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		errs = append(errs, errors.New("SESSION_COOKIE must not be empty"))
	}
	c.Server.PublicBaseURL = strings.TrimRight(c.Server.PublicBaseURL, "/")
	c.Verification.BaseURL = strings.TrimRight(c.Verification.BaseURL, "/")
	return errors.Join(errs...)
}

func checkURL(name, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
