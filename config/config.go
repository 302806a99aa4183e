// Package config loads the configuration shared by the invtpl binaries.
//
// Configuration comes from a single YAML file named by the --config flag or
// the INVTPL_CONFIG environment variable. Keys missing from the file keep
// their defaults, and with no file at all Default is used as is.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/binding"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "INVTPL_CONFIG"

// Config is the configuration of the invtpl binaries.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Format  FormatConfig  `yaml:"format"`
	PDF     PDFConfig     `yaml:"pdf"`
	Preview PreviewConfig `yaml:"preview"`
	Log     LogConfig     `yaml:"log"`
}

// StoreConfig configures the template store.
type StoreConfig struct {
	// Root is the templates directory. ${HOME} and ${VAR:-default} are
	// expanded.
	Root string `yaml:"root"`

	// DefaultAuthor is stamped on saved templates that have no author.
	DefaultAuthor string `yaml:"default_author"`
}

// FormatConfig configures how bound values are formatted.
type FormatConfig struct {
	// Locale is a BCP 47 tag for number formatting, e.g. "de-DE".
	Locale string `yaml:"locale"`

	// Currency is the ISO 4217 code appended to money values.
	Currency string `yaml:"currency"`

	// DateLayout is a Go time layout.
	DateLayout string `yaml:"date_layout"`
}

// PDFConfig configures the PDF backend.
type PDFConfig struct {
	// CodePage is the gofpdf code page descriptor for core-font text;
	// empty means cp1252.
	CodePage string `yaml:"code_page"`

	// Watermark is painted diagonally on every page when set.
	Watermark string `yaml:"watermark"`
}

// PreviewConfig configures generated thumbnails.
type PreviewConfig struct {
	// Width of the thumbnail in pixels.
	Width int `yaml:"width"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a logrus level name.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Root: "${HOME}/.invtpl/templates",
		},
		Format: FormatConfig{
			Locale:     "de-DE",
			Currency:   "EUR",
			DateLayout: binding.DefaultDateLayout,
		},
		Preview: PreviewConfig{
			Width: 420,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file named by INVTPL_CONFIG, or returns the defaults when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w: %v", invtpl.ErrIO, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w: parsing %s: %v", invtpl.ErrInvalidInput, path, err)
	}
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Store.Root = expandVars(c.Store.Root)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Root == "" {
		errs = append(errs, errors.New("store.root is required"))
	}
	if _, err := language.Parse(c.Format.Locale); err != nil {
		errs = append(errs, fmt.Errorf("format.locale: %v", err))
	}
	if _, err := currency.ParseISO(c.Format.Currency); err != nil {
		errs = append(errs, fmt.Errorf("format.currency: %v", err))
	}
	if c.Preview.Width < 0 {
		errs = append(errs, fmt.Errorf("preview.width must not be negative: %d", c.Preview.Width))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %v", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json: %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", invtpl.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// Formatter returns the value formatter for the configured locale and
// currency.
func (c *Config) Formatter() (*binding.Formatter, error) {
	tag, err := language.Parse(c.Format.Locale)
	if err != nil {
		return nil, fmt.Errorf("config: %w: format.locale: %v", invtpl.ErrInvalidInput, err)
	}
	var opts []binding.FormatterOption
	if c.Format.DateLayout != "" {
		opts = append(opts, binding.WithDateLayout(c.Format.DateLayout))
	}
	return binding.NewFormatter(tag, c.Format.Currency, opts...)
}

// NewLogger returns a logger writing to out with the configured level and
// format.
func (c *Config) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("config: %w: log.level: %v", invtpl.ErrInvalidInput, err)
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	return log, nil
}
