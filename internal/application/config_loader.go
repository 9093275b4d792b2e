package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ahrav/go-pairank/infrastructure/llm"
	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
)

// Environment variables read by Load.
const (
	// EnvPrefix marks configuration variables. A double underscore
	// separates key path segments: PAIRANK_JUDGE__MODEL sets judge.model.
	EnvPrefix = "PAIRANK_"
	// EnvConfigFile names the YAML file used when Load gets no path.
	EnvConfigFile = "PAIRANK_CONFIG"
)

var validate = newValidator()

// newValidator registers the checks struct tags cannot express on their own.
func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag or a nil func.
	_ = v.RegisterValidation("llmprovider", func(fl validator.FieldLevel) bool {
		return slices.Contains(llm.Providers(), fl.Field().String())
	})
	return v
}

// Load builds a Config by layering, from lowest to highest precedence:
//  1. DefaultConfig
//  2. the YAML file at path, or at $PAIRANK_CONFIG when path is empty
//  3. PAIRANK_ environment variables
//
// The returned Reader serves dotted-key lookups over the same layers.
func Load(ctx context.Context, path string) (Config, *Reader, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, nil, ports.NewConfigError(path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}

	clog.FromContext(ctx).With("path", path).With("store", cfg.Store.Path).
		With("algorithm", cfg.Rating.Algorithm).Debug("Configuration loaded")
	return cfg, &Reader{k: k}, nil
}

// Validate checks every field constraint and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verr := domain.NewValidationError("config")
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			verr.AddError(fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	} else {
		verr.AddError(err.Error())
	}
	return verr
}

// Reader implements ports.ConfigReader over a loaded koanf tree.
// Values set through the environment arrive as strings and are parsed on
// lookup; a value that cannot be converted yields the default.
type Reader struct {
	k *koanf.Koanf
}

var _ ports.ConfigReader = (*Reader)(nil)

// NewReader returns a Reader over k.
func NewReader(k *koanf.Koanf) *Reader { return &Reader{k: k} }

// Exists implements ports.ConfigReader.
func (r *Reader) Exists(key string) bool { return r.k.Exists(key) }

// String implements ports.ConfigReader. Scalars are formatted; maps and
// slices are mistyped.
func (r *Reader) String(key, def string) string {
	switch v := r.k.Get(key).(type) {
	case string:
		return v
	case bool, int, int64, float64, time.Duration:
		return fmt.Sprint(v)
	}
	return def
}

// Int implements ports.ConfigReader.
func (r *Reader) Int(key string, def int) int {
	switch v := r.k.Get(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Float64 implements ports.ConfigReader.
func (r *Reader) Float64(key string, def float64) float64 {
	switch v := r.k.Get(key).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Bool implements ports.ConfigReader.
func (r *Reader) Bool(key string, def bool) bool {
	switch v := r.k.Get(key).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Duration implements ports.ConfigReader. Bare numbers are seconds.
func (r *Reader) Duration(key string, def time.Duration) time.Duration {
	switch v := r.k.Get(key).(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		s := strings.TrimSpace(v)
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}
