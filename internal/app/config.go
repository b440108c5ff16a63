package app

import (
	"os"
	"strings"
	"time"

	"github.com/jeremywohl/flatten"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/natsconn"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

const (
	defaultNatsConnectTimeout       = 60 * time.Second
	defaultActivationRequestTimeout = 10 * time.Second
	defaultMetricsListenAddress     = "0.0.0.0:9090"
)

var (
	ErrConfig = errors.New("configuration error")
)

// Configuration holds application configuration read from a YAML or set by env variables.
//
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level"`

	// AppKind is the application kind - service / client
	AppKind model.AppKind `mapstructure:"app_kind"`

	// StoreKind is the asset store - memory, sqlite or postgres.
	StoreKind model.StoreKind `mapstructure:"store_kind"`

	// RootController is the protected asset that is never removed.
	RootController string `mapstructure:"root_controller"`

	// Detached runs without the activation service, status changes are local.
	Detached bool `mapstructure:"detached"`

	SQLite *SQLiteOptions `mapstructure:"sqlite"`

	Postgres *PostgresOptions `mapstructure:"postgres"`

	Nats *NatsOptions `mapstructure:"nats"`

	Activation *ActivationOptions `mapstructure:"activation"`

	Metrics *MetricsOptions `mapstructure:"metrics"`
}

// SQLiteOptions is required when StoreKind is set to sqlite.
type SQLiteOptions struct {
	Path string `mapstructure:"path"`
}

// PostgresOptions is required when StoreKind is set to postgres.
type PostgresOptions struct {
	DSN string `mapstructure:"dsn"`
}

// NatsOptions defines the NATS connection and subject parameters.
type NatsOptions struct {
	URL            string        `mapstructure:"url"`
	CredsFile      string        `mapstructure:"creds_file"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// SubjectPrefix is prepended to the activation, event and request subjects.
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type ActivationOptions struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type MetricsOptions struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// LoadConfiguration loads application configuration
//
// Reads in the cfgFile when available and overrides from environment variables.
func (a *App) LoadConfiguration(cfgFile string) error {
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix(model.AppName)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	// these are initialized here so viper can read in configuration from env vars
	// once https://github.com/spf13/viper/pull/1429 is merged, this can go.
	a.Config.SQLite = &SQLiteOptions{}
	a.Config.Postgres = &PostgresOptions{}
	a.Config.Nats = &NatsOptions{}
	a.Config.Activation = &ActivationOptions{}
	a.Config.Metrics = &MetricsOptions{}

	if cfgFile != "" {
		fh, err := os.Open(cfgFile)
		if err != nil {
			return errors.Wrap(ErrConfig, err.Error())
		}

		defer fh.Close()

		if err = a.v.ReadConfig(fh); err != nil {
			return errors.Wrap(ErrConfig, "ReadConfig error:"+err.Error())
		}
	}

	a.v.SetDefault("log_level", "info")
	a.v.SetDefault("store_kind", string(model.StoreKindMemory))
	a.v.SetDefault("root_controller", model.RootController)
	a.v.SetDefault("nats.subject_prefix", model.AppName)
	a.v.SetDefault("nats.connect_timeout", defaultNatsConnectTimeout)
	a.v.SetDefault("activation.request_timeout", defaultActivationRequestTimeout)
	a.v.SetDefault("metrics.listen_address", defaultMetricsListenAddress)

	if err := a.envBindVars(); err != nil {
		return errors.Wrap(ErrConfig, "env var bind error:"+err.Error())
	}

	if err := a.v.Unmarshal(a.Config); err != nil {
		return errors.Wrap(ErrConfig, "Unmarshal error: "+err.Error())
	}

	if !slices.Contains(model.StoreKinds(), a.Config.StoreKind) {
		return errors.Wrap(ErrConfig, "unsupported store_kind: "+string(a.Config.StoreKind))
	}

	return nil
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (a *App) envBindVars() error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(a.Config, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten config")
	}

	for k := range flat {
		if err := a.v.BindEnv(k); err != nil {
			return errors.Wrap(ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

// StoreOptions returns the asset store parameters.
func (a *App) StoreOptions() *store.Options {
	return &store.Options{
		Kind:        a.Config.StoreKind,
		SQLitePath:  a.Config.SQLite.Path,
		PostgresDSN: a.Config.Postgres.DSN,
	}
}

// NatsParams returns the NATS connection parameters, nats.url is required.
func (a *App) NatsParams() (*natsconn.Params, error) {
	if a.Config.Nats.URL == "" {
		return nil, errors.Wrap(ErrConfig, "missing parameter: nats.url")
	}

	return &natsconn.Params{
		URL:            a.Config.Nats.URL,
		CredsFile:      a.Config.Nats.CredsFile,
		ConnectTimeout: a.Config.Nats.ConnectTimeout,
	}, nil
}
