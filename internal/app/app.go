package app

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

// App holds attributes for the assetkeeper application
type App struct {
	// Viper loads configuration parameters.
	v *viper.Viper
	// Sync waitgroup to wait for running go routines on termination.
	SyncWG *sync.WaitGroup
	// Assetkeeper configuration.
	Config *Configuration
	// TermCh is the channel to terminate the app based on a signal
	TermCh chan os.Signal
	// Logger is the app logger
	Logger *logrus.Logger
}

// New returns returns a new instance of the assetkeeper app
//
// logLevel overrides the configured log_level when not empty.
func New(appKind model.AppKind, cfgFile, logLevel string) (*App, error) {
	app := &App{
		v:      viper.New(),
		Config: &Configuration{AppKind: appKind},
		SyncWG: &sync.WaitGroup{},
		Logger: logrus.New(),
		TermCh: make(chan os.Signal, 1),
	}

	if err := app.LoadConfiguration(cfgFile); err != nil {
		return nil, err
	}

	if logLevel != "" {
		app.Config.LogLevel = logLevel
	}

	// set log level, format
	switch app.Config.LogLevel {
	case "debug":
		app.Logger.Level = logrus.DebugLevel
	case "trace":
		app.Logger.Level = logrus.TraceLevel
	default:
		app.Logger.Level = logrus.InfoLevel
	}

	app.Logger.SetFormatter(
		&runtime.Formatter{ChildFormatter: &logrus.JSONFormatter{}},
	)

	// register for SIGINT, SIGTERM
	signal.Notify(app.TermCh, syscall.SIGINT, syscall.SIGTERM)

	return app, nil
}
