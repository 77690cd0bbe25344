package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/config"
	"github.com/edgeshim/edgeshim/internal/engine/memengine"
	"github.com/edgeshim/edgeshim/internal/hooks"
	"github.com/edgeshim/edgeshim/internal/host"
	"github.com/edgeshim/edgeshim/internal/logging"
	"github.com/edgeshim/edgeshim/internal/version"

	// Plugins register themselves with the hook registry in init().
	_ "github.com/edgeshim/edgeshim/internal/plugins/dnstrace"
	_ "github.com/edgeshim/edgeshim/internal/plugins/headerstamp"
	_ "github.com/edgeshim/edgeshim/internal/plugins/hostguard"
)

// cliOptions bundles the parsed CLI flags so run() is testable.
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run executes the selected mode and returns the exit code.
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "loading config failed: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(logging.Options{
		Level:      cfg.Global.LogLevel,
		FilePath:   cfg.Global.LogFilePath,
		MaxSize:    cfg.Global.LogMaxSize,
		MaxBackups: cfg.Global.LogMaxBackups,
		Compress:   cfg.Global.LogCompress,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "initializing logger failed: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["plugins"] = cfg.PluginNames()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("config validated")
		return 0
	}

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "building dispatcher failed: %v\n", err)
		return 1
	}

	upstream, err := url.Parse(cfg.Global.Upstream)
	if err != nil {
		fmt.Fprintf(stdErr, "parsing upstream failed: %v\n", err)
		return 1
	}

	eng := memengine.New()
	client := host.NewUpstreamClient(cfg.Global.UpstreamTimeout.DurationValue())
	pipeline := host.NewPipeline(eng, dispatcher, client, logger, upstream)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["plugins"] = cfg.PluginNames()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = cfg.Global.Upstream
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("config loaded")

	if cfg.Global.MetricsPort != 0 {
		go serveMetrics(cfg.Global.MetricsPort, logger)
	}

	if err := startHTTPServer(cfg, pipeline, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP server failed: %v\n", err)
		return 1
	}
	return 0
}

// buildDispatcher wires the configured plugins, in config order, into the
// hook dispatch chains.
func buildDispatcher(cfg *config.Config, logger *logrus.Logger) (*hooks.Dispatcher, error) {
	specs := make([]hooks.Spec, len(cfg.Plugins))
	for i, p := range cfg.Plugins {
		specs[i] = hooks.Spec{Key: p.Name, Settings: p.Settings}
	}
	return hooks.NewDispatcher(logger, specs)
}

// parseCLIFlags parses the CLI arguments and resolves the config path from
// flags or the environment.
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("edgeshim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "config file path (default ./config.toml, overridable via EDGESHIM_CONFIG)")
	fs.BoolVar(&checkOnly, "check-config", false, "validate the config and exit")
	fs.BoolVar(&showVer, "version", false, "print version information")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("parsing flags failed: %w", err)
	}

	path := os.Getenv("EDGESHIM_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, pipeline *host.Pipeline, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := host.NewApp(host.AppOptions{
		Pipeline:   pipeline,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("host listening")

	return app.Listen(fmt.Sprintf(":%d", port))
}

func serveMetrics(port int, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.WithFields(logrus.Fields{
		"action": "metrics_listen",
		"port":   port,
	}).Info("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Error("metrics server failed")
	}
}
