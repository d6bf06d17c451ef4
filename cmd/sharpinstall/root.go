package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sharpinstall/internal/adapter/builder"
	"sharpinstall/internal/adapter/config"
	"sharpinstall/internal/adapter/downloader"
	"sharpinstall/internal/adapter/extractor"
	"sharpinstall/internal/adapter/loader"
	"sharpinstall/internal/adapter/locator"
	"sharpinstall/internal/adapter/lock"
	"sharpinstall/internal/adapter/logger"
	"sharpinstall/internal/adapter/metrics"
	"sharpinstall/internal/adapter/platform"
	"sharpinstall/internal/app"
	"sharpinstall/internal/domain"
)

const (
	flagConfig            = "config"
	flagLogLevel          = "loglevel"
	flagLogFormat         = "logformat"
	flagLogOutput         = "logoutput"
	flagBinaryInstallPath = "binary-install-path"
	flagArtifactVersion   = "artifact-version"
	flagRequestTimeoutMs  = "request-timeout-ms"
	flagBuildFromSource   = "build-from-source"
	flagRegistryURL       = "registry-url"
)

// New builds the root command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sharpinstall [command]",
		Short: "Provision the sharp native module for this host",
		Long: `sharpinstall makes the sharp native module available in a canonical
directory. An installed module is reused; otherwise the prebuilt archive for
the host platform is downloaded and unpacked, and when the registry has none
the module is built from the published package sources.

Configuration precedence: flags > SHARPINSTALL_* environment > --config file > defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fs := cmd.PersistentFlags()
	fs.String(flagConfig, "", "path to a YAML, JSON or JSONC configuration file")
	fs.String(flagLogLevel, "info", "log level: debug, info, warn, error")
	fs.String(flagLogFormat, logger.FormatText, "log format: text, json")
	fs.String(flagLogOutput, "stderr", "log destination: stdout, stderr")
	fs.String(flagBinaryInstallPath, "", "canonical binary directory (default: $XDG_DATA_HOME/sharpinstall/sharp)")
	fs.String(flagArtifactVersion, config.DefaultArtifactVersion, "sharp version to provision")
	fs.Int(flagRequestTimeoutMs, config.DefaultRequestTimeoutMs, "per-request HTTP timeout in milliseconds")
	fs.Bool(flagBuildFromSource, false, "skip the prebuilt archive and build from source")
	fs.String(flagRegistryURL, config.DefaultRegistryURL, "registry mirror serving prebuilt archives")

	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCleanCmd())
	return cmd
}

// loadConfig layers defaults, the config file, the environment and finally
// any flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (domain.InstallConfig, error) {
	fs := cmd.Flags()
	path, _ := fs.GetString(flagConfig)
	opts, err := config.Load(path)
	if err != nil {
		return domain.InstallConfig{}, err
	}
	if err := applyFlags(fs, &opts); err != nil {
		return domain.InstallConfig{}, err
	}
	return opts.Resolve()
}

func applyFlags(fs *pflag.FlagSet, opts *config.Options) error {
	var err error
	if fs.Changed(flagBinaryInstallPath) {
		if opts.BinaryInstallPath, err = fs.GetString(flagBinaryInstallPath); err != nil {
			return err
		}
	}
	if fs.Changed(flagArtifactVersion) {
		if opts.ArtifactVersion, err = fs.GetString(flagArtifactVersion); err != nil {
			return err
		}
	}
	if fs.Changed(flagRequestTimeoutMs) {
		if opts.RequestTimeoutMs, err = fs.GetInt(flagRequestTimeoutMs); err != nil {
			return err
		}
	}
	if fs.Changed(flagBuildFromSource) {
		if opts.BuildFromSource, err = fs.GetBool(flagBuildFromSource); err != nil {
			return err
		}
	}
	if fs.Changed(flagRegistryURL) {
		if opts.RegistryURL, err = fs.GetString(flagRegistryURL); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(cmd *cobra.Command) (*logger.Slog, error) {
	fs := cmd.Flags()
	levelName, _ := fs.GetString(flagLogLevel)
	format, _ := fs.GetString(flagLogFormat)
	output, _ := fs.GetString(flagLogOutput)

	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	var w io.Writer
	switch output {
	case "stdout":
		w = cmd.OutOrStdout()
	case "stderr":
		w = cmd.ErrOrStderr()
	default:
		return nil, fmt.Errorf("invalid log output: %s", output)
	}
	return logger.New(w, format, level)
}

// setup loads configuration and the logger shared by every subcommand.
func setup(cmd *cobra.Command) (domain.InstallConfig, *logger.Slog, error) {
	log, err := newLogger(cmd)
	if err != nil {
		return domain.InstallConfig{}, nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return domain.InstallConfig{}, nil, err
	}
	log.Debug("configuration loaded",
		"dir", cfg.BinaryDir,
		"version", cfg.Version,
		"timeout", cfg.RequestTimeout,
		"build_from_source", cfg.BuildFromSource,
	)
	return cfg, log, nil
}

// newService wires the adapters for cfg. reg may be nil when metrics are not
// exported.
func newService(cfg domain.InstallConfig, log *logger.Slog, reg prometheus.Registerer) *app.Service {
	var m domain.Metrics = metrics.Nop{}
	if reg != nil {
		m = metrics.NewRecorder(reg)
	}
	return app.NewService(cfg, app.Ports{
		Resolver:   platform.New(),
		Locator:    locator.New(filepath.Base(cfg.TempDir)),
		Downloader: downloader.NewHTTPDownloader(cfg.RequestTimeout, cfg.MaxRedirects, log),
		Installer:  extractor.NewTarInstaller(log),
		Builder:    builder.NewNPMBuilder(builder.NewExecRunner(log), cfg.PackageManager, log),
		Loader:     loader.New(),
		Locker:     lock.New(cfg.BinaryDir),
		Metrics:    m,
		Logger:     log,
	})
}
