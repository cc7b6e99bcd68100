package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lanwatch/internal/adapter"
	"lanwatch/internal/codec"
	"lanwatch/internal/config"
	"lanwatch/internal/logger"
	"lanwatch/internal/repository/sqlite"
	"lanwatch/internal/service"
)

var version = "dev"

// app holds what every subcommand needs after the root has loaded config
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg        *config.Config
	loadedFrom string
	logger     zerolog.Logger
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:   "lanwatch",
		Short: "Local network device monitor",
		Long: `lanwatch periodically discovers the devices on the local network,
keeps a per-address history in SQLite and categorizes each device by how
often it shows up. Live updates are served over a WebSocket.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: search standard locations)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		a.serveCommand(),
		a.scanCommand(),
		a.statsCommand(),
		a.logCommand(),
		a.notesCommand(),
		a.portsCommand(),
		a.exportCommand(),
		a.configCommand(),
		versionCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads config, applies flag overrides and installs the logger
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		a.logger = logger.GetLogger()
		return nil
	}

	var (
		cfg  *config.Config
		path string
		err  error
	)
	if a.configPath != "" {
		cfg, path, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.loadedFrom = path
	a.logger = l

	source := path
	if source == "" {
		source = "defaults"
	}
	a.logger.Debug().Str("config", source).Str("settings", cfg.Summary()).Msg("Configuration loaded")
	return nil
}

func (a *app) openStore() (*sqlite.Repository, error) {
	repo, err := sqlite.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return repo, nil
}

// discovery builds the source chain in the configured order
func (a *app) discovery() *adapter.ChainDiscovery {
	d := a.cfg.Discovery

	var sources []adapter.Source
	for _, method := range d.Methods {
		switch method {
		case config.MethodNmap:
			opts := []adapter.NmapOption{
				adapter.WithTargets(d.Targets),
				adapter.WithTimeout(d.NmapTimeout.Duration()),
			}
			if d.NmapPath != "" {
				opts = append(opts, adapter.WithBinaryPath(d.NmapPath))
			}
			sources = append(sources, adapter.NewNmapDiscovery(a.logger, opts...))
		case config.MethodARPCache:
			sources = append(sources, adapter.NewARPCacheDiscovery(d.ARPCachePath))
		}
	}

	return adapter.NewChainDiscovery(sources, a.logger,
		adapter.WithResolver(adapter.NewHostnameResolver(d.ResolveTimeout.Duration(), d.ResolveWorkers)),
	)
}

func (a *app) portScanner(full bool) *adapter.PortScanner {
	p := a.cfg.Ports
	if full {
		return adapter.NewPortScanner(adapter.FullRangeConfig(), a.logger)
	}
	return adapter.NewPortScanner(adapter.PortScannerConfig{
		Ports:          p.Ports,
		Timeout:        p.Timeout.Duration(),
		Retries:        p.Retries,
		Workers:        p.Workers,
		SSHFingerprint: !p.DisableSSHFingerprint,
	}, a.logger)
}

// staticState serves a fixed snapshot to the query service outside the server
type staticState struct{ snap service.Snapshot }

func (s staticState) Snapshot() service.Snapshot { return s.snap }

func (a *app) queryService(repo *sqlite.Repository) *service.QueryService {
	return service.NewQueryService(repo, staticState{}, a.cfg.Scan.GraceScans, a.logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) scanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single discovery cycle and print the devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			engine := service.NewReconcileEngine(repo, a.cfg.Scan.GraceScans, a.logger)
			orch := service.NewOrchestrator(a.discovery(), engine, a.cfg.Scan.Interval.Duration(), a.logger)
			if err := orch.RunCycle(cmd.Context(), service.TriggerManual); err != nil {
				return err
			}

			snap := orch.Snapshot()
			return printJSON(service.DevicesView{
				Devices:  snap.Devices,
				Count:    len(snap.Devices),
				LastScan: snap.LastScan,
			})
		},
	}
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print stored history statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			stats, err := a.queryService(repo).Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func (a *app) logCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the newest categorization log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := a.queryService(repo).CategorizationLog(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", service.DefaultLogLimit, "maximum entries to print")
	return cmd
}

func (a *app) notesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notes <address> <text>",
		Short: "Set the notes for a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			res := a.queryService(repo).UpdateNotes(cmd.Context(), args[0], args[1])
			if !res.Success {
				return fmt.Errorf("updating notes: %s", res.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}

func (a *app) portsCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "ports <address>",
		Short: "Probe a device for open ports and known appliances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			open, err := a.portScanner(all).Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var appliance *adapter.ApplianceInfo
			if !a.cfg.Appliance.Disabled {
				numbers := make([]int, len(open))
				for i, p := range open {
					numbers[i] = p.Port
				}
				detector := adapter.NewPiholeDetector(a.cfg.Appliance.Timeout.Duration(), a.logger)
				appliance = detector.Detect(cmd.Context(), args[0], numbers)
			}

			if open == nil {
				open = []adapter.PortInfo{}
			}
			return printJSON(map[string]any{
				"address":   args[0],
				"ports":     open,
				"appliance": appliance,
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "sweep all 65535 ports")
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored inventory to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := codec.ForFormat(format)
			if err != nil {
				return err
			}

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			devices, err := a.queryService(repo).KnownDevices(cmd.Context())
			if err != nil {
				return err
			}
			return exporter.Export(codec.NewInventory(devices, time.Now()), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", fmt.Sprintf("output format %v", codec.Formats()))
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lanwatch %s\n", version)
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "List the config file search order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range config.SearchPaths() {
				marker := " "
				if path == a.loadedFrom {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(a.cfg)
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
