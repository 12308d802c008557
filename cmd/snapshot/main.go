package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"TanssiDashboard/internal/aggregator"
	"TanssiDashboard/internal/chain"
	"TanssiDashboard/internal/config"
	"TanssiDashboard/internal/display"
	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/prober"
	"TanssiDashboard/internal/resolver"
)

var (
	configFlag  string
	networkFlag string
	jsonFlag    bool
	levelFlag   string
)

var errResolution = errors.New("target resolution failed")

var rootCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Probe every chain of a network once and print the status table",
	Long: `Resolve the chains of a Tanssi network, probe each of them once and print
the same table the dashboard shows.

Examples:
  snapshot
  snapshot --network flashbox
  snapshot --config configs/config.yaml --json`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "path to config.yaml (defaults to CONFIG_PATH or configs/config.yaml)")
	rootCmd.Flags().StringVarP(&networkFlag, "network", "n", "", "network to probe (defaults to dashboard.default_network)")
	rootCmd.Flags().BoolVar(&jsonFlag, "json", false, "print the rendered view as json")
	rootCmd.Flags().StringVar(&levelFlag, "log-level", "warn", "log level")
}

func run(ctx context.Context) error {
	log.SetLevel(levelFlag)

	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	network := strings.ToLower(strings.TrimSpace(networkFlag))
	if network == "" {
		network = cfg.Dashboard.DefaultNetwork
	}
	net, ok := cfg.Networks[network]
	if !ok {
		return fmt.Errorf("network %q is not configured", network)
	}

	connector := chain.WSConnector{}
	agg := aggregator.New(
		resolver.New(cfg.Networks, connector, cfg.ResolveTimeout(), cfg.Dashboard.FailoverThreshold),
		prober.New(connector, cfg.ProbeTimeout()),
		nil,
		aggregator.Options{MaxParallel: cfg.Dashboard.MaxParallelProbes},
	)
	snap := agg.Once(ctx, network)

	renderer := display.Renderer{
		BlockTimeOffset: cfg.BlockTimeOffset(),
		Titles:          map[string]string{network: net.Title},
	}
	view := renderer.Render(snap)
	if jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return err
		}
	} else {
		fmt.Print(display.RenderTerminal(view))
	}

	if snap.Error != "" {
		return errResolution
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
