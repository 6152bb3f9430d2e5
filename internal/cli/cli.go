// Package cli builds the producer agent's cobra command tree: run,
// status, and version.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bitskyai/producer-agent/internal/app"
	"github.com/bitskyai/producer-agent/internal/config"
	"github.com/bitskyai/producer-agent/internal/constants"
	"github.com/bitskyai/producer-agent/internal/controlplane"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

var (
	configFile string
	version    = "dev"
)

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "producer-agent",
		Short: "Polls a control plane for configuration and work, runs a pluggable worker, reports results",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildVersionCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the producer agent and its operational HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				os.Setenv("PRODUCER_CONFIG_FILE", configFile)
			}

			a, err := app.New()
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()

			a.Start()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.Run(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		},
	}
}

func buildStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Resolve configuration and fetch this producer's config from the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				os.Setenv("PRODUCER_CONFIG_FILE", configFile)
			}

			log, err := logger.New(os.Getenv("LOG_MODE"))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			appCfg := app.LoadConfig(log)
			resolver := config.NewResolver(log, appCfg.ConfigFile, appCfg.PublicDir)
			local := resolver.Resolve()
			if local.BaseURL == "" || local.GlobalID == "" {
				return fmt.Errorf("BITSKY_BASE_URL and GLOBAL_ID are required")
			}

			cp := controlplane.New(log, controlplane.DefaultConfig())
			remote, err := cp.GetProducerConfig(context.Background(), local.BaseURL, local.GlobalID, constants.DefaultProducerType, local.SecurityKey)
			if err != nil {
				return fmt.Errorf("get producer config: %w", err)
			}

			if asJSON {
				raw, err := json.MarshalIndent(remote, "", "  ")
				if err != nil {
					return fmt.Errorf("encode producer config: %w", err)
				}
				fmt.Println(string(raw))
				return nil
			}

			fmt.Printf("globalId: %s\n", remote.GlobalID)
			fmt.Printf("type:     %s\n", remote.Type)
			fmt.Printf("state:    %s\n", remote.System.State)
			fmt.Printf("version:  %s\n", remote.System.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the producer config as JSON")
	return cmd
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the producer agent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
