// Command commander is the CLI operators use to dispatch commands to
// executors and administer the task server (§6). Grounded on
// original_source/commander/src/{main,lib,cmd,admin}.rs's StructOpt tree,
// reworked onto cobra the way the teacher's cmd/nova does its subcommands,
// and on internal/executor/remote.go's grpc.NewClient dial pattern.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "commander",
		Short: "Dispatch commands to fleet executors",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to commander config (required)")

	root.AddCommand(runCmd(), interactiveCmd(), keysCmd(), adminCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireConfig() (*commanderConfig, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return loadCommanderConfig(configPath)
}
