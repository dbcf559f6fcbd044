// Command flmesh is the single multi-role binary for the federated
// learning mesh: one subcommand per role (coordinator, aggregator,
// worker, evaluator, peer, observer), mirroring the host corpus's
// single-binary-multi-role CLI convention.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "flmesh",
		Short: "Distributed actor runtime hosting a federated-learning control plane",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.AddCommand(
		coordinatorCmd(),
		aggregatorCmd(),
		workerCmd(),
		evaluatorCmd(),
		peerCmd(),
		observerCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
