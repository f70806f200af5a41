// swarmctl is the command-line client for swarmd. Mutating commands are
// signed with the local agent key.
//
// Usage:
//
//	swarmctl keygen
//	swarmctl init --max-agents 5 --min-votes 3
//	swarmctl register --type analytics --name scout
//	swarmctl propose --type trade --description "..." --data '{"pair":"SOL/USDC"}'
//	swarmctl vote 0 approve --reasoning "..."
//	swarmctl execute 0
//	swarmctl show proposal 0
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const envServer = "SWARMGOV_URL"

type globalOptions struct {
	server  string
	keyPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "swarmctl",
		Short:         "Govern an agent swarm from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv(envServer)
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "swarmd base URL (env "+envServer+")")
	cmd.PersistentFlags().StringVar(&opts.keyPath, "key", defaultKeyPath(), "Ed25519 agent key file")

	cmd.AddCommand(
		newKeygenCmd(opts),
		newWhoamiCmd(opts),
		newInitCmd(opts),
		newRegisterCmd(opts),
		newProposeCmd(opts),
		newVoteCmd(opts),
		newExecuteCmd(opts),
		newReputationCmd(opts),
		newActivityCmd(opts, "activate", true),
		newActivityCmd(opts, "deactivate", false),
		newOutcomeCmd(opts),
		newShowCmd(opts),
	)
	return cmd
}

// signedClient loads the key and returns a client that can mutate.
func (o *globalOptions) signedClient() (*Client, error) {
	key, err := loadKey(o.keyPath)
	if err != nil {
		return nil, err
	}
	return newClient(o.server, key), nil
}

func (o *globalOptions) readClient() *Client {
	return newClient(o.server, nil)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
