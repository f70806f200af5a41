package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

func newKeygenCmd(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an agent key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := generateKey(opts.keyPath, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key:      %s\nidentity: %s\n", opts.keyPath, identityOf(priv))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing key")
	return cmd
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity of the agent key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey(opts.keyPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), identityOf(key))
			return nil
		},
	}
}

func newInitCmd(opts *globalOptions) *cobra.Command {
	var (
		maxAgents int
		minVotes  int
		timeout   int64
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the swarm with this key as authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minVotes == 0 {
				minVotes = swarm.MinVotesFor(maxAgents)
			}
			return signedPost(cmd, opts, "/api/swarm/initialize", map[string]any{
				"max_agents":         maxAgents,
				"min_votes_required": minVotes,
				"proposal_timeout":   timeout,
			})
		},
	}
	cmd.Flags().IntVar(&maxAgents, "max-agents", 5, "Maximum number of agents")
	cmd.Flags().IntVar(&minVotes, "min-votes", 0, "Minimum voters per proposal (default 51% of max agents)")
	cmd.Flags().Int64Var(&timeout, "timeout", swarm.DefaultProposalTimeout, "Proposal voting window in seconds")
	return cmd
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	var typ, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this key as an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := swarm.ParseAgentType(typ); err != nil {
				return err
			}
			return signedPost(cmd, opts, "/api/agents", map[string]any{
				"agent_type": typ,
				"name":       name,
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "analytics", "Agent type (consensus, analytics, execution, risk_management, learning, governance, security, liquidity, arbitrage, custom:N)")
	cmd.Flags().StringVar(&name, "name", "", "Agent name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newProposeCmd(opts *globalOptions) *cobra.Command {
	var typ, description, data, dataFile string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Create a proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := swarm.ParseProposalType(typ); err != nil {
				return err
			}
			payload := []byte(data)
			if dataFile != "" {
				if data != "" {
					return errors.New("--data and --data-file are mutually exclusive")
				}
				var err error
				if payload, err = os.ReadFile(dataFile); err != nil {
					return fmt.Errorf("read data file: %w", err)
				}
			}
			return signedPost(cmd, opts, "/api/proposals", map[string]any{
				"proposal_type": typ,
				"data":          payload,
				"description":   description,
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "Proposal type (rebalance, trade, risk_limit, strategy, emergency)")
	cmd.Flags().StringVar(&description, "description", "", "Human-readable description")
	cmd.Flags().StringVar(&data, "data", "", "Action payload")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "Read the action payload from a file")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newVoteCmd(opts *globalOptions) *cobra.Command {
	var reasoning string
	cmd := &cobra.Command{
		Use:   "vote <proposal-id> <approve|reject|abstain>",
		Short: "Vote on a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(args[0])
			if err != nil {
				return err
			}
			if _, err := swarm.ParseVoteChoice(args[1]); err != nil {
				return err
			}
			return signedPost(cmd, opts, "/api/proposals/"+id+"/votes", map[string]any{
				"choice":    args[1],
				"reasoning": reasoning,
			})
		},
	}
	cmd.Flags().StringVar(&reasoning, "reasoning", "", "Why you voted this way")
	return cmd
}

func newExecuteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <proposal-id>",
		Short: "Execute an approved proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(args[0])
			if err != nil {
				return err
			}
			return signedPost(cmd, opts, "/api/proposals/"+id+"/execute", nil)
		},
	}
}

func newReputationCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reputation <agent> <score>",
		Short: "Apply a performance score (0-1000) to an agent (authority only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid score %q", args[1])
			}
			return signedPost(cmd, opts, "/api/agents/"+url.PathEscape(args[0])+"/reputation", map[string]any{
				"performance_score": score,
			})
		},
	}
}

func newActivityCmd(opts *globalOptions, use string, active bool) *cobra.Command {
	short := "Reinstate a suspended agent (authority only)"
	if !active {
		short = "Suspend an agent (authority only)"
	}
	return &cobra.Command{
		Use:   use + " <agent>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return signedPost(cmd, opts, "/api/agents/"+url.PathEscape(args[0])+"/active", map[string]any{
				"active": active,
			})
		},
	}
}

func newOutcomeCmd(opts *globalOptions) *cobra.Command {
	var metrics string
	cmd := &cobra.Command{
		Use:   "outcome <proposal-id> <success|failure>",
		Short: "Record the outcome of an executed proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(args[0])
			if err != nil {
				return err
			}
			var success bool
			switch args[1] {
			case "success":
				success = true
			case "failure":
			default:
				return fmt.Errorf("invalid outcome %q: want success or failure", args[1])
			}
			return signedPost(cmd, opts, "/api/proposals/"+id+"/outcome", map[string]any{
				"success": success,
				"metrics": []byte(metrics),
			})
		},
	}
	cmd.Flags().StringVar(&metrics, "metrics", "", "Performance metrics payload")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show swarm state",
	}

	var status string
	proposals := &cobra.Command{
		Use:   "proposals",
		Short: "List proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/proposals"
			if status != "" {
				path += "?status=" + url.QueryEscape(status)
			}
			return show(cmd, opts, path)
		},
	}
	proposals.Flags().StringVar(&status, "status", "", "Filter by status (open, executed, expired)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "swarm",
			Short: "Show the swarm config",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(cmd, opts, "/api/swarm")
			},
		},
		&cobra.Command{
			Use:   "agents",
			Short: "List agents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(cmd, opts, "/api/agents")
			},
		},
		&cobra.Command{
			Use:   "agent [identity]",
			Short: "Show an agent (default: this key)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var owner string
				if len(args) == 1 {
					owner = args[0]
				} else {
					key, err := loadKey(opts.keyPath)
					if err != nil {
						return err
					}
					owner = identityOf(key)
				}
				return show(cmd, opts, "/api/agents/"+url.PathEscape(owner))
			},
		},
		proposals,
		&cobra.Command{
			Use:   "proposal <id>",
			Short: "Show a proposal",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseProposalID(args[0])
				if err != nil {
					return err
				}
				return show(cmd, opts, "/api/proposals/"+id)
			},
		},
		&cobra.Command{
			Use:   "votes <proposal-id>",
			Short: "List ballots on a proposal",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseProposalID(args[0])
				if err != nil {
					return err
				}
				return show(cmd, opts, "/api/proposals/"+id+"/votes")
			},
		},
		&cobra.Command{
			Use:   "outcome <proposal-id>",
			Short: "Show the outcome of a proposal",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseProposalID(args[0])
				if err != nil {
					return err
				}
				return show(cmd, opts, "/api/proposals/"+id+"/outcome")
			},
		},
	)
	return cmd
}

func signedPost(cmd *cobra.Command, opts *globalOptions, path string, body any) error {
	client, err := opts.signedClient()
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := client.post(cmd.Context(), path, body, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func show(cmd *cobra.Command, opts *globalOptions, path string) error {
	var out json.RawMessage
	if err := opts.readClient().get(cmd.Context(), path, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// parseProposalID validates a proposal id argument and returns it in
// canonical form.
func parseProposalID(s string) (string, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid proposal id %q", s)
	}
	return strconv.FormatUint(id, 10), nil
}
