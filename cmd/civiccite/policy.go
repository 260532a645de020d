package main

import (
	"civiccite/internal/policy"

	"github.com/spf13/cobra"
)

func (a *app) policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the trust and safety policy",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Parse a policy file, defaulting to CIVICCITE_POLICY_FILE or the built-in policy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.PolicyFile
			if len(args) == 1 {
				path = args[0]
			}
			p, err := policy.LoadFile(path)
			if err != nil {
				return err
			}
			cmd.Printf("policy %s: %d trusted domains, default tier %s\n", p.Version(), len(p.Domains()), p.DefaultTier())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "tier <url>...",
		Short: "Print the trust tier the active policy assigns to each URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := policy.NewStore(a.cfg.PolicyFile, a.cfg.Languages)
			if err != nil {
				return err
			}
			p := s.Current()
			for _, u := range args {
				cmd.Printf("%s\t%s\n", p.Tier(u), u)
			}
			return nil
		},
	})
	return cmd
}
