package commands

import (
	"github.com/spf13/cobra"
)

// Options holds flags shared by every subcommand.
type Options struct {
	ConfigPath string
}

// NewRootCmd builds the nfeflow command tree. Without a subcommand it runs
// the pipeline once.
func NewRootCmd(version string) *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:   "nfeflow",
		Short: "Drive incoming NF-e invoices through import, link, entry and invoice",
		Long: `nfeflow fetches new NF-e XML documents, imports them into the ERP,
links their line items to the product catalog, posts the accounting entry and
registers the payable. Progress is recorded in the control ledger and in the
cached file names, so an interrupted run resumes where it stopped.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to nfeflow.yaml (default ./nfeflow.yaml when present)")

	root.AddCommand(
		NewRunCmd(opts),
		NewSelftestCmd(opts),
		NewUnlockCmd(opts),
	)
	return root
}
