package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KHET-1/diamond-drill/internal/proof"
	"github.com/KHET-1/diamond-drill/internal/ui"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <destination|manifest>",
		Short: "Re-hash an export against its proof manifest",
		Long: `verify recomputes the hash of every recovered file listed in a proof
manifest and the manifest's root digest. Missing, resized or altered
files and an edited manifest are reported. The exit code is 1 when any
problem is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, proof.FileName)
			}

			s, err := startSession(cmd, g)
			if err != nil {
				return err
			}
			m, err := proof.Load(path)
			if err != nil {
				s.finish()
				return err
			}
			res := proof.Verify(s.handle.Context(), m)
			s.finish()

			ui.RenderVerify(cmd.OutOrStdout(), res)
			if res.Cancelled {
				return errCancelled
			}
			if !res.Clean() {
				return errPartial
			}
			return nil
		},
	}
}
