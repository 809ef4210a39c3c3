package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var AllocatorCmd = &cobra.Command{
	Use:   "allocator",
	Short: "Inspect and grow the page allocator's demo sub-memory",
}

func init() {
	AllocatorCmd.AddCommand(&cobra.Command{
		Use:   "pages",
		Short: "Show the demo sub-memory's current logical page count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sm := appStore().SubMemory(smAllocatorDemo)
			fmt.Fprintf(cmd.OutOrStdout(), "logical pages: %d\n", sm.LogicalPages())
			return nil
		},
	})

	growCmd := &cobra.Command{
		Use:   "grow <pages>",
		Short: "Grow the demo sub-memory by the given number of logical pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n uint32
			if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
				return fmt.Errorf("invalid page count %q", args[0])
			}
			sm := appStore().SubMemory(smAllocatorDemo)
			prior, err := sm.Grow(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "grew from %d to %d logical pages\n", prior, prior+n)
			return nil
		},
	}
	AllocatorCmd.AddCommand(growCmd)
}
