package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create (or open) a collection's data directory under --dir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		c, err := openCollection(name)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		fmt.Printf("collection %q ready at %s (%d documents)\n", name, dbDir, c.Len())
		return nil
	},
}
