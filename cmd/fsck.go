package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embeddb/embeddb/internal/fsck"
)

var deepVerify bool

var fsckCmd = &cobra.Command{
	Use:   "fsck [name]",
	Short: "Replay a collection's data files, verifying record integrity without mutating state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		report, err := fsck.FastVerify(dbDir, name, cfg.BlobBatchSize)
		if err != nil {
			return err
		}

		if deepVerify {
			digests, err := fsck.DigestAll(dbDir, name, cfg.BlobBatchSize)
			if err != nil {
				return err
			}
			report, err = fsck.DeepVerify(dbDir, name, digests, cfg.BlobBatchSize)
			if err != nil {
				return err
			}
		}

		fmt.Printf("scanned %d records, %d faults\n", report.RecordsScanned, len(report.Faults))
		for _, f := range report.Faults {
			fmt.Printf("  file_id=%d offset=%d: %s\n", f.FileID, f.Offset, f.Reason)
		}
		if !report.OK() {
			return fmt.Errorf("fsck found %d fault(s)", len(report.Faults))
		}
		return nil
	},
}

func init() {
	fsckCmd.Flags().BoolVar(&deepVerify, "deep", false, "Also compute and cross-check BLAKE2b digests")
}
