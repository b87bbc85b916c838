package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/loader"
)

var (
	loadFile      string
	loadPathExpr  string
	loadBatchSize int
)

var loadCmd = &cobra.Command{
	Use:   "load [name]",
	Short: "Bulk-load documents from a JSON file via a JSONPath selector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		c, err := openCollection(name)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		data, err := os.ReadFile(loadFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", loadFile, err)
		}

		schema, err := docschema.Load(schemaPath)
		if err != nil {
			return err
		}

		n, err := loader.Load(c, schema, data, loadPathExpr, loadBatchSize)
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d documents into %q\n", n, name)
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVarP(&loadFile, "file", "f", "", "JSON file to load")
	loadCmd.Flags().StringVarP(&loadPathExpr, "jsonpath", "p", "$.*", "JSONPath expression selecting record nodes")
	loadCmd.Flags().IntVarP(&loadBatchSize, "batch", "b", 256, "Insert batch size")
	_ = loadCmd.MarkFlagRequired("file")
}
