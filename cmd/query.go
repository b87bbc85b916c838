package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/embeddb/embeddb/internal/queryengine"
)

var querySQL string

var queryCmd = &cobra.Command{
	Use:   "query [name]",
	Short: "Run a SQL SELECT against a collection via the virtual table adapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		c, err := openCollection(name)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := queryengine.Open(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		tableName := sanitizeTableName(name)
		if err := engine.AttachCollection(name, tableName, c); err != nil {
			return err
		}

		sqlText := strings.ReplaceAll(querySQL, "{table}", tableName)
		rs, err := engine.ExecuteSelect(sqlText)
		if err != nil {
			return err
		}
		defer func() { _ = rs.Close() }()

		return printResultSet(rs)
	},
}

func sanitizeTableName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printResultSet(rs *queryengine.ResultSet) error {
	names := rs.ColumnNames()
	for {
		ok, err := rs.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		row := make([]string, len(names))
		for i, name := range names {
			row[i] = fmt.Sprintf("%s=%v", name, rs.GetValue(i))
		}
		fmt.Println(strings.Join(row, "  "))
	}
}

func init() {
	queryCmd.Flags().StringVarP(&querySQL, "sql", "q", "SELECT * FROM {table}", "SQL to execute; {table} expands to the collection's virtual table name")
	_ = queryCmd.MarkFlagRequired("sql")
}
