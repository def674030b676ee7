package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/vthunder/lifeos/internal/config"
	"github.com/vthunder/lifeos/internal/gateway"
)

var sqlFlags struct {
	params []string
	pretty bool
}

var sqlCmd = &cobra.Command{
	Use:   "sql [statement]",
	Short: "Run one statement through the execute_sql tool",
	Long: `Run one SQLite statement exactly as the assistant would, and print the
JSON tool result. The statement is read from stdin when not given as an
argument. Exits 1 when the result is an error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSQL,
}

func init() {
	sqlCmd.Flags().StringArrayVarP(&sqlFlags.params, "param", "p", nil, "value bound to the next ? placeholder (repeatable)")
	sqlCmd.Flags().BoolVar(&sqlFlags.pretty, "pretty", false, "indent the JSON result")
}

func runSQL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(config.ModeStore)
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	var statement string
	if len(args) == 1 {
		statement = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read statement: %w", err)
		}
		statement = string(data)
	}
	if strings.TrimSpace(statement) == "" {
		return fmt.Errorf("no statement given")
	}

	ctx := cmd.Context()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	arguments, err := toolArguments(statement, sqlFlags.params)
	if err != nil {
		return err
	}
	out, err := gateway.New(db, gateway.Options{}).Execute(ctx, arguments)
	if err != nil {
		return err
	}

	if sqlFlags.pretty {
		out = gjson.Get(out, "@pretty").Raw
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n"))

	if gjson.Get(out, "error").Exists() {
		return exitError{code: 1}
	}
	return nil
}

// toolArguments builds the JSON arguments the model would send
func toolArguments(statement string, params []string) (string, error) {
	out, err := sjson.Set(`{}`, "query", statement)
	if err != nil {
		return "", err
	}
	if len(params) == 0 {
		return out, nil
	}
	return sjson.Set(out, "params", params)
}
