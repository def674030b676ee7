// Command lifeos-mcp serves the execute_sql tool over MCP stdio so other
// assistants can read and write the same tasks, reminders and notes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
	"github.com/vthunder/lifeos/internal/config"
	"github.com/vthunder/lifeos/internal/gateway"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/store"
)

const version = "1.0.0"

func main() {
	dbPath := pflag.String("db", "", "database path (overrides LIFEOS_DB_PATH)")
	configPath := pflag.String("config", "", "config file, .yaml or .toml")
	pflag.Parse()

	config.LoadDotenv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(config.ModeStore); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol; logs only go to stderr and the log file
	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetLocation(cfg.Location)
	if err := db.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
		os.Exit(1)
	}

	s := newServer(gateway.New(db, gateway.Options{}))
	logging.Info("lifeos-mcp", "Serving %s on stdio (db=%s)", gateway.ToolName, cfg.DBPath)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(gw *gateway.Gateway) *server.MCPServer {
	s := server.NewMCPServer(
		"lifeos",
		version,
		server.WithToolCapabilities(true),
	)
	s.AddTool(executeTool(gw), handleExecute(gw))
	return s
}

func executeTool(gw *gateway.Gateway) mcp.Tool {
	def := gw.Definition()
	return mcp.NewTool(def.Name,
		mcp.WithDescription(def.Description),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("A single SQLite statement. Use ? placeholders with params for user-supplied text."),
		),
		mcp.WithArray("params",
			mcp.Description("Optional positional values bound to ? placeholders, in order."),
		),
	)
}

func handleExecute(gw *gateway.Gateway) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		arguments, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		out, err := gw.Execute(ctx, string(arguments))
		if err != nil {
			return nil, err
		}

		result := mcp.NewToolResultText(out)
		result.IsError = gjson.Get(out, "error").Exists()
		return result, nil
	}
}
