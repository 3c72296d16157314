package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mstolbov/askdb/internal/config"
	"github.com/mstolbov/askdb/internal/store"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question about the dataset",
	Long: `Ask the assistant a question about the dataset.

Examples:
  askdb ask "how many BMWs were sold in 2015?"
  askdb ask --session 4f1c "and what was their average price?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"message": question}
		if sessionID != "" {
			body["session_id"] = sessionID
		}

		resp, err := client.post(cmd.Context(), "/v1/chat", body)
		if err != nil {
			return err
		}

		var result struct {
			SessionID string          `json:"session_id"`
			Answer    string          `json:"answer"`
			ToolCalls int             `json:"tool_calls"`
			Chart     json.RawMessage `json:"chart"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.Chart) > 0 {
			fmt.Println()
			fmt.Println(colorize(colorBold, "Chart:"))
			var pretty map[string]any
			if json.Unmarshal(result.Chart, &pretty) == nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.Encode(pretty)
			}
		}
		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session ID to continue a conversation")
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only SELECT query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sql := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/query", map[string]any{"sql_query": sql})
		if err != nil {
			return err
		}

		var result store.QueryResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Success {
			printError("%s", result.Error)
			return fmt.Errorf("query rejected")
		}

		fmt.Println(colorize(colorBold, strings.Join(result.Columns, "\t")))
		for _, row := range result.Rows {
			cells := make([]string, len(result.Columns))
			for i, col := range result.Columns {
				cells[i] = fmt.Sprintf("%v", row[col])
			}
			fmt.Println(strings.Join(cells, "\t"))
		}
		printStatus("Rows", "%d", result.RowCount)
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics for the dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/statistics")
		if err != nil {
			return err
		}

		var stats store.Statistics
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Records", "%d", stats.TotalRecords)
		printStatus("Avg price", "%.2f", stats.AvgPrice)
		printStatus("Price range", "%.0f – %.0f", stats.MinPrice, stats.MaxPrice)
		printStatus("Years", "%d – %d", stats.YearRange.Min, stats.YearRange.Max)

		fmt.Fprintln(os.Stderr, colorize(colorBold, "  Top makes:"))
		for _, g := range stats.TopMakes {
			fmt.Fprintf(os.Stderr, "    %-20s %d\n", g.Value, g.Count)
		}
		fmt.Fprintln(os.Stderr, colorize(colorBold, "  Top models:"))
		for _, g := range stats.TopModels {
			fmt.Fprintf(os.Stderr, "    %-20s %d\n", g.Value, g.Count)
		}
		return nil
	},
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the cars table schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/schema")
		if err != nil {
			return err
		}

		var info store.TableInfo
		if err := decodeJSON(resp, &info); err != nil {
			return err
		}

		fmt.Println(colorize(colorBold, info.TableName))
		for _, col := range info.Columns {
			fmt.Printf("  %-20s %s\n", col.Name, col.Type)
		}
		return nil
	},
}

// --- exchanges ---

var exchangesCmd = &cobra.Command{
	Use:   "exchanges",
	Short: "List recent question/answer exchanges",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/exchanges?limit=%d", limit))
		if err != nil {
			return err
		}

		var exchanges []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Question  string `json:"question"`
			ToolCalls int    `json:"tool_calls"`
		}
		if err := decodeJSON(resp, &exchanges); err != nil {
			return err
		}

		if len(exchanges) == 0 {
			fmt.Println("No exchanges recorded.")
			return nil
		}

		for _, e := range exchanges {
			question := e.Question
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, shortID(e.ID)),
				e.CreatedAt,
				question,
			)
		}
		return nil
	},
}

func init() {
	exchangesCmd.Flags().Int("limit", 20, "maximum number of exchanges to list")
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Reset a conversation session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/sessions/"+args[0]+"/reset", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s reset", args[0])
		return nil
	},
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a car auction CSV into the local database",
	Long: `Load a car auction CSV into the local database.

The file replaces any previously loaded dataset. Run this before starting
the server, or restart the server afterwards to refresh its schema prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		s, err := store.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer s.Close()

		n, err := s.LoadCSV(file)
		if err != nil {
			return fmt.Errorf("loading CSV: %w", err)
		}

		printSuccess("Loaded %d rows from %s", n, file)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "path to the CSV file to load")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, kv := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, kv.Key), kv.Value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
