package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/usecase"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change AI config keys",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every config key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var entries []*model.AiConfigEntry
		if err := newClient().Do(cmd.Context(), "GET", "/config", nil, nil, &entries); err != nil {
			return err
		}
		if isJSON() {
			return printJSON(entries)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Key", "Version", "Updated by", "Updated", "Value")
		for _, e := range entries {
			table.Append([]string{e.Key, strconv.Itoa(e.Version), e.UpdatedBy, fmtTime(e.UpdatedAt), string(e.Value)})
		}
		return table.Render()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one key's value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var e model.AiConfigEntry
		if err := newClient().Do(cmd.Context(), "GET", "/config/"+url.PathEscape(args[0]), nil, nil, &e); err != nil {
			return err
		}
		if isJSON() {
			return printJSON(e)
		}
		return printJSON(e.Value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <json-value>",
	Short: "Replace one key's value; the server validates it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("value must be JSON")
		}
		var e model.AiConfigEntry
		if err := newClient().Do(cmd.Context(), "PUT", "/config/"+url.PathEscape(args[0]), nil, json.RawMessage(args[1]), &e); err != nil {
			return err
		}
		fmt.Printf("%s updated to version %d\n", e.Key, e.Version)
		return nil
	},
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show today's AI spend against the ceiling",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var snap usecase.BudgetSnapshot
		if err := newClient().Do(cmd.Context(), "GET", "/budget", nil, nil, &snap); err != nil {
			return err
		}
		if isJSON() {
			return printJSON(snap)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Property", "Value")
		table.Append([]string{"Day", snap.Day.Format("2006-01-02")})
		table.Append([]string{"Status", string(snap.Status)})
		table.Append([]string{"Spent", fmt.Sprintf("$%.4f", snap.SpentUSD)})
		table.Append([]string{"Ceiling", fmt.Sprintf("$%.2f", snap.Budget.BudgetUSD)})
		for task, micros := range snap.ByTask {
			table.Append([]string{"  " + string(task), fmt.Sprintf("$%.4f", float64(micros)/1e6)})
		}
		return table.Render()
	},
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "List active model prices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var prices []*model.ModelPricing
		if err := newClient().Do(cmd.Context(), "GET", "/pricing", nil, nil, &prices); err != nil {
			return err
		}
		if isJSON() {
			return printJSON(prices)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Model", "Input µ$/1K", "Output µ$/1K", "Expected output")
		for _, p := range prices {
			table.Append([]string{
				p.ModelName,
				strconv.FormatInt(p.InputPer1KMicros, 10),
				strconv.FormatInt(p.OutputPer1KMicros, 10),
				strconv.Itoa(p.ExpectedOutputTokens),
			})
		}
		return table.Render()
	},
}

func init() {
	rootCmd.AddCommand(configCmd, budgetCmd, pricingCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}
