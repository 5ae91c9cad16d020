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
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and enqueue pipeline jobs",
}

var (
	jobName     string
	jobStatus   string
	jobLimit    int
	jobPayload  string
	jobPriority int
)

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := url.Values{}
		if jobName != "" {
			q.Set("name", jobName)
		}
		if jobStatus != "" {
			q.Set("status", jobStatus)
		}
		q.Set("limit", strconv.Itoa(jobLimit))
		var jobs []*model.Job
		if err := newClient().Do(cmd.Context(), "GET", "/jobs", q, nil, &jobs); err != nil {
			return err
		}
		if isJSON() {
			return printJSON(jobs)
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs")
			return nil
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Name", "Status", "Attempts", "Run at", "Pipeline", "Last error")
		for _, j := range jobs {
			table.Append([]string{
				j.ID, string(j.Name), string(j.Status),
				fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts),
				fmtTime(j.RunAt), j.Payload.PipelineID, j.LastError,
			})
		}
		return table.Render()
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var j model.Job
		if err := newClient().Do(cmd.Context(), "GET", "/jobs/"+url.PathEscape(args[0]), nil, nil, &j); err != nil {
			return err
		}
		return printJSON(j)
	},
}

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue <flow-name>",
	Short: "Start a flow by hand, e.g. enqueue quote-generation --payload '{\"enquiryId\":\"...\"}'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload model.JobPayload
		if jobPayload != "" {
			if err := json.Unmarshal([]byte(jobPayload), &payload); err != nil {
				return fmt.Errorf("--payload: %w", err)
			}
		}
		body := map[string]any{"name": args[0], "payload": payload, "priority": jobPriority}
		var j model.Job
		if err := newClient().Do(cmd.Context(), "POST", "/jobs", nil, body, &j); err != nil {
			return err
		}
		if isJSON() {
			return printJSON(j)
		}
		fmt.Printf("queued %s as job %s (pipeline %s)\n", j.Name, j.ID, j.Payload.PipelineID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsEnqueueCmd)

	jobsListCmd.Flags().StringVar(&jobName, "name", "", "flow name or alias")
	jobsListCmd.Flags().StringVar(&jobStatus, "status", "", "waiting, active, completed or failed")
	jobsListCmd.Flags().IntVar(&jobLimit, "limit", 50, "maximum rows")
	jobsEnqueueCmd.Flags().StringVar(&jobPayload, "payload", "", "job payload as JSON")
	jobsEnqueueCmd.Flags().IntVar(&jobPriority, "priority", 0, "higher runs first")
}
