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

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "List and act on human review tasks",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review tasks, oldest first",
	RunE:  runReviewsList,
}

var reviewsClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Move a pending task into review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewAction(cmd, args[0], "claim", nil)
	},
}

var reviewsResolveCmd = &cobra.Command{
	Use:   "resolve <task-id>",
	Short: "Resolve a task and resume its pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"note": reviewNote}
		if reviewOverride != "" {
			if !json.Valid([]byte(reviewOverride)) {
				return fmt.Errorf("--override must be JSON")
			}
			body["override"] = json.RawMessage(reviewOverride)
		}
		return reviewAction(cmd, args[0], "resolve", body)
	},
}

var reviewsDismissCmd = &cobra.Command{
	Use:   "dismiss <task-id>",
	Short: "Dismiss a task; its pipeline stays halted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewAction(cmd, args[0], "dismiss", map[string]any{"note": reviewNote})
	},
}

var (
	reviewStatus   string
	reviewReason   string
	reviewLimit    int
	reviewNote     string
	reviewOverride string
)

func init() {
	rootCmd.AddCommand(reviewsCmd)
	reviewsCmd.AddCommand(reviewsListCmd, reviewsClaimCmd, reviewsResolveCmd, reviewsDismissCmd)

	reviewsListCmd.Flags().StringVar(&reviewStatus, "status", "PENDING", "PENDING, IN_REVIEW, RESOLVED or DISMISSED; empty for all")
	reviewsListCmd.Flags().StringVar(&reviewReason, "reason", "", "filter by reason, e.g. LOW_CONFIDENCE")
	reviewsListCmd.Flags().IntVar(&reviewLimit, "limit", 50, "maximum rows")
	reviewsResolveCmd.Flags().StringVar(&reviewNote, "note", "", "resolution note")
	reviewsResolveCmd.Flags().StringVar(&reviewOverride, "override", "", "JSON override handed to the resumed step")
	reviewsDismissCmd.Flags().StringVar(&reviewNote, "note", "", "why the task is dismissed")
	_ = reviewsDismissCmd.MarkFlagRequired("note")
}

func runReviewsList(cmd *cobra.Command, _ []string) error {
	q := url.Values{}
	if reviewStatus != "" {
		q.Set("status", reviewStatus)
	}
	if reviewReason != "" {
		q.Set("reason", reviewReason)
	}
	q.Set("limit", strconv.Itoa(reviewLimit))

	var tasks []*model.HumanReviewTask
	if err := newClient().Do(cmd.Context(), "GET", "/reviews", q, nil, &tasks); err != nil {
		return err
	}
	if isJSON() {
		return printJSON(tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("No review tasks")
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Status", "Reason", "Task", "Entity", "Step", "Assigned", "Created")
	for _, t := range tasks {
		table.Append([]string{
			t.ID, string(t.Status), string(t.Reason), string(t.TaskType),
			t.Entity.Type + "/" + t.Entity.ID, t.Step, t.AssignedTo, fmtTime(t.CreatedAt),
		})
	}
	return table.Render()
}

func reviewAction(cmd *cobra.Command, id, action string, body any) error {
	var t model.HumanReviewTask
	if err := newClient().Do(cmd.Context(), "POST", "/reviews/"+url.PathEscape(id)+"/"+action, nil, body, &t); err != nil {
		return err
	}
	if isJSON() {
		return printJSON(t)
	}
	fmt.Printf("task %s is now %s\n", t.ID, t.Status)
	return nil
}
