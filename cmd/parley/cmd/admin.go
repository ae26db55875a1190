package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/admin"
	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/model"
)

var (
	listScope  string
	listStatus string
	listSearch string
	listCursor string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Support-staff triage commands",
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List support threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters := admin.Filters{
			Scope:  backend.AssignmentScope(listScope),
			Status: model.TriageStatus(listStatus),
			Search: listSearch,
		}
		page, err := parleyApp.Admin.ListThreads(context.Background(), filters, listCursor)
		if err != nil {
			return err
		}
		for _, t := range page.Threads {
			assignee := t.AssignedAdminID
			if assignee == "" {
				assignee = "-"
			}
			fmt.Printf("%s  [%s/%s]  %-10s  %s\n", t.ID, t.TriageStatus, t.Priority, assignee, t.Summary)
		}
		if page.HasMore {
			fmt.Printf("more: --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

var adminAssignCmd = &cobra.Command{
	Use:   "assign <thread-id> [admin-id]",
	Short: "Assign a thread (defaults to yourself)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminID := ""
		if len(args) > 1 {
			adminID = args[1]
		}
		return parleyApp.Admin.Assign(context.Background(), args[0], adminID)
	},
}

var adminStatusCmd = &cobra.Command{
	Use:   "status <thread-id> <open|done>",
	Short: "Update a thread's triage status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return parleyApp.Admin.SetStatus(context.Background(), args[0], model.TriageStatus(args[1]))
	},
}

var adminPriorityCmd = &cobra.Command{
	Use:   "priority <thread-id> <low|medium|high>",
	Short: "Update a thread's priority",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return parleyApp.Admin.SetPriority(context.Background(), args[0], model.Priority(args[1]))
	},
}

var adminNoteCmd = &cobra.Command{
	Use:   "note <thread-id> <text>",
	Short: "Add an internal note to a thread",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return parleyApp.Admin.AddNote(context.Background(), args[0], args[1])
	},
}

func init() {
	adminListCmd.Flags().StringVar(&listScope, "scope", "all", "assignment scope: all, unassigned, mine")
	adminListCmd.Flags().StringVar(&listStatus, "status", "open", "triage status: open, done")
	adminListCmd.Flags().StringVar(&listSearch, "search", "", "free-text search")
	adminListCmd.Flags().StringVar(&listCursor, "cursor", "", "pagination cursor")

	adminCmd.AddCommand(adminListCmd, adminAssignCmd, adminStatusCmd, adminPriorityCmd, adminNoteCmd)
	rootCmd.AddCommand(adminCmd)
}
