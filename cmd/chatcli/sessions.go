package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/model"
)

func sessionsCmd() *cobra.Command {
	var query string
	var monthly bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions grouped by age",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			svc := requireContainer(ctx).ChatService
			defer shutdown()

			if err := svc.RefreshSessions(ctx); err != nil {
				fatalError(err)
			}
			req := &dto.ListSessionsRequest{Query: query, Grouping: "relative"}
			if monthly {
				req.Grouping = "monthly"
			}
			groups := svc.ListSessions(ctx, req)
			if len(groups) == 0 {
				fmt.Println("No sessions")
				return
			}
			for _, g := range groups {
				fmt.Println(g.Label)
				for _, s := range g.Sessions {
					fmt.Printf("  %s  %s\n", s.Id, s.Title)
				}
			}
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Filter by title")
	cmd.Flags().BoolVar(&monthly, "monthly", false, "Group sessions older than 30 days by month")

	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			svc := requireContainer(ctx).ChatService
			defer shutdown()

			id, err := uuid.Parse(args[0])
			if err != nil {
				fatalError(fmt.Errorf("invalid session id %q", args[0]))
			}
			if err := svc.RefreshSessions(ctx); err != nil {
				fatalError(err)
			}
			if err := svc.DeleteSession(ctx, id); err != nil {
				fatalError(err)
			}
			fmt.Printf("Deleted %s\n", id)
		},
	}
	cmd.AddCommand(deleteCmd)
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the SQL that provisions the store",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(model.SchemaSQL())
		},
	}
}
