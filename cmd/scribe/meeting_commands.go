package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			meetings, err := client.ListMeetings(cmd.Context(), statusFilter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(meetings) == 0 {
				fmt.Fprintln(out, "No meetings found")
				return nil
			}

			rows := make([][]string, 0, len(meetings))
			for _, m := range meetings {
				rows = append(rows, []string{
					strconv.FormatInt(m.ID, 10),
					displayTitle(m),
					m.Status,
					m.BotJoinStatus,
					m.StatusChangedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			writeTable(out, []tableColumn{
				{title: "ID", alignRight: true},
				{title: "Title"},
				{title: "Status", state: true},
				{title: "Bot"},
				{title: "Changed"},
			}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Comma-separated status filter (e.g. processing,failed)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one meeting with its processing history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			m, err := client.GetMeeting(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Meeting %d (%s)\n", m.ID, m.PublicID)
			fmt.Fprintf(out, "  Title:      %s\n", displayTitle(*m))
			fmt.Fprintf(out, "  Session:    %s\n", m.SessionID)
			fmt.Fprintf(out, "  Status:     %s (bot %s)\n", m.Status, m.BotJoinStatus)
			fmt.Fprintf(out, "  Created:    %s\n", m.CreatedAt.Local().Format(time.RFC1123))
			if m.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:      %s\n", m.ErrorMessage)
			}
			if m.RecordingViewURL != "" {
				fmt.Fprintf(out, "  Recording:  %s\n", m.RecordingViewURL)
			}
			if m.DocumentViewURL != "" {
				fmt.Fprintf(out, "  Document:   %s\n", m.DocumentViewURL)
			}
			if m.ProcessingStartedAt != nil {
				fmt.Fprintf(out, "  Processing: started %s\n", m.ProcessingStartedAt.Local().Format(time.RFC1123))
			}
			if m.ProcessingCompletedAt != nil {
				fmt.Fprintf(out, "              finished %s\n", m.ProcessingCompletedAt.Local().Format(time.RFC1123))
			}

			if len(m.Attempts) > 0 {
				rows := make([][]string, 0, len(m.Attempts))
				for _, a := range m.Attempts {
					duration := ""
					if a.FinishedAt != nil {
						duration = (time.Duration(a.DurationMS) * time.Millisecond).String()
					}
					rows = append(rows, []string{
						a.Step,
						strconv.Itoa(a.Attempt),
						a.Outcome,
						duration,
						a.Error,
					})
				}
				fmt.Fprintln(out)
				writeTable(out, []tableColumn{
					{title: "Step"},
					{title: "Try", alignRight: true},
					{title: "Outcome", state: true},
					{title: "Duration", alignRight: true},
					{title: "Error"},
				}, rows)
			}
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reprocess a failed meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.RetryMeeting(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retry dispatched for meeting %s\n", args[0])
			return nil
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Trigger processing for a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.ProcessMeeting(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processing dispatched for meeting %s\n", args[0])
			return nil
		},
	}
}

func displayTitle(m meetingView) string {
	if title := strings.TrimSpace(m.Title); title != "" {
		return title
	}
	if m.SessionID != "" {
		return "session " + m.SessionID
	}
	return "(untitled)"
}
