package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"msgflow/backend/internal/models"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func statusColor(s models.ScheduledStatus) string {
	switch s {
	case models.ScheduledSent:
		return color.New(color.FgGreen).Sprint(s)
	case models.ScheduledFailed:
		return color.New(color.FgRed).Sprint(s)
	case models.ScheduledCancelled:
		return color.New(color.FgYellow).Sprint(s)
	}
	return color.New(color.FgBlue).Sprint(s)
}

func scheduledCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			msgs, err := svc.Schedule.List(context.Background(), models.ScheduledStatus(status))
			if err != nil {
				return fmt.Errorf("failed to list scheduled messages: %w", err)
			}
			if len(msgs) == 0 {
				fmt.Println("No scheduled messages found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTO\tTYPE\tSCHEDULED\tSTATUS\tATTEMPTS\tLAST ERROR")
			for _, m := range msgs {
				lastErr := ""
				if m.LastError != nil {
					lastErr = *m.LastError
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					m.ID, m.To, m.MessageType, m.ScheduledTime.Format(time.RFC3339), statusColor(m.Status), m.Attempts, lastErr)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("status", "", "filter by PENDING, SENT, FAILED or CANCELLED")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel a scheduled message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := svc.Schedule.Cancel(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to cancel %s: %w", args[0], err)
			}
			fmt.Printf("✓ %s is now %s\n", m.ID, statusColor(m.Status))
			return nil
		},
	}
}

func rescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule [id] [RFC3339 time]",
		Short: "Put a scheduled message back to PENDING at a new time",
		Long:  "Resets the attempt counter and last error. Use \"now\" to send with the next sweep.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now()
			if args[1] != "now" {
				var err error
				if at, err = time.Parse(time.RFC3339, args[1]); err != nil {
					return fmt.Errorf("invalid time %q: %w", args[1], err)
				}
			}
			m, err := svc.Schedule.Reschedule(context.Background(), args[0], at)
			if err != nil {
				return fmt.Errorf("failed to reschedule %s: %w", args[0], err)
			}
			fmt.Printf("✓ %s is %s for %s\n", m.ID, statusColor(m.Status), m.ScheduledTime.Format(time.RFC3339))
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deliver every due scheduled message once",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := svc.Schedule.Sweep(context.Background(), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("due: %d  sent: %s  retried: %s  failed: %s\n",
				res.Due,
				color.New(color.FgGreen).Sprint(res.Sent),
				color.New(color.FgYellow).Sprint(res.Retried),
				color.New(color.FgRed).Sprint(res.Failed),
			)
			return nil
		},
	}
}

func flowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Manage chat flows",
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete every chat flow with its questions, conversations and responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			if err := svc.Flows.DeleteAll(context.Background()); err != nil {
				return fmt.Errorf("failed to purge flows: %w", err)
			}
			fmt.Println(color.New(color.FgRed).Sprint("✓ All chat flows deleted"))
			return nil
		},
	}
	purge.Flags().Bool("yes", false, "confirm deletion")

	list := &cobra.Command{
		Use:   "list",
		Short: "List chat flows in menu order",
		RunE: func(cmd *cobra.Command, args []string) error {
			flows, err := svc.Flows.List(context.Background())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tID\tNAME\tQUESTIONS")
			for i, f := range flows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", i+1, f.ID, f.Name, len(f.Questions))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(purge, list)
	return cmd
}
