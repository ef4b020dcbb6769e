package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vipers-surveillance/vipers/internal/eventlog"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query and append to the event log",
}

var logsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, ok, err := openEventLog().Contents()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "No logs available.")
			return nil
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var logsDatesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List the dates that have at least one entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dates, err := openEventLog().DatesWithEntries()
		if err != nil {
			return err
		}
		for _, d := range dates {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

var logsCheckCmd = &cobra.Command{
	Use:   "check [YYYY-MM-DD]",
	Short: "Report whether a date has any entry (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day := time.Now()
		if len(args) == 1 {
			parsed, err := time.ParseInLocation(eventlog.DateLayout, args[0], time.Local)
			if err != nil {
				return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
			}
			day = parsed
		}
		has, err := openEventLog().HasEntriesOn(day)
		if err != nil {
			return err
		}
		if has {
			fmt.Fprintln(cmd.OutOrStdout(), "Detection recorded on this day!")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded.")
		}
		return nil
	},
}

var logsAlertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Report whether the last entry mentions a detection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := openEventLog()
		if _, ok, err := log.Contents(); err != nil {
			return err
		} else if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "System monitoring...")
			return nil
		}
		hit, err := log.LastLineMentionsDetection(cfg.DetectionKeyword)
		if err != nil {
			return err
		}
		if hit {
			fmt.Fprintln(cmd.OutOrStdout(), "Detection event recently logged!")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No current threats.")
		}
		return nil
	},
}

var logsAppendCmd = &cobra.Command{
	Use:   "append MESSAGE...",
	Short: "Append a timestamped entry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return openEventLog().Append(strings.Join(args, " "))
	},
}

func init() {
	logsCmd.AddCommand(logsShowCmd, logsDatesCmd, logsCheckCmd, logsAlertCmd, logsAppendCmd)
	rootCmd.AddCommand(logsCmd)
}
