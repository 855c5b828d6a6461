package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/progress"
	"github.com/Ning0612/relocator/internal/state"
)

var (
	historyPhase string
	historyLimit int
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the migration state",
	Args:    cobra.NoArgs,
	GroupID: "inspection",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		status, err := svc.Status()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, status)
		}

		printLabelValue(out, "Active collection", orNone(status.ActiveCollection))
		if status.Migration.InProgress() {
			printLabelValue(out, "Migrating from", status.Migration.Source)
			printLabelValue(out, "Migrating to", status.Migration.Destination)
			printLabelValue(out, "Remaining", fmt.Sprintf("%d files, %s",
				status.RemainingFiles, progress.FormatBytes(status.RemainingBytes)))
		} else {
			printLabelValue(out, "Migration", "none in progress")
		}
		if status.Locked && status.Holder != nil {
			printLabelValue(out, "Locked by", fmt.Sprintf("run %s (%s, pid %d on %s, since %s)",
				status.Holder.RunID, status.Holder.Phase, status.Holder.PID,
				status.Holder.Hostname, status.Holder.StartTime.Format(time.RFC3339)))
		}
		printLastRun(out, "Last essential run", status.LastEssential)
		printLastRun(out, "Last user data run", status.LastUserData)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "List recent migration runs",
	Args:    cobra.NoArgs,
	GroupID: "inspection",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		runs, err := svc.History(domain.Phase(historyPhase), historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if runs == nil {
				runs = []state.RunRecord{}
			}
			return outputJSON(out, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "no runs recorded")
			return nil
		}

		fmt.Fprintf(out, "%-36s  %-9s  %-7s  %-20s  %8s  %10s\n", "RUN", "PHASE", "STATUS", "STARTED", "FILES", "BYTES")
		for _, r := range runs {
			fmt.Fprintf(out, "%-36s  %-9s  %-7s  %-20s  %8d  %10s\n",
				r.ID, r.Phase, statusColor(r.Status).Sprint(r.Status),
				r.StartTime.Format("2006-01-02 15:04:05"), r.FilesMoved, progress.FormatBytes(r.BytesMoved))
			if r.Error != "" {
				dimColor.Fprintf(out, "    %s\n", r.Error)
			}
		}
		return nil
	},
}

func printLastRun(out io.Writer, label string, r *state.RunRecord) {
	if r == nil {
		printLabelValue(out, label, "never")
		return
	}
	printLabelValue(out, label, fmt.Sprintf("%s, %d files, %s in %s",
		r.EndTime.Format(time.RFC3339), r.FilesMoved, progress.FormatBytes(r.BytesMoved),
		r.Duration().Round(time.Millisecond)))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	historyCmd.Flags().StringVar(&historyPhase, "phase", "", "only show runs of this phase (essential or userdata)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of runs to show (default from config)")
}
