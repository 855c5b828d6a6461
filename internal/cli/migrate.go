package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Ning0612/relocator/internal/progress"
	"github.com/Ning0612/relocator/internal/service"
)

var essentialDest string

var useCmd = &cobra.Command{
	Use:     "use <directory>",
	Short:   "Set the directory of the active collection",
	Args:    cobra.ExactArgs(1),
	GroupID: "migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.SetActiveCollection(args[0]); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("active collection: %s", args[0]))
		return nil
	},
}

var essentialCmd = &cobra.Command{
	Use:   "essential",
	Short: "Copy the collection to the destination and switch to it",
	Long: `Copy the essential files (collection database, media database, .nomedia and
collection log) of the active collection to an empty destination directory, then
make the destination the active collection. The remaining user data is moved by
"relocate userdata".`,
	Args:    cobra.NoArgs,
	GroupID: "migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signalContext()
		defer stop()

		record, err := svc.RunEssential(ctx, essentialDest)
		if err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("essential files moved to %s (%s)",
			record.Destination, progress.FormatBytes(record.BytesMoved)))
		return nil
	},
}

var userdataCmd = &cobra.Command{
	Use:     "userdata",
	Short:   "Move the remaining user data to the destination",
	Args:    cobra.NoArgs,
	GroupID: "migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		out := cmd.OutOrStdout()
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) && !jsonOutput {
			svc.SetProgressReporter(progress.NewCallbackReporter(progressLine(out)))
		}

		ctx, stop := signalContext()
		defer stop()

		result, record, err := svc.RunUserData(ctx)
		if errors.Is(err, service.ErrNoMigration) {
			printWarning(out, "no user data migration in progress")
			return nil
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(out, record)
		}
		switch {
		case result.Completed:
			printSuccess(out, fmt.Sprintf("user data migration complete: %d files, %s in %d pass(es)",
				record.FilesMoved, progress.FormatBytes(result.BytesMoved), result.Passes))
		default:
			printWarning(out, fmt.Sprintf("user data migration incomplete: %d files moved, run again to retry", record.FilesMoved))
			if result.Errors != nil {
				for _, e := range result.Errors.Errors {
					printLabelValue(out, "error", e.Error())
				}
			}
		}
		if result.Conflicts > 0 {
			printLabelValue(out, "conflicts", fmt.Sprintf("%d file(s) kept in the conflict directory of the source", result.Conflicts))
		}
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:     "unlock",
	Short:   "Remove the migration lock left by a crashed run",
	Args:    cobra.NoArgs,
	GroupID: "migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Unlock(); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "migration lock removed")
		return nil
	},
}

// signalContext is cancelled on SIGINT or SIGTERM. A cancelled migration
// stops after the current operation and can be resumed.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// progressLine redraws a single progress line on a terminal
func progressLine(w io.Writer) progress.Callback {
	return func(u progress.Update) {
		switch u.Type {
		case progress.UpdateMoved:
			fmt.Fprintf(w, "\r%s %d/%d files %s",
				progress.FormatProgress(u.BytesCompleted, u.BytesTotal, 30),
				u.FilesCompleted, u.FilesTotal,
				progress.FormatSpeed(u.BytesPerSecond))
		case progress.UpdateFinish:
			fmt.Fprintln(w)
		}
	}
}

func init() {
	essentialCmd.Flags().StringVarP(&essentialDest, "dest", "d", "", "destination directory (created if missing, must be empty)")
	essentialCmd.MarkFlagRequired("dest")
}
