package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/ielts-tutor-backend/internal/app"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/vocab"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ieltsctl",
		Short:         "Operator tools for the IELTS tutor backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to IELTS_CONFIG_PATH or config/config.yaml)")

	root.AddCommand(newUsersCmd(&configPath))
	root.AddCommand(newVocabCmd(&configPath))
	root.AddCommand(newLessonsCmd(&configPath))
	root.AddCommand(newSnapshotsCmd(&configPath))
	return root
}

// withOperator opens the store, runs fn and replicates whatever fn changed.
func withOperator(configPath string, fn func(ctx context.Context, op *app.Operator) error) error {
	if configPath != "" {
		if err := os.Setenv("IELTS_CONFIG_PATH", configPath); err != nil {
			return err
		}
	}
	log, err := logger.New("production")
	if err != nil {
		return err
	}
	cfg, err := app.LoadConfig(log)
	if err != nil {
		return err
	}
	ctx := context.Background()
	op, err := app.NewOperator(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer op.Close(ctx)
	return fn(ctx, op)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func newUsersCmd(configPath *string) *cobra.Command {
	users := &cobra.Command{Use: "users", Short: "Learner accounts"}

	users.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered learners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(*configPath, func(ctx context.Context, op *app.Operator) error {
				accounts, err := op.Identity.ListUsers(ctx)
				if err != nil {
					return err
				}
				if len(accounts) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no users")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tNAME\tJOINED\tLAST LOGIN")
				for _, a := range accounts {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.User.ID, a.User.Name, formatMillis(a.User.JoinedAt), formatMillis(a.LastLoginAt))
				}
				return w.Flush()
			})
		},
	})

	var password string
	reset := &cobra.Command{
		Use:   "reset-password <name>",
		Short: "Replace a learner's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(*configPath, func(ctx context.Context, op *app.Operator) error {
				if err := op.Identity.ResetPassword(ctx, args[0], password); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s\n", args[0])
				return nil
			})
		},
	}
	reset.Flags().StringVar(&password, "password", "", "new password")
	_ = reset.MarkFlagRequired("password")

	users.AddCommand(reset)
	return users
}

func newVocabCmd(configPath *string) *cobra.Command {
	vc := &cobra.Command{Use: "vocab", Short: "Vocabulary backups"}

	var out string
	export := &cobra.Command{
		Use:   "export <user>",
		Short: "Write a learner's vocabulary as a versioned JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(*configPath, func(ctx context.Context, op *app.Operator) error {
				snap, err := op.Vocab.ExportAll(ctx, args[0])
				if err != nil {
					return err
				}
				raw, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				if out == "" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
					return err
				}
				if err := os.WriteFile(out, raw, 0o644); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d words to %s\n", len(snap.Items), out)
				return nil
			})
		},
	}
	export.Flags().StringVar(&out, "out", "", "output file (stdout when empty)")

	var mode string
	imp := &cobra.Command{
		Use:   "import <user> <file>",
		Short: "Load a vocabulary backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			snap, err := vocab.ParseSnapshot(raw)
			if err != nil {
				return err
			}
			return withOperator(*configPath, func(ctx context.Context, op *app.Operator) error {
				res, err := op.Vocab.ImportAll(ctx, args[0], snap, types.ImportMode(mode))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d words (%d total)\n", res.Added, res.Total)
				return nil
			})
		},
	}
	imp.Flags().StringVar(&mode, "mode", string(types.ImportMerge), "overwrite|merge")

	vc.AddCommand(export, imp)
	return vc
}

func newLessonsCmd(configPath *string) *cobra.Command {
	lessons := &cobra.Command{Use: "lessons", Short: "Lesson notes"}

	lessons.AddCommand(&cobra.Command{
		Use:   "deadlines <user>",
		Short: "Show a learner's upcoming task deadlines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(*configPath, func(ctx context.Context, op *app.Operator) error {
				deadlines, err := op.Notes.UpcomingDeadlines(ctx, args[0], time.Now())
				if err != nil {
					return err
				}
				if len(deadlines) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no upcoming deadlines")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "DUE\tLESSON\tTASK")
				for _, d := range deadlines {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", formatMillis(d.Deadline), d.LessonTitle, d.Text)
				}
				return w.Flush()
			})
		},
	})
	return lessons
}

func newSnapshotsCmd(configPath *string) *cobra.Command {
	snaps := &cobra.Command{Use: "snapshots", Short: "Replicated learner snapshots"}

	snaps.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List learners with a snapshot in the configured sink",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(*configPath, func(ctx context.Context, op *app.Operator) error {
				ids, err := op.Snapshots(ctx)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no snapshots")
					return nil
				}
				for _, id := range ids {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	})

	snaps.AddCommand(&cobra.Command{
		Use:   "restore <user>",
		Short: "Replace a learner's vocabulary and notes with their last snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(*configPath, func(ctx context.Context, op *app.Operator) error {
				snap, err := op.RestoreSnapshot(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "restored %d words and %d lesson notes for %s\n", len(snap.Vocab), len(snap.LessonNotes), args[0])
				return nil
			})
		},
	})
	return snaps
}
