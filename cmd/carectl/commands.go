package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"plantcare/internal/app"
	"plantcare/internal/models"
	"plantcare/internal/reminder"
	"plantcare/internal/storage"
	"plantcare/internal/worker"
)

func classifyCommand(e *env) *cobra.Command {
	var household string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show the urgency of every plant in a household",
		RunE: func(cmd *cobra.Command, args []string) error {
			plants, err := e.app.Catalog.List(cmd.Context(), household)
			if err != nil {
				return err
			}
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLANT\tNAME\tSTATUS\tDAYS\tNEXT DUE")
			for _, p := range plants {
				st := e.app.Classifier.ClassifyPlant(p, now)
				flag := ""
				if st.MissingCareDate {
					flag = " (no care date)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s%s\n", p.ID, p.Name, st.Status, st.DaysUntil, st.NextDue.Format("2006-01-02"), flag)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household id")
	_ = cmd.MarkFlagRequired("household")
	return cmd
}

func rebuildCommand(e *env) *cobra.Command {
	var (
		household string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Cancel and reschedule a household's plant alerts",
		Long: `Rebuild runs the same full cancel-and-reschedule pass the API performs.
With --dry-run the alerts are planned into a scratch store and printed
instead of replacing the household's pending alerts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !dryRun {
				res, err := e.app.Reminders.Rebuild(ctx, household)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			if _, err := e.app.Catalog.Refresh(ctx, household); err != nil {
				return err
			}
			scratch := storage.NewMemoryAlertStore(time.Now)
			s := reminder.NewScheduler(household, e.app.Catalog, scratch, e.app.ReminderConfig(), nil, e.app.Logger)
			res, err := s.Rebuild(ctx)
			if err != nil {
				return err
			}
			ids, err := scratch.ListPending(ctx)
			if err != nil {
				return err
			}
			planned := make([]models.Alert, 0, len(ids))
			for _, id := range ids {
				if a, ok := scratch.Alert(id); ok {
					planned = append(planned, a)
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"result": res, "alerts": planned})
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan alerts without touching the alert store")
	_ = cmd.MarkFlagRequired("household")
	return cmd
}

func statsCommand(e *env) *cobra.Command {
	var household string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print care statistics for a household",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := e.app.Stats.Stats(cmd.Context(), household)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household id")
	_ = cmd.MarkFlagRequired("household")
	return cmd
}

func sendTestCommand(e *env) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "send-test",
		Short: "Send a test notification over every channel a user has configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := e.app.Sender.SendTest(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("user %s has no eligible notification channel", user)
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func logCommand(e *env) *cobra.Command {
	var (
		limit int
		user  string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List recent delivery attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				entries []models.NotificationLogEntry
				err     error
			)
			if user != "" {
				entries, err = e.app.Store.ListRecentForUser(cmd.Context(), user, limit)
			} else {
				entries, err = e.app.Store.ListRecent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SENT\tUSER\tCHANNEL\tOK\tTITLE\tERROR")
			for _, en := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", en.SentAt.Format(time.RFC3339), en.UserID, en.Channel, en.Success, en.Title, en.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultLogLimit, "number of entries")
	cmd.Flags().StringVar(&user, "user", "", "only this user's entries")
	return cmd
}

func sweepCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and send in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			warnLocalGuard(e.app)
			s := worker.NewSweep(e.app.Catalog, e.app.Store, e.app.Guard, worker.NewDirectDispatcher(e.app.Sender),
				e.app.Classifier, e.app.Config.SweepInterval, e.app.Metrics, e.app.Logger)
			res, err := s.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

// warnLocalGuard reports that dispatch claims die with the process, so a
// second sweep on the same day sends the same reminders again.
func warnLocalGuard(a *app.App) {
	if a.Redis != nil {
		return
	}
	a.Logger.Warn("REDIS_ADDR not set, dispatch claims are not kept between sweep runs and repeated runs re-send reminders",
		"module", "carectl")
}
