package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tecky-admin/internal/dashboard"
	"tecky-admin/internal/domain"
	"tecky-admin/internal/entitycache"
	"tecky-admin/internal/logger"
	"tecky-admin/internal/metrics"
	"tecky-admin/internal/push"
)

func (a *app) watchCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep all collections live and print a line whenever one changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logger.ToContext(ctx, a.log)

			opts := dashboard.Options{Logger: a.log}
			var m *metrics.Metrics
			if metricsAddr != "" {
				m = metrics.New()
				opts.Observer = m.SyncObserver()
			}

			var d *dashboard.Dashboard
			pc := push.New(a.cfg.Dashboard.PushURL, push.Options{
				ReconnectEvery: time.Duration(a.cfg.Dashboard.ReconnectSeconds) * time.Second,
				Logger:         a.log,
				OnReconnect: func() {
					// events missed while disconnected are recovered from fresh snapshots
					if err := d.Refresh(ctx); err != nil {
						a.log.Warn("resync after reconnect", logger.Err(err))
					}
				},
			})
			d = dashboard.New(a.api, pc, opts)
			defer d.Close()

			d.Jobs.Cache().Subscribe(func(items []entitycache.Entry[domain.Job]) {
				fmt.Fprintf(a.w, "%s jobs: %d\n", stamp(), len(items))
			})
			d.Applications.Cache().Subscribe(func(items []entitycache.Entry[domain.Application]) {
				short := 0
				for _, it := range items {
					if it.Value.Status == domain.StatusShortlisted {
						short++
					}
				}
				fmt.Fprintf(a.w, "%s applications: %d (%d shortlisted)\n", stamp(), len(items), short)
			})
			d.Contacts.Cache().Subscribe(func(items []entitycache.Entry[domain.Contact]) {
				unread := 0
				for _, it := range items {
					if !it.Value.Read {
						unread++
					}
				}
				fmt.Fprintf(a.w, "%s contacts: %d (%d unread)\n", stamp(), len(items), unread)
			})

			if err := pc.Connect(ctx); err != nil {
				return fmt.Errorf("connect push: %w", err)
			}
			defer func() { _ = pc.Close() }()

			if err := d.Load(ctx); err != nil {
				return err
			}

			if m != nil {
				srv := &http.Server{Addr: metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("metrics server", logger.Err(err))
					}
				}()
				defer func() { _ = srv.Close() }()
				a.log.Info("serving sync metrics", zap.String("addr", metricsAddr))
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve cache sync metrics on this address, e.g. :9102")
	return cmd
}

func stamp() string { return time.Now().Format("15:04:05") }

func (a *app) contactsCmd() *cobra.Command {
	var (
		status, search, from, to string
		page, pageSize           int
	)
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List contact messages, filtered and paged",
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := dashboard.ParseReadFilter(status)
			if err != nil {
				return err
			}
			q := dashboard.ContactQuery{Status: rf, Search: search, Page: page, PageSize: pageSize, Location: time.Local}
			if q.From, err = parseDay(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if q.To, err = parseDay(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			return a.oneShot(func(_ context.Context, d *dashboard.Dashboard) error {
				pg := d.ContactView(q)
				a.print(pg, func() {
					fmt.Fprintf(a.w, "page %d/%d, %d matching, %d unread overall\n", pg.Page, pg.Pages, pg.Total, pg.Unread)
					for _, e := range pg.Items {
						c := e.Value
						mark := " "
						if !c.Read {
							mark = "*"
						}
						fmt.Fprintf(a.w, "%s %s  %-20s %-28s %s\n", mark, c.SubmittedAt.Local().Format("2006-01-02"), c.Name, c.Email, c.ID)
					}
				})
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "all", "all|read|unread")
	f.StringVar(&search, "search", "", "match name, email, phone or message")
	f.StringVar(&from, "from", "", "first submission day, YYYY-MM-DD")
	f.StringVar(&to, "to", "", "last submission day, YYYY-MM-DD")
	f.IntVar(&page, "page", 1, "page number")
	f.IntVar(&pageSize, "page-size", dashboard.DefaultPageSize, "messages per page")
	return cmd
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func (a *app) markReadCmd() *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "mark-read <contact-id>",
		Short: "Mark a contact message read (or unread with --unread)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(func(ctx context.Context, d *dashboard.Dashboard) error {
				if err := d.SetContactRead(ctx, args[0], !unread); err != nil {
					return err
				}
				e, _ := d.Contacts.Cache().Get(args[0])
				a.print(e.Value, func() { fmt.Fprintf(a.w, "%s read=%t%s\n", e.Value.ID, e.Value.Read, pendingMark(e.Pending)) })
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "mark unread instead")
	return cmd
}

func (a *app) shortlistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shortlist <application-id>",
		Short: "Move an application to the shortlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setStatus(args[0], domain.StatusShortlisted)
		},
	}
}

func (a *app) setStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <application-id> <applied|shortlisted|rejected>",
		Short: "Set an application's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ok := domain.ParseApplicationStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return a.setStatus(args[0], st)
		},
	}
}

func (a *app) setStatus(id string, st domain.ApplicationStatus) error {
	return a.oneShot(func(ctx context.Context, d *dashboard.Dashboard) error {
		if err := d.SetApplicationStatus(ctx, id, st); err != nil {
			return err
		}
		e, _ := d.Applications.Cache().Get(id)
		a.print(e.Value, func() { fmt.Fprintf(a.w, "%s status=%s\n", e.Value.ID, e.Value.Status) })
		return nil
	})
}

func (a *app) deleteJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-job <job-id>",
		Short: "Delete a job posting and its applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(func(ctx context.Context, d *dashboard.Dashboard) error {
				if err := d.DeleteJob(ctx, args[0]); err != nil {
					return err
				}
				a.print(map[string]any{"deleted": args[0]}, func() { fmt.Fprintln(a.w, "deleted", args[0]) })
				return nil
			})
		},
	}
}

func (a *app) deleteContactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-contact <contact-id>",
		Short: "Delete a contact message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(func(ctx context.Context, d *dashboard.Dashboard) error {
				if err := d.DeleteContact(ctx, args[0]); err != nil {
					return err
				}
				a.print(map[string]any{"deleted": args[0]}, func() { fmt.Fprintln(a.w, "deleted", args[0]) })
				return nil
			})
		},
	}
}
