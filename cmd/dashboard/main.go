// Command dashboard is a terminal admin dashboard. It keeps live copies of
// the jobs, applications and contacts collections and edits them
// optimistically.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tecky-admin/internal/config"
	"tecky-admin/internal/dashboard"
	"tecky-admin/internal/entitycache"
	"tecky-admin/internal/logger"
	"tecky-admin/internal/push"
	"tecky-admin/internal/restclient"
)

type app struct {
	cfgPath string
	apiURL  string
	pushURL string
	out     string
	timeout time.Duration

	w   io.Writer
	cfg config.Config
	log *zap.Logger
	api *restclient.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dashboard:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{out: "text", timeout: 30 * time.Second}

	root := &cobra.Command{
		Use:           "dashboard",
		Short:         "Admin dashboard for jobs, applications and contacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.w = cmd.OutOrStdout()
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config.yml to read dashboard settings from")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "admin API base URL (env TECKY_API_URL)")
	root.PersistentFlags().StringVar(&a.pushURL, "push-url", "", "push websocket URL (env TECKY_PUSH_URL)")
	root.PersistentFlags().StringVar(&a.out, "out", a.out, "output format: json|text")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", a.timeout, "timeout for one-shot commands")

	root.AddCommand(
		a.watchCmd(),
		a.contactsCmd(),
		a.markReadCmd(),
		a.shortlistCmd(),
		a.setStatusCmd(),
		a.deleteJobCmd(),
		a.deleteContactCmd(),
	)
	return root
}

func (a *app) init() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg := config.Default()
	if a.cfgPath != "" {
		loaded, err := config.Load(a.cfgPath)
		if err != nil {
			return fmt.Errorf("load %s: %w", a.cfgPath, err)
		}
		cfg = loaded
	}
	if err := config.OverlayEnv(&cfg); err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.Dashboard.APIURL = a.apiURL
	}
	if a.pushURL != "" {
		cfg.Dashboard.PushURL = a.pushURL
	}
	if a.out != "text" && a.out != "json" {
		return fmt.Errorf("--out must be json or text, got %q", a.out)
	}
	a.cfg = cfg

	a.log = logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "tecky-dashboard"})

	api, err := restclient.New(cfg.Dashboard.APIURL, restclient.Options{
		RequestRate: cfg.Dashboard.RequestRate,
		Logger:      a.log,
	})
	if err != nil {
		return err
	}
	a.api = api
	return nil
}

// noPush is the transport for one-shot commands, which only need a
// snapshot to mutate against.
type noPush struct{}

func (noPush) Subscribe(push.Handlers) func() { return func() {} }

// oneShot loads a dashboard without a push connection, runs fn and
// unmounts.
func (a *app) oneShot(fn func(ctx context.Context, d *dashboard.Dashboard) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	ctx = logger.ToContext(ctx, a.log)

	d := dashboard.New(a.api, noPush{}, dashboard.Options{Logger: a.log})
	defer d.Close()
	if err := d.Load(ctx); err != nil {
		return err
	}
	return fn(ctx, d)
}

func (a *app) print(v any, text func()) {
	if a.out == "json" {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(a.w, string(b))
		return
	}
	text()
}

func pendingMark(p entitycache.PendingState) string {
	switch p {
	case entitycache.PendingOptimistic:
		return " (saving)"
	case entitycache.PendingFailed:
		return " (failed)"
	default:
		return ""
	}
}
