// Command threadwatch signs in to an activitychat server and prints the
// user's chat thread list every time it changes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"activitychat/internal/client"
	"activitychat/internal/realtime"
	"activitychat/internal/threads"
)

type options struct {
	server   string
	email    string
	password string
	refresh  time.Duration
	json     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "threadwatch",
		Short: "Watch your activity chat threads live",
		Long: "threadwatch signs in, loads your chat threads and keeps the list current " +
			"from the server's realtime feed. Send SIGHUP to force a refresh.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				opts.password = os.Getenv("ACTIVITYCHAT_PASSWORD")
			}
			if opts.email == "" || opts.password == "" {
				return errors.New("--email and --password (or ACTIVITYCHAT_PASSWORD) are required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8000", "server base URL")
	cmd.Flags().StringVar(&opts.email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "account password")
	cmd.Flags().DurationVar(&opts.refresh, "refresh", time.Minute, "periodic refresh interval (0 disables)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print each list as a JSON line")
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	return cmd
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	api, err := client.NewClient(opts.server)
	if err != nil {
		return err
	}
	sess, err := api.Login(ctx, opts.email, opts.password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	glog.Infof("signed in as %s", sess.UserID)

	rt := realtime.NewClient(api.RealtimeURL(), sess.AccessToken)
	defer rt.Close()

	rec := threads.New(api, rt, api)
	updates, unwatch := rec.Watch()
	defer unwatch()
	rec.Start(ctx)
	defer rec.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var tick <-chan time.Time
	if opts.refresh > 0 {
		t := time.NewTicker(opts.refresh)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-rec.Done():
			return nil
		case list, ok := <-updates:
			if !ok {
				return nil
			}
			if err := render(out, list, opts.json); err != nil {
				return err
			}
		case <-hup:
			glog.Info("refresh requested")
			renewSession(ctx, api, rt, opts)
			rec.Refresh()
		case <-tick:
			renewSession(ctx, api, rt, opts)
			rec.Refresh()
		}
	}
}

type tokenSetter interface {
	SetToken(token string)
}

// renewSession signs in again after the client dropped a rejected session.
// On failure the session stays empty and the next Refresh clears the list.
func renewSession(ctx context.Context, api *client.Client, rt tokenSetter, opts *options) {
	if _, err := api.CurrentSession(ctx); !errors.Is(err, threads.ErrNoSession) {
		return
	}
	sess, err := api.Login(ctx, opts.email, opts.password)
	if err != nil {
		glog.Errorf("session expired, login again: %v", err)
		return
	}
	glog.Infof("session renewed for %s", sess.UserID)
	rt.SetToken(sess.AccessToken)
}

// render prints one snapshot of the list.
func render(w io.Writer, list []threads.Thread, asJSON bool) error {
	if asJSON {
		if list == nil {
			list = []threads.Thread{}
		}
		return json.NewEncoder(w).Encode(list)
	}

	fmt.Fprintf(w, "--- %d thread(s) @ %s\n", len(list), time.Now().Format(time.Kitchen))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range list {
		when := "-"
		if t.HasMessages() {
			when = t.LastMessageTime.Local().Format("Jan 2 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.EventName, t.ActivityType, when, t.LastMessageText)
	}
	return tw.Flush()
}

func main() {
	defer glog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(1)
	}
}
