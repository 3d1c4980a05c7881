package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmedmhosni/roastify/internal/timer"

	"github.com/spf13/cobra"
)

type timerFlags struct {
	url   string
	token string
}

func (f timerFlags) client() (*timer.Client, error) {
	token := f.token
	if token == "" {
		token = os.Getenv("ROASTIFY_TOKEN")
	}
	if f.url == "" || token == "" {
		return nil, errors.New("--url and --token (or ROASTIFY_TOKEN) are required")
	}
	return timer.NewClient(f.url, token), nil
}

func newTimerCmd() *cobra.Command {
	var flags timerFlags
	timerCmd := &cobra.Command{
		Use:   "timer",
		Short: "Time tracking from the terminal",
	}
	timerCmd.PersistentFlags().StringVar(&flags.url, "url", "http://localhost:8080", "API base URL")
	timerCmd.PersistentFlags().StringVar(&flags.token, "token", "", "bearer token from /auth/login")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the running timer, refreshed every second",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			w := timer.NewWidget(client, timer.WithOnChange(func(s timer.State) {
				render(out, s)
			}))
			err = w.Run(ctx)
			fmt.Fprintln(out)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	var start timer.StartRequest
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a timer, stopping the running one",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			entry, err := client.Start(cmd.Context(), start)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started entry %d at %s\n", entry.ID, entry.StartTime.Local().Format("15:04:05"))
			return nil
		},
	}
	startCmd.Flags().StringVarP(&start.Description, "description", "d", "", "what you are working on")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			w := timer.NewWidget(client)
			if err := w.Poll(cmd.Context()); err != nil {
				return err
			}
			entry, err := w.Stop(cmd.Context())
			if errors.Is(err, timer.ErrNoRunningEntry) {
				fmt.Fprintln(cmd.OutOrStdout(), "no timer running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped entry %d after %s\n", entry.ID, timer.Format(entry.Elapsed(time.Now())))
			return nil
		},
	}

	timerCmd.AddCommand(watchCmd, startCmd, stopCmd)
	return timerCmd
}

func render(out io.Writer, s timer.State) {
	line := "no timer running"
	if s.Running {
		line = timer.Format(s.Elapsed)
		if s.Entry.Description != "" {
			line += "  " + s.Entry.Description
		}
	}
	fmt.Fprintf(out, "\r%-60s", line)
}
