package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"dockerdb/internal/container"
	"dockerdb/internal/events"
	"dockerdb/internal/metrics"
	"dockerdb/internal/plugin"
)

func createCmd() *cobra.Command {
	var autoRemove bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the container and its database",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts plugin.Options
			if cmd.Flags().Changed("auto-remove") {
				opts.AutoRemove = &autoRemove
			}
			res, err := runPlugin(cmd, "create", opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&autoRemove, "auto-remove", false, "remove the container when it stops")
	return cmd
}

var simpleShort = map[string]string{
	"destroy": "Remove the container and everything in it",
	"start":   "Start the stopped container",
	"stop":    "Stop the running container",
}

// simpleCmd wraps an app command that takes no options and returns nothing.
func simpleCmd(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: simpleShort[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runPlugin(cmd, name, plugin.Options{})
			return err
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the container state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runPlugin(cmd, "status", plugin.Options{})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
}

func printResult(w io.Writer, res plugin.Result) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.ContainerName == "" {
		fmt.Fprintln(w, "Nothing was created.")
		return nil
	}
	fmt.Fprintf(w, "Container: %s\n", res.ContainerName)
	if res.DatabaseName != "" {
		fmt.Fprintf(w, "Database:  %s\n", res.DatabaseName)
	}
	if res.State != "" {
		fmt.Fprintf(w, "State:     %s\n", res.State)
	}
	return nil
}

func watchCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow container state changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if listen != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						s.logger.Error("metrics server failed", "error", err)
					}
				}()
				defer srv.Close()
				s.logger.Info("serving metrics", "listen", listen)
			}

			docker, err := container.Connect(s.logger)
			if err != nil {
				return err
			}
			defer docker.Close()

			out := cmd.OutOrStdout()
			w := container.NewWatcher(docker, s.cfg.ContainerName, func(name string, state container.State, action string) {
				s.emitter.Emit(events.Event{
					Type:      events.ContainerState,
					Container: name,
					Fields:    map[string]string{"state": state.String(), "action": action},
				})
				fmt.Fprintf(out, "%s  %-8s %s\n", time.Now().Format(time.TimeOnly), state, action)
			}, s.logger)
			return w.Watch(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "serve Prometheus metrics on this address, e.g. :9187")
	return cmd
}
