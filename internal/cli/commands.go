package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/livetodo/internal/app"
	"github.com/idilsaglam/livetodo/internal/config"
	"github.com/idilsaglam/livetodo/internal/model"
	"github.com/idilsaglam/livetodo/internal/ui"
	"github.com/idilsaglam/livetodo/internal/web"
)

func newTUICmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive list (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, g)
		},
	}
}

func runTUI(cmd *cobra.Command, g *globalFlags) error {
	// The alt screen owns the terminal; logs only go to log_file.
	s, err := openSession(cmd.Context(), g.configPath, g.overrides(cmd), io.Discard)
	if err != nil {
		return err
	}
	defer s.close()
	return ui.Run(cmd.Context(), s.ctrl)
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the list to browsers",
		Long: `Serve the list over HTTP. Browsers get the page at / and live updates over
a websocket at /ws. Prometheus metrics are at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := g.overrides(cmd)
			if cmd.Flags().Changed("listen") {
				ov.Listen = &listen
			}
			s, err := openSession(cmd.Context(), g.configPath, ov, os.Stderr)
			if err != nil {
				return err
			}
			defer s.close()
			return web.New(s.ctrl, s.logger, s.metrics).Run(cmd.Context(), s.cfg.Listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", config.DefaultListen, "Address to listen on")
	return cmd
}

func newListCmd(g *globalFlags) *cobra.Command {
	var theme string
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "Print the list, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := g.overrides(cmd)
			if cmd.Flags().Changed("theme") {
				ov.Theme = &theme
			}
			s, err := openSession(cmd.Context(), g.configPath, ov, os.Stderr)
			if err != nil {
				return err
			}
			defer s.close()

			items, err := s.ctrl.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			ui.SetTheme(s.cfg.Theme)
			out := cmd.OutOrStdout()
			ui.Panel(out, ui.ListLines(out, items))
			return nil
		},
	}
	cmd.Flags().StringVar(&theme, "theme", config.DefaultTheme, "Output theme (classic, neon, mono)")
	return cmd
}

func newAddCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <content...>",
		Short: "Add an item",
		Example: `  todo add Buy milk
  todo add "Call the plumber"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, func(ctx context.Context, ctrl *app.Controller) error {
				w := ctrl.Add(ctx, strings.Join(args, " "))
				if err := w.Wait(ctx); err != nil {
					return fmt.Errorf("add: %w", err)
				}
				ui.OK("added " + w.ID())
				return nil
			})
		},
	}
}

func newDoneCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Flip an item between open and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, func(ctx context.Context, ctrl *app.Controller) error {
				it, err := lookup(ctx, ctrl, args[0])
				if err != nil {
					return err
				}
				if err := ctrl.Toggle(ctx, it.ID, !it.Completed).Wait(ctx); err != nil {
					return fmt.Errorf("toggle: %w", err)
				}
				if it.Completed {
					ui.OK("reopened " + it.ID)
				} else {
					ui.OK("completed " + it.ID)
				}
				return nil
			})
		},
	}
}

func newRmCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an item",
		Long:    "Delete an item. Deleting an id that is not in the list succeeds and changes nothing.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, func(ctx context.Context, ctrl *app.Controller) error {
				id := args[0]
				if _, err := lookup(ctx, ctrl, id); err != nil {
					if !errors.Is(err, errNoItem) {
						return err
					}
					ui.OK("nothing to delete: " + id)
					return nil
				}
				if err := ctrl.Delete(ctx, app.DeleteControlID(id)).Wait(ctx); err != nil {
					return fmt.Errorf("delete: %w", err)
				}
				ui.OK("deleted " + id)
				return nil
			})
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print an example config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.Example())
		},
	}
}

// withController opens a session, runs fn and closes the session.
func withController(cmd *cobra.Command, g *globalFlags, fn func(context.Context, *app.Controller) error) error {
	s, err := openSession(cmd.Context(), g.configPath, g.overrides(cmd), os.Stderr)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(cmd.Context(), s.ctrl)
}

var errNoItem = errors.New("no item")

// lookup fetches the list and finds id in it.
func lookup(ctx context.Context, ctrl *app.Controller, id string) (model.TodoItem, error) {
	if _, err := ctrl.Fetch(ctx); err != nil {
		return model.TodoItem{}, err
	}
	it, ok := ctrl.Lookup(id)
	if !ok {
		return model.TodoItem{}, fmt.Errorf("%w %q in %s", errNoItem, id, ctrl.Collection())
	}
	return it, nil
}
