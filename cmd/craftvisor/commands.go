package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/craftvisor/pkg/client"
)

// command runs remote operations against a daemon.
type command struct {
	flags *GlobalFlags
	out   func() io.Writer
}

func (c command) client() (*client.Client, error) {
	base, err := resolveAPIURL(c.flags)
	if err != nil {
		return nil, err
	}
	cfg := client.Config{BaseURL: base, Timeout: c.flags.APITimeout, Insecure: c.flags.Insecure}
	if c.flags.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: c.flags.CACert}
	}
	return client.New(cfg), nil
}

// run builds a client and hands it to fn, printing the non-nil result as JSON.
func (c command) run(ctx context.Context, fn func(context.Context, *client.Client) (any, error)) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	v, err := fn(ctx, cl)
	if err != nil {
		return err
	}
	if v != nil {
		printJSON(c.out(), v)
	}
	return nil
}

func simple(cc command, use, short string, fn func(context.Context, *client.Client) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.run(cmd.Context(), fn)
		},
	}
}

func createStatusCommand(cc command) *cobra.Command {
	return simple(cc, "status", "Show server state, memory and players",
		func(ctx context.Context, cl *client.Client) (any, error) { return cl.Status(ctx) })
}

func createStartCommand(cc command) *cobra.Command {
	return simple(cc, "start", "Start the game server",
		func(ctx context.Context, cl *client.Client) (any, error) { return cl.Start(ctx) })
}

func createStopCommand(cc command) *cobra.Command {
	return simple(cc, "stop", "Stop the game server gracefully",
		func(ctx context.Context, cl *client.Client) (any, error) { return cl.Stop(ctx) })
}

func createRestartCommand(cc command) *cobra.Command {
	return simple(cc, "restart", "Stop and start the game server",
		func(ctx context.Context, cl *client.Client) (any, error) { return cl.Restart(ctx) })
}

func createKillCommand(cc command) *cobra.Command {
	return simple(cc, "kill", "Terminate the game server immediately",
		func(ctx context.Context, cl *client.Client) (any, error) {
			killed, err := cl.Kill(ctx)
			return map[string]bool{"killed": killed}, err
		})
}

func createCmdCommand(cc command) *cobra.Command {
	return &cobra.Command{
		Use:   "cmd <text...>",
		Short: "Send a console command to the running server",
		Long: `Send one console line to the running server. The text is not validated.

Examples:
  craftvisor cmd say hello everyone
  craftvisor cmd op Steve`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			return cc.run(cmd.Context(), func(ctx context.Context, cl *client.Client) (any, error) {
				return nil, cl.Command(ctx, line)
			})
		},
	}
}

func createLogsCommand(cc command) *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print buffered console output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := cc.client()
			if err != nil {
				return err
			}
			lines, err := cl.Logs(cmd.Context(), tail)
			if err != nil {
				return err
			}
			for _, l := range lines {
				_, _ = fmt.Fprintln(cc.out(), l)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 0, "only the last N lines (0 for all)")
	return cmd
}

func createWhitelistCommand(cc command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage the server allow-list",
	}
	cmd.AddCommand(
		simple(cc, "list", "List allowed players",
			func(ctx context.Context, cl *client.Client) (any, error) { return cl.Whitelist(ctx) }),
		&cobra.Command{
			Use:   "add <player>",
			Short: "Allow a player",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return cc.run(cmd.Context(), func(ctx context.Context, cl *client.Client) (any, error) {
					added, err := cl.WhitelistAdd(ctx, args[0])
					return map[string]bool{"added": added}, err
				})
			},
		},
		&cobra.Command{
			Use:   "remove <player>",
			Short: "Remove a player",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return cc.run(cmd.Context(), func(ctx context.Context, cl *client.Client) (any, error) {
					return nil, cl.WhitelistRemove(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

func createPropertiesCommand(cc command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Show or change server.properties",
	}
	cmd.AddCommand(
		simple(cc, "get", "Print all properties",
			func(ctx context.Context, cl *client.Client) (any, error) { return cl.Properties(ctx) }),
		&cobra.Command{
			Use:   "set <key=value>...",
			Short: "Set properties, keeping the others",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				updates, err := parsePairs(args)
				if err != nil {
					return err
				}
				return cc.run(cmd.Context(), func(ctx context.Context, cl *client.Client) (any, error) {
					props, err := cl.Properties(ctx)
					if err != nil {
						return nil, err
					}
					if props == nil {
						props = map[string]string{}
					}
					for k, v := range updates {
						props[k] = v
					}
					return cl.SetProperties(ctx, props)
				})
			},
		},
	)
	return cmd
}

func createInstallCommand(cc command) *cobra.Command {
	f := &InstallFlags{}
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Replace the server jar with a download",
		Long: `Download a server jar into the server directory, deleting the old jars.
The game server must be stopped.

Examples:
  craftvisor install --url=https://example.com/paper-1.21.jar --file=paper-1.21.jar`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.run(cmd.Context(), func(ctx context.Context, cl *client.Client) (any, error) {
				name, err := cl.Install(ctx, client.InstallRequest{URL: f.URL, Filename: f.Filename})
				return map[string]string{"filename": name}, err
			})
		},
	}
	cmd.Flags().StringVar(&f.URL, "url", "", "download URL (required)")
	cmd.Flags().StringVar(&f.Filename, "file", "", "target jar filename (required)")
	if err := cmd.MarkFlagRequired("url"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	return cmd
}

func createMemoryCommand(cc command) *cobra.Command {
	return &cobra.Command{
		Use:   "memory <size>",
		Short: "Set the JVM heap size used from the next start (e.g. 4G)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.run(cmd.Context(), func(ctx context.Context, cl *client.Client) (any, error) {
				return map[string]string{"memoryAllocation": args[0]}, cl.SetMemory(ctx, args[0])
			})
		},
	}
}

func createResourcesCommand(cc command) *cobra.Command {
	return simple(cc, "resources", "Show CPU and memory samples of the server process",
		func(ctx context.Context, cl *client.Client) (any, error) { return cl.Resources(ctx) })
}

func createHistoryCommand(cc command) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent state changes, joins, leaves and installs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.run(cmd.Context(), func(ctx context.Context, cl *client.Client) (any, error) {
				return cl.History(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}
