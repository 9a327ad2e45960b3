package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	cc := command{flags: globalFlags, out: root.OutOrStdout}

	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(cc),
		createStartCommand(cc),
		createStopCommand(cc),
		createRestartCommand(cc),
		createKillCommand(cc),
		createCmdCommand(cc),
		createLogsCommand(cc),
		createWhitelistCommand(cc),
		createPropertiesCommand(cc),
		createInstallCommand(cc),
		createMemoryCommand(cc),
		createResourcesCommand(cc),
		createHistoryCommand(cc),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "craftvisor",
		Short: "Minecraft server supervisor",
		Long: `Craftvisor runs one Minecraft server: it starts and stops the java
process, tracks readiness and players from the console, and manages the
whitelist, server.properties and the server jar.

Examples:
  craftvisor serve craftvisor.toml          # run the daemon
  craftvisor start                          # start the game server
  craftvisor cmd say hello                  # console command
  craftvisor status --api-url=http://host:8080/api`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default derived from --config, else http://127.0.0.1:8080/api)")
	pf.DurationVar(&flags.APITimeout, "api-timeout", defaultAPITimeout, "request timeout")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
	pf.StringVar(&flags.CACert, "ca-cert", "", "CA certificate to trust for HTTPS")
	return root
}
