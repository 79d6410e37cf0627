package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/redbadger/deployhook/agent"
	"github.com/redbadger/deployhook/config"
)

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run deployhook in agent mode",
	Long: `
	1.  verifies the X-Hub-Signature of every webhook delivery
	2.  on a merged pull request, creates a github deployment and updates the checkout
	3.  on a deployment, runs git fetch and git pull in the configured folder
	4.  reports success or the failing command back to github
	5.  on a deployment status, posts a message to the chat webhook
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			log.WithError(err).Fatal("reading configuration")
		}
		if err := cfg.Validate(); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := agent.Agent(ctx, cfg); err != nil {
			log.WithError(err).Fatal("agent stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)

	flags := agentCmd.Flags()
	flags.Uint16(config.PortKey, config.DefaultPort, "port to listen on")
	flags.String(config.PathKey, config.DefaultPath, "path github delivers webhooks to")
	flags.Duration(config.CommandTimeoutKey, config.DefaultCommandTimeout, "timeout for each git command")
	for _, key := range []string{config.PortKey, config.PathKey, config.CommandTimeoutKey} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}
