package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/redbadger/deployhook/config"
	"github.com/redbadger/deployhook/constants"
	gh "github.com/redbadger/deployhook/github"
	"github.com/redbadger/deployhook/model"
)

var (
	repo  string
	ref   string
	actor string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Ask github for a deployment of a configured repository",
	Long: `
Create a github deployment for a repository. github then sends a deployment
webhook, and the agent updates the local checkout as for any other deployment.
	`,
	Example: `deployhook request --repo=redbadger/website --ref=master --user=octocat`,
	PreRun: func(cmd *cobra.Command, args []string) {
		if !viper.IsSet(config.TokenKey) {
			log.Fatalf("environment variable %s is not exported.\n", constants.TokenEnvVar)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			log.WithError(err).Fatal("reading configuration")
		}
		d, err := request(context.Background(), cfg, model.DeploymentRequest{
			FullName: repo,
			Ref:      ref,
			Actor:    actor,
		})
		if err != nil {
			log.WithError(err).Fatal("requesting deployment")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deployment %d requested for %s at %s\n", d.ID, repo, ref)
	},
}

func request(ctx context.Context, cfg *config.Config, req model.DeploymentRequest) (*gh.Deployment, error) {
	environment := cfg.Environment
	if r, ok := cfg.Lookup(req.FullName); ok {
		environment = r.Environment
	} else {
		log.WithField("repo", req.FullName).Warn("repository is not configured, the agent will cancel this deployment")
	}
	reporter := gh.NewReporter(cfg.Token, cfg.APIURL, cfg.HTTPTimeout)
	return reporter.CreateDeployment(ctx, req, environment)
}

func init() {
	rootCmd.AddCommand(requestCmd)

	requestCmd.Flags().StringVar(&repo, "repo", "", "Repository (owner/name)")
	requestCmd.MarkFlagRequired("repo")

	requestCmd.Flags().StringVar(&ref, "ref", config.DefaultBranch, "Branch, tag or SHA to deploy")

	requestCmd.Flags().StringVar(&actor, "user", "", "Who the deployment is for")
}
