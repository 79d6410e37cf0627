package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/redbadger/deployhook/config"
	"github.com/redbadger/deployhook/constants"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deployhook",
	Short: "Update local checkouts when github says so",
	Long: `
	deployhook listens for github webhooks and, for the repositories it is configured with:

	1. creates a github deployment when a pull request is merged
	2. runs git fetch and git pull in the local checkout when a deployment is requested
	3. reports the result back to github as a deployment status
	4. relays deployment statuses to a chat channel
	`,
	Version: constants.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool(config.DebugKey) {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.deployhook.yaml)")
	flags.Bool(config.DebugKey, false, "log at debug level")
	flags.String(config.APIURLKey, "", "github API root (default derived from the webhook payload)")
	flags.Duration(config.HTTPTimeoutKey, config.DefaultHTTPTimeout, "timeout for calls to github and chat")
	flags.String(config.EnvironmentKey, config.DefaultEnvironment, "default deployment environment")
	for _, key := range []string{config.DebugKey, config.APIURLKey, config.HTTPTimeoutKey, config.EnvironmentKey} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func initConfig() {
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".deployhook")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Info("using config file")
	}
}
