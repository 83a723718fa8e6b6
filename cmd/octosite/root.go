package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coffyg/octosite/config"
)

var cfgFile string
var loader *config.Loader

var rootCmd = &cobra.Command{
	Use:   "octosite",
	Short: "octosite - static site edge server",
	Long: `octosite serves a pre-built single page application out of a
key-value asset store. Every asset answer carries a fixed set of security
headers, plain http requests are redirected to https, unknown paths fall back
to /index.html and requests under /ac/ are proxied to ActiveCampaign.

Configuration:
  Config is loaded from octosite.yaml in the current directory or
  /etc/octosite/. Environment variables override it with the OCTOSITE_
  prefix, e.g. OCTOSITE_SERVER_ADDR=:9090.

Commands:
  serve       Start the server
  import      Load a built site directory into the asset store
  config      Print the effective configuration
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./octosite.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "bypass the edge cache and expose error details")
}

func initConfig() {
	loader = config.NewLoader(cfgFile)
	_ = loader.Viper().BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}
