package main

import (
	"fmt"

	"github.com/berfenger/batlink2mqtt/internal/config"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	loadConfig := func() (*config.Config, error) {
		return config.Load(viper.New(), cfgFile)
	}

	root := &cobra.Command{
		Use:          "batlink2mqtt",
		Short:        "Battery serial link to MQTT bridge with power limit decay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml), defaults to $CONFIG_FILE")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bridge (default)",
		RunE:  root.RunE,
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "batlink2mqtt %s (%s)\n", versioninfo.Short(), versioninfo.Revision)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg.Redacted())
		},
	})

	return root
}
