package main

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/go-ssu/lib/i2pcontrol"
	"github.com/go-i2p/go-ssu/lib/router"
	"github.com/go-i2p/go-ssu/lib/util"
	"github.com/go-i2p/go-ssu/lib/util/signals"
	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetGoI2PLogger()

var rootCmd = &cobra.Command{
	Use:   "go-ssu",
	Short: "SSU transport daemon",
	Long: `go-ssu runs the SSU UDP transport of an I2P router on its own.

Peers are read from peers.yaml in the working directory and the node writes
its own entry to router.yaml, so two nodes can reach each other by swapping
those files.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bind the SSU socket and serve peers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.NewSSUConfigFromViper()
		if err := cfg.Validate(); err != nil {
			return err
		}
		workDir := config.BuildSSUDirPath()
		log.WithField("work_dir", workDir).Debug("starting up ssu router")

		r, err := router.CreateRouter(cfg, workDir)
		if err != nil {
			log.WithError(err).Error("failed to create ssu router")
			return err
		}
		util.RegisterCloser(r)

		signals.RegisterReloadHandler(func() {
			n, err := r.Directory().LoadFile(filepath.Join(workDir, router.PeersFile))
			if err != nil {
				log.WithError(err).Warn("reloading peers failed")
				return
			}
			log.WithField("peers", n).Info("peers reloaded")
		})
		signals.RegisterInterruptHandler(r.Stop)
		go signals.Handle()
		defer signals.StopHandle()

		if err := r.Start(); err != nil {
			util.CloseAll()
			return err
		}
		if cfg.ControlEnabled {
			srv, err := i2pcontrol.NewServer(cfg, i2pcontrol.NewRouterStatsProvider(r, router.Version))
			if err == nil {
				err = srv.Start()
			}
			if err != nil {
				log.WithError(err).Error("failed to start I2PControl server")
				util.CloseAll()
				return err
			}
			util.RegisterCloser(srv)
		}
		r.Wait()
		util.CloseAll()
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.WriteYAML(cmd.OutOrStdout(), config.NewSSUConfigFromViper())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default is $HOME/.go-ssu/config.yaml)")
	rootCmd.PersistentFlags().String("listen", "", "UDP host:port to bind, overrides ssu.listen")
	viper.BindPFlag("ssu.listen", rootCmd.PersistentFlags().Lookup("listen"))

	rootCmd.AddCommand(runCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
