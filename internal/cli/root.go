// Package cli wires the restage commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/zwg/restage/internal/adapters/builder"
	"github.com/zwg/restage/internal/adapters/docker"
	"github.com/zwg/restage/internal/adapters/git"
	"github.com/zwg/restage/internal/config"
	"github.com/zwg/restage/internal/core/orchestrator"
	"github.com/zwg/restage/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "restage",
	Short: "Restage - container redeploy orchestrator",
	Long: `Restage rebuilds the PDF distributor image from the local checkout and
replaces the running container with a fresh instance, preserving the
persisted credential file across every redeploy.

Invoked bare it runs one redeploy.`,
	RunE:         runRedeploy,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./restage.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func initLogging() {
	log := logger.Get()
	log.ConfigureFromEnv()
	if logLevel != "" {
		log.SetLogLevel(logLevel)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	return cfg, nil
}

type services struct {
	containers *docker.Adapter
	orch       *orchestrator.Orchestrator
}

func buildServices(cfg config.Config) (*services, error) {
	containers, err := docker.NewAdapter()
	if err != nil {
		return nil, err
	}
	images, err := builder.NewAdapter()
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(containers, images, git.NewSyncer(), orchestrator.Options{
		WorkDir:                 cfg.WorkDir,
		EnvFile:                 cfg.EnvFilePath(),
		CredentialFile:          cfg.CredentialFilePath(),
		ContainerCredentialPath: cfg.ContainerCredentialPath(),
		Image:                   cfg.Image,
		InstanceName:            cfg.ContainerName,
		Port:                    cfg.Port,
	})

	return &services{containers: containers, orch: orch}, nil
}
