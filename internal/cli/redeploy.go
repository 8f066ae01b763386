package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zwg/restage/pkg/logger"
)

var redeployCmd = &cobra.Command{
	Use:   "redeploy",
	Short: "Rebuild the image and replace the running instance",
	RunE:  runRedeploy,
}

func init() {
	rootCmd.AddCommand(redeployCmd)
}

func runRedeploy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svcs, err := buildServices(cfg)
	if err != nil {
		return err
	}

	report, err := svcs.orch.Redeploy(cmd.Context())
	if err != nil {
		return err
	}

	if advisories := report.Advisories(); len(advisories) > 0 {
		logger.Warn("redeploy finished with advisory failures", "count", len(advisories))
	}

	fmt.Printf("Deployment complete. %s is reachable at %s\n", cfg.ContainerName, report.Address)
	return nil
}
