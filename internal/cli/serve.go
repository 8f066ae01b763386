package cli

import (
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	deployhttp "github.com/zwg/restage/internal/adapters/http"
	"github.com/zwg/restage/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deployment status/trigger API",
	Long: `Expose a small local API for operators: GET /api/v1/status reports the
instance slot, POST /api/v1/redeploy runs the full redeploy procedure.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svcs, err := buildServices(cfg)
	if err != nil {
		return err
	}

	handler := deployhttp.NewDeployHandler(svcs.orch, svcs.containers, cfg.ContainerName)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	handler.Register(app.Group("/api").Group("/v1"))

	logger.Info("admin API listening", "addr", cfg.AdminAddr)
	return app.Listen(cfg.AdminAddr)
}
