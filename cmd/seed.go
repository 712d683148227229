package cmd

import (
	"fmt"

	"Guardline/internal/seed"
	"Guardline/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedOpts = seed.DefaultOptions()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a demo firm, subscription, team and agent",
	RunE:  runSeed,
}

func init() {
	f := seedCmd.Flags()
	f.Float64Var(&seedOpts.Center.Lat, "lat", seedOpts.Center.Lat, "latitude of the coverage area centre")
	f.Float64Var(&seedOpts.Center.Lon, "lon", seedOpts.Center.Lon, "longitude of the coverage area centre")
	f.Float64Var(&seedOpts.HalfDeg, "half-deg", seedOpts.HalfDeg, "half width of the square coverage area in degrees")
	f.StringVar(&seedOpts.OwnerPhone, "owner-phone", seedOpts.OwnerPhone, "phone number of the group owner")
	f.StringVar(&seedOpts.AgentPhone, "agent-phone", seedOpts.AgentPhone, "phone number of the field agent")
}

func runSeed(cmd *cobra.Command, args []string) error {
	_, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !seedOpts.Center.Valid() {
		return fmt.Errorf("seed: invalid centre %.6f,%.6f", seedOpts.Center.Lat, seedOpts.Center.Lon)
	}
	demo, err := seed.Run(cmd.Context(), db, seedOpts)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("seeded demo data",
		zap.String("firm_id", demo.Firm.ID.String()),
		zap.String("group_id", demo.Group.ID.String()),
		zap.String("team_id", demo.Team.ID.String()),
		zap.String("agent_id", demo.Agent.ID.String()),
		zap.String("provider_id", demo.Provider.ID.String()),
		zap.String("owner_phone", demo.Owner.Phone),
	)
	return nil
}
