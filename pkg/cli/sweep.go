package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSweep() *cli.Command {
	var engCfg engineConfig

	return &cli.Command{
		Name:  "sweep",
		Usage: "Lift every expired action once and exit",
		Flags: engCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, err := engCfg.build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.sweeper.SweepOnce(ctx)
			if err != nil {
				return goerr.Wrap(err, "sweep failed")
			}

			logging.Default().Info("Sweep completed",
				"due", result.Due,
				"expired", result.Expired,
				"failed", result.Failed,
			)
			if result.Failed > 0 {
				return goerr.New("some actions could not be lifted", goerr.V("failed", result.Failed))
			}
			return nil
		},
	}
}
