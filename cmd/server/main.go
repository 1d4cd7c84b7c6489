package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tiltbot/internal/config"
	"tiltbot/internal/logging"
	"tiltbot/internal/server"
	"tiltbot/internal/sim"
	"tiltbot/internal/telemetry"
	"tiltbot/internal/terminal"
)

const defaultTerminalLog = "tiltbot.log"

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var robotSize float64

	cmd := &cobra.Command{
		Use:   "tiltbot",
		Short: "Simulate a tilt-controlled robot driven by remote commands",
		Long: "tiltbot runs a fixed-rate robot simulation steered by /command requests " +
			"from a tilt controller or by WASD keys, and streams frames to websocket clients.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("robot-size") {
				cfg.Physics.Arena.HalfExtent = robotSize / 2
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "command listener host")
	f.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "command listener port")
	f.Float64Var(&cfg.Server.CommandRate, "command-rate", cfg.Server.CommandRate, "max /command requests per second, 0 for unlimited")
	f.IntVar(&cfg.Server.CommandBurst, "command-burst", cfg.Server.CommandBurst, "/command burst size")
	f.IntVar(&cfg.TickRate, "tick-rate", cfg.TickRate, "simulation ticks per second")
	f.IntVar(&cfg.TrailCapacity, "trail", cfg.TrailCapacity, "maximum trail points")
	f.Float64Var(&cfg.TrailEpsilon, "trail-epsilon", cfg.TrailEpsilon, "minimum distance between trail points")
	f.Float64Var(&cfg.Physics.Arena.Width, "width", cfg.Physics.Arena.Width, "arena width")
	f.Float64Var(&cfg.Physics.Arena.Height, "height", cfg.Physics.Arena.Height, "arena height")
	f.Float64Var(&robotSize, "robot-size", 2*cfg.Physics.Arena.HalfExtent, "robot side length")
	f.Float64Var(&cfg.Physics.MaxSpeed, "max-speed", cfg.Physics.MaxSpeed, "max speed per axis, units per tick")
	f.Float64Var(&cfg.Physics.Acceleration, "acceleration", cfg.Physics.Acceleration, "acceleration per tick")
	f.Float64Var(&cfg.Physics.Friction, "friction", cfg.Physics.Friction, "idle decay factor per tick")
	f.Float64Var(&cfg.Physics.Restitution, "restitution", cfg.Physics.Restitution, "velocity kept after a wall bounce")
	f.StringVar(&cfg.TuningFile, "tuning", "", "JSON motion tuning file, reloaded on change")
	f.BoolVar(&cfg.Headless, "headless", false, "run without the terminal view")
	f.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	f.StringVar(&cfg.Log.File, "log-file", "", "log file (defaults to "+defaultTerminalLog+" when the terminal view is on)")
	f.BoolVar(&cfg.Log.Development, "dev", false, "human readable development logging")
	return cmd
}

func run(ctx context.Context, cfg config.Config) (err error) {
	if cfg.TuningFile != "" {
		p, terr := config.LoadTuning(cfg.TuningFile, cfg.Physics)
		if terr != nil {
			return terr
		}
		cfg.Physics = p
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var screen tcell.Screen
	if !cfg.Headless {
		if screen, err = openScreen(); err != nil {
			fmt.Fprintf(os.Stderr, "terminal unavailable, running headless: %v\n", err)
			screen, cfg.Headless = nil, true
		}
	}
	if !cfg.Headless && cfg.Log.File == "" {
		cfg.Log.File = defaultTerminalLog
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File, cfg.Log.Development)
	if err != nil {
		if screen != nil {
			screen.Fini()
		}
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := sim.NewStore()
	hub := telemetry.NewHub(store, logger.Named("telemetry"))
	sinks := []sim.Sink{hub}
	if screen != nil {
		sinks = append(sinks, terminal.NewRenderer(screen, cfg.Server.Addr()))
	} else {
		sinks = append(sinks, heartbeat(cfg.TickRate, logger.Named("sim")))
	}

	simulation, err := sim.New(store, sim.Options{
		Params:        cfg.Physics,
		TickRate:      cfg.TickRate,
		TrailCapacity: cfg.TrailCapacity,
		TrailEpsilon:  cfg.TrailEpsilon,
		Logger:        logger.Named("sim"),
	}, sinks...)
	if err != nil {
		if screen != nil {
			screen.Fini()
		}
		return err
	}

	srv, err := server.New(server.Config{
		Addr:         cfg.Server.Addr(),
		CommandRate:  cfg.Server.CommandRate,
		CommandBurst: cfg.Server.CommandBurst,
		Store:        store,
		Status:       simulation,
		Hub:          hub,
		Logger:       logger.Named("server"),
	})
	if err != nil {
		return err
	}

	logger.Infow("tiltbot starting",
		"addr", cfg.Server.Addr(),
		"command_url", fmt.Sprintf("http://%s/command?cmd=X", cfg.Server.Addr()),
		"tick_rate", cfg.TickRate,
		"headless", cfg.Headless,
	)

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Start(ctx); err != nil {
			logger.Errorw("command listener failed, remote control disabled", "error", err)
		}
		return nil
	})
	if cfg.TuningFile != "" {
		g.Go(func() error {
			err := config.WatchTuning(ctx, cfg.TuningFile, cfg.Physics, logger.Named("config"), simulation.Retune)
			if err != nil {
				logger.Warnw("tuning reload disabled", "error", err)
			}
			return nil
		})
	}

	inputDone := make(chan struct{})
	if screen != nil {
		go func() {
			defer close(inputDone)
			terminal.PollInput(screen, simulation.Manual, cancel, logger.Named("input"))
		}()
	} else {
		close(inputDone)
	}

	runErr := simulation.Run(ctx)
	cancel()
	if screen != nil {
		screen.Fini()
	}
	<-inputDone

	err = multierr.Append(runErr, g.Wait())
	logger.Infow("tiltbot stopped", "error", err)
	return err
}

func openScreen() (tcell.Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.HideCursor()
	return screen, nil
}

// heartbeat logs the robot state about once a second when there is no
// terminal to look at.
func heartbeat(tickRate int, logger *zap.SugaredLogger) sim.Sink {
	return sim.SinkFunc(func(f sim.Frame) {
		if f.Tick%uint64(tickRate) != 0 {
			return
		}
		logger.Infow("robot",
			"tick", f.Tick,
			"command", f.Command.String(),
			"x", f.Position.X, "y", f.Position.Y,
			"vx", f.Velocity.X, "vy", f.Velocity.Y,
			"trail", len(f.Trail),
		)
	})
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
