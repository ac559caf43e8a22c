package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/urfave/cli/v2"

	"jackpot/internal/config"
	"jackpot/internal/handlers"
	"jackpot/internal/jobs"
	"jackpot/internal/models"
	"jackpot/internal/services"
	"jackpot/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "jackpot",
		Usage: "Timed pooled lottery ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"LOTTERY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API and the expiry sweep",
				Action: serve,
			},
			{
				Name:   "sweep",
				Usage:  "Draw every expired round once and exit",
				Action: sweep,
			},
			{
				Name:  "reset",
				Usage: "Delete every round and ticket",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "confirm the reset"},
				},
				Action: reset,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("%v", err)
	}
}

// deps is what every command needs: config, logging and the ledger.
type deps struct {
	cfg     config.Config
	log     *logger.Logger
	logFile io.Closer
	service *services.LotteryService
	closeDB func()
}

func setup(c *cli.Context) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	rt := &deps{cfg: cfg}
	var out io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			return nil, err
		}
		out, rt.logFile = f, f
	}
	rt.log = logger.Init("jackpot", true, false, out)
	if cfg.Log.Verbose {
		logger.SetLevel(1)
	}

	db, err := store.Open(cfg.DB, cfg.Log.Verbose)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closeDB = func() { store.Close(db) }

	st := store.New(db)
	if err := st.AutoMigrate(); err != nil {
		rt.close()
		return nil, err
	}

	price, err := cfg.Lottery.TicketPriceLamports()
	if err != nil {
		rt.close()
		return nil, err
	}
	edge, err := cfg.Lottery.HouseEdgeFraction()
	if err != nil {
		rt.close()
		return nil, err
	}

	settings := services.DefaultSettings()
	settings.TicketPrice = price
	settings.RoundDuration = cfg.Lottery.RoundDuration
	settings.HouseEdge = edge
	settings.LotteryWallet = cfg.Lottery.Wallet
	settings.MaxRetries = cfg.Lottery.MaxRetries
	settings.OnRoundCompleted = func(round models.Round) {
		if round.Winner != nil {
			logger.Infof("Payout pending: %s SOL to %s for round #%d", round.WinningAmount, *round.Winner, round.RoundNumber)
		}
	}
	rt.service = services.NewLotteryService(st, settings)
	return rt, nil
}

func (rt *deps) close() {
	if rt.closeDB != nil {
		rt.closeDB()
	}
	if rt.log != nil {
		rt.log.Close()
	}
	if rt.logFile != nil {
		rt.logFile.Close()
	}
}

func serve(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := rt.service.EnsureActiveRound(ctx); err != nil {
		logger.Warningf("Could not open the first round: %v", err)
	}

	scheduler := jobs.NewScheduler(ctx)
	if rt.cfg.Cron.Enabled {
		sweepJob := jobs.NewExpirySweepJob(rt.service)
		if err := scheduler.Add(rt.cfg.Cron.ExpirySweep, sweepJob.Run); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	if rt.cfg.Log.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	handlers.NewHTTPHandler(rt.service, rt.cfg.Server.AdminToken).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              rt.cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown: %v", err)
		}
	}()

	logger.Infof("Server starting on %s", rt.cfg.Server.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func sweep(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.service.SweepExpired(c.Context)
	if err != nil {
		return err
	}
	logger.Infof("Sweep processed=%t rounds=%v", result.Processed, result.RoundIDs)
	return nil
}

func reset(c *cli.Context) error {
	if !c.Bool("yes") {
		return cli.Exit("refusing to reset without --yes", 2)
	}
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()
	return rt.service.ResetAll(c.Context)
}
