package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/poisonheart/broadcast"
	"github.com/wfunc/poisonheart/config"
	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/monitor"
	"github.com/wfunc/poisonheart/persistence"
	"github.com/wfunc/poisonheart/room"
	"github.com/wfunc/poisonheart/rpc"
	"github.com/wfunc/poisonheart/server"
	"github.com/wfunc/poisonheart/services"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	exclusiveDraws := flag.Bool("exclusive-draws", false, "forbid drawing a token the opponent already drew")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Init("info", false)
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	mon := monitor.NewMonitor(cfg.Monitor.Namespace)
	mon.StartServer(cfg.Monitor.Address)
	defer mon.Shutdown()

	// Initialize Database
	pg := cfg.Database.Postgres
	db, err := persistence.Open(cfg.Database.Driver, pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	if db != nil {
		logger.Log.Infof("Database connection successful (%s).", cfg.Database.Driver)
		defer db.Close()
	}

	recorder := services.NewResultRecorder(db, mon, 0)
	notifier := broadcast.NewNotifier(cfg.Server.SubscriberBuffer, mon)
	defer notifier.Close()

	var opts []room.Option
	if *exclusiveDraws {
		opts = append(opts, room.WithExclusiveDraws())
	}
	rooms := room.NewRoomManager(broadcast.Fanout{notifier, recorder}, opts...)

	// RPC
	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewGameService(rooms, recorder, mon))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go rpcServer.Start()
	defer rpcServer.Stop()

	healthServer, err := rpc.NewHealthServer(cfg.Server.GRPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create gRPC health server: %v", err)
	}
	go healthServer.Start()
	defer healthServer.Stop()

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, rooms, notifier, mon,
		server.WithKeepAliveInterval(cfg.Server.KeepAliveInterval),
		server.WithRoomTTL(cfg.Server.RoomTTL),
		server.WithResultRecorder(recorder),
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
		errCh <- gameServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Warnf("Game server shutdown: %v", err)
	}
	recorder.Close()
}
