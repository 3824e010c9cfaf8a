package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"quickchat/internal/utils"
	"quickchat/simulator"

	"github.com/kelseyhightower/envconfig"
)

// simEnv overrides the default run through SIM_* variables.
type simEnv struct {
	EngineURL        string        `envconfig:"ENGINE_URL"`
	NumUsers         int           `envconfig:"USERS"`
	SimulationTime   time.Duration `envconfig:"DURATION"`
	MessageFrequency float64       `envconfig:"MESSAGE_FREQUENCY"`
	DisconnectRate   float64       `envconfig:"DISCONNECT_RATE"`
	ReconnectRate    float64       `envconfig:"RECONNECT_RATE"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	var env simEnv
	if err := envconfig.Process("sim", &env); err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}

	logger, err := utils.NewLogger(env.LogLevel, false)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	config := simulator.DefaultConfig()
	if env.EngineURL != "" {
		config.EngineURL = env.EngineURL
	}
	if env.NumUsers > 0 {
		config.NumUsers = env.NumUsers
	}
	if env.SimulationTime > 0 {
		config.SimulationTime = env.SimulationTime
	}
	if env.MessageFrequency > 0 {
		config.MessageFrequency = env.MessageFrequency
	}
	if env.DisconnectRate > 0 {
		config.DisconnectRate = env.DisconnectRate
	}
	if env.ReconnectRate > 0 {
		config.ReconnectRate = env.ReconnectRate
	}

	logger.Infow("starting simulation",
		"engineUrl", config.EngineURL,
		"users", config.NumUsers,
		"duration", config.SimulationTime,
		"messagesPerUserMinute", config.MessageFrequency,
		"disconnectRate", config.DisconnectRate,
		"reconnectRate", config.ReconnectRate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.SimulationTime)
	defer cancel()

	sim := simulator.NewSimulator(config, logger)
	if err := sim.Run(ctx); err != nil {
		logger.Fatalw("simulation failed", "error", err)
	}

	metrics := sim.GetMetrics()
	logger.Infow("simulation completed",
		"totalUsers", metrics.TotalUsers,
		"messagesSent", metrics.MessagesSent,
		"pushesReceived", metrics.PushesReceived,
		"deliveryRatio", metrics.DeliveryRatio(),
		"seenAcks", metrics.SeenAcks,
		"disconnects", metrics.Disconnects,
		"reconnects", metrics.Reconnects,
		"errorCount", metrics.ErrorCount,
	)
}
