package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Combatjuan/orphan-maker/internal/config"
	"github.com/Combatjuan/orphan-maker/internal/core"
	"github.com/Combatjuan/orphan-maker/internal/hardware"
	"github.com/Combatjuan/orphan-maker/internal/logger"
	"github.com/Combatjuan/orphan-maker/internal/messaging"
)

func main() {
	var serviceLogLevel int
	var configPath string
	var redisHost string
	var redisPort int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.StringVar(&configPath, "config", "/etc/orphan-maker/config.toml", "Path to machine config file")
	flag.StringVar(&redisHost, "redis-host", "127.0.0.1", "Redis host")
	flag.IntVar(&redisPort, "redis-port", 6379, "Redis port")

	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	l.Infof("Starting launch control service...")

	cfg, err := config.Load(configPath)
	if err != nil {
		l.Fatalf("Refusing to start: %v", err)
	}
	l.Infof("Config loaded: %.1f m line, %.1f m/s max, %d Hz loop", cfg.LineLength, cfg.MaxSpeed, cfg.TickRate)

	io := hardware.NewLinuxHardwareIO(cfg.Pins, l)
	redis := messaging.NewRedisClient(redisHost, redisPort, l)

	system := core.NewLaunchSystem(cfg, io, redis, l)
	if err := system.Start(); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	l.Infof("Shutdown complete")
}
