package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"webrelay/internal/device"
)

func main() {
	flagSet := pflag.NewFlagSet("fake_device", pflag.ExitOnError)
	baseURL := flagSet.String("server", getenvDefault("RELAY_SERVER_URL", "http://localhost:8080"), "relay server base URL")
	relayCount := flagSet.Int("relays", getenvIntDefault("FAKE_DEVICE_RELAYS", 2), "number of relay outputs")
	interval := flagSet.Duration("poll-interval", getenvDuration("FAKE_DEVICE_POLL_INTERVAL", device.DefaultPollInterval), "pause between polls")
	retries := flagSet.Int("retries", getenvIntDefault("FAKE_DEVICE_RETRIES", device.DefaultRetries), "poll attempts per cycle")
	retryPause := flagSet.Duration("retry-pause", getenvDuration("FAKE_DEVICE_RETRY_PAUSE", device.DefaultRetryPause), "pause between failed poll attempts")
	_ = flagSet.Parse(os.Args[1:])

	logger := log.New(os.Stdout, "fake-device ", log.LstdFlags)
	client, err := device.NewClient(*baseURL, 5*time.Second)
	if err != nil {
		logger.Fatal(err)
	}
	sim, err := device.NewSimulator(client, *relayCount,
		device.WithPollInterval(*interval),
		device.WithRetry(*retries, *retryPause),
		device.WithSimulatorLogger(logger),
	)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Printf("polling %s every %s for %d relays", *baseURL, *interval, *relayCount)
	sim.Run(ctx)
	logger.Printf("stopped")
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
