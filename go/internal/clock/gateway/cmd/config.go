package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"
)

type gatewayConfig struct {
	Port            string `yaml:"port"`
	NATSURL         string `yaml:"nats_url"`
	Stream          string `yaml:"stream"`
	ConsumerName    string `yaml:"consumer_name"`
	ClockServiceURL string `yaml:"clock_service_url"`
	MirrorSize      int    `yaml:"mirror_size"`
}

func defaultGatewayConfig() gatewayConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return gatewayConfig{
		Port:            "8081",
		NATSURL:         nats.DefaultURL,
		Stream:          "CLOCK_EVENTS",
		ConsumerName:    "clock-gateway-" + strings.ReplaceAll(host, ".", "-"), // durable names cannot contain dots
		ClockServiceURL: "http://localhost:8080",
		MirrorSize:      1024,
	}
}

// loadGatewayConfig layers an optional YAML file and then GATEWAY_* / NATS_URL
// environment variables over the defaults.
func loadGatewayConfig(path string) (*gatewayConfig, error) {
	cfg := defaultGatewayConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Port = getEnv("GATEWAY_PORT", cfg.Port)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.Stream = getEnv("GATEWAY_STREAM", cfg.Stream)
	cfg.ConsumerName = getEnv("GATEWAY_CONSUMER", cfg.ConsumerName)
	cfg.ClockServiceURL = getEnv("CLOCK_SERVICE_URL", cfg.ClockServiceURL)
	if v := os.Getenv("GATEWAY_MIRROR_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GATEWAY_MIRROR_SIZE %q: %w", v, err)
		}
		cfg.MirrorSize = n
	}
	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
