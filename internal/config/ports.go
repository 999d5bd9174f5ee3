// Package config provides configuration management for the gold trading engine.
// This file centralizes all port constants to avoid duplication and ensure consistency.
package config

// Port Allocation Strategy:
//   8080-8099: webhook/API server
//   8200-8299: infrastructure services (Vault, etc.)
//   9100-9199: Prometheus metrics endpoints

// API and webhook ports.
const (
	// WebhookPort is the default port for the inbound signal webhook.
	WebhookPort = 8080
)

// Infrastructure service ports.
const (
	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379

	// NATSPort is the default port for NATS messaging.
	NATSPort = 4222
)

// Monitoring service ports.
const (
	// MetricsPort is the port the engine serves Prometheus metrics on.
	MetricsPort = 9100

	// PrometheusPort is the default port for Prometheus itself.
	PrometheusPort = 9090

	// GrafanaPort is the default port for Grafana.
	GrafanaPort = 3000
)
