// Package config handles configuration loading for chatia-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATIA_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/chatia/gateway.yaml
//  3. ~/.config/chatia/gateway.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	generation:
//	  api_key: "${GEMINI_API_KEY}"
//	auth:
//	  jwt_secret: "${CHATIA_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	widget:
//	  idle_timeout: "30m"
//	  dedupe_ttl: "10m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	tailscale:
//	  enabled: false
//	  hostname: "chatia"
//	  auth_key: "${TS_AUTHKEY}"
//	  ephemeral: false
//	  funnel: false
//
//	database:
//	  path: "~/.local/share/chatia/gateway.db"
//
//	auth:
//	  jwt_secret: "${CHATIA_JWT_SECRET}"  # at least 32 bytes
//	  token_ttl: "24h"
//	  admin_token: "${CHATIA_ADMIN_TOKEN}" # empty disables /api/stats
//
//	generation:
//	  model: "gemini-2.0-flash"
//	  api_key: "${GEMINI_API_KEY}"
//	  timeout: "30s"
//
//	widget:
//	  title: "Asistente Virtual"
//	  allowed_origins: ["https://shop.example.com"]
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text or json
package config
