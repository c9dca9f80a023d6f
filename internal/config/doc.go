// Package config loads the daemon configuration from a JSON file and
// fills in defaults for anything the file leaves out. Secrets (the AI
// API key, the exchange store DSN, the event broker URL) are resolved
// from environment variables so the file itself can be committed.
package config
