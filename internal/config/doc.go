// Package config loads the keep CLI's YAML configuration.
//
// The file is resolved via KEEP_CONFIG, then $XDG_CONFIG_HOME/keep/client.yaml,
// then ~/.config/keep/client.yaml; a missing file yields built-in defaults.
// ${VAR} references are expanded from the environment before parsing, and
// duration fields accept Go duration strings ("10s", "1m30s").
//
//	server:
//	  host: "keep.example.com"
//	  port: 9009
//	client:
//	  src: "bot:alice"
//	  key_file: "${HOME}/.keep/agent_ed25519"
//	  timeout: "10s"
//	history:
//	  enabled: true
//	  path: "${HOME}/.keep/history.db"
//	logging:
//	  level: "info"
//	  format: "text"
package config
