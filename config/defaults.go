package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/chatdesk",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Storage: StorageConfig{Backend: "file"},
		Defaults: DefaultsConfig{
			MaxTurns: 10,
			Stream:   true,
		},
		Security: SecurityConfig{Method: string(EncryptionNone)},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# chatdesk system configuration
# Location: ~/.config/chatdesk/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations, provider settings and user config are stored
data_directory = "~/.local/share/chatdesk"
`
}

func GenerateUserConfigTemplate() string {
	return `# chatdesk user configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[storage]
# "file" keeps one JSON document per key under state/, "sqlite" uses state.db
backend = "file"

[defaults]
# Provider and model used for new conversations when none is selected
provider = ""
model = ""

# System prompt sent with every request (optional)
system_prompt = ""

# Number of recent user turns sent as context (0 sends everything)
max_turns = 10

# Upper bound on generated tokens (0 uses the vendor default)
max_tokens = 0

# Stream replies as they are generated
stream = true

[security]
# "none" stores API keys as-is, "ssh_key" seals them with a key derived from an SSH key
method = "none"
# ssh_key_path = "~/.ssh/id_ed25519"

[metrics]
# Address for a Prometheus /metrics endpoint, e.g. "127.0.0.1:9464" (empty disables)
listen = ""
`
}
