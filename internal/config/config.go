package config

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	Chain      ChainConfig
	Relay      RelayConfig
	Indexer    IndexerConfig
	Reputation ReputationConfig
	Organizer  OrganizerConfig
}

func Load() Config {
	ensureEnvLoaded()
	return Config{
		Server:     loadServer(),
		Database:   loadDatabase(),
		Auth:       loadAuth(),
		Chain:      loadChain(),
		Relay:      loadRelay(),
		Indexer:    loadIndexer(),
		Reputation: loadReputation(),
		Organizer:  loadOrganizer(),
	}
}
