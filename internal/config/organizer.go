package config

type OrganizerConfig struct {
	Address string
}

func loadOrganizer() OrganizerConfig {
	return OrganizerConfig{Address: addrEnv("ORGANIZER_ADDRESS", "")}
}
