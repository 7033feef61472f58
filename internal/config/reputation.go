package config

type ReputationConfig struct {
	InitialScore    int
	AttendanceDelta int
	ChallengeDelta  int
}

func loadReputation() ReputationConfig {
	return ReputationConfig{
		InitialScore:    intEnv("REPUTATION_INITIAL_SCORE", 100),
		AttendanceDelta: intEnv("REPUTATION_ATTENDANCE_DELTA", 5),
		ChallengeDelta:  -intEnv("REPUTATION_CHALLENGE_PENALTY", 2),
	}
}
