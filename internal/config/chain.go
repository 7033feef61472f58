package config

type ChainConfig struct {
	RPCURL              string
	ChainID             uint64
	EASContract         string
	SchemaRegistry      string
	EASDeployBlock      uint64
	EIP712DomainName    string
	EIP712DomainVersion string
}

func loadChain() ChainConfig {
	return ChainConfig{
		RPCURL:              getenv("CHAIN_RPC_URL", ""),
		ChainID:             u64env("CHAIN_ID", 0),
		EASContract:         addrEnv("EAS_CONTRACT_ADDRESS", ""),
		SchemaRegistry:      addrEnv("SCHEMA_REGISTRY_ADDRESS", ""),
		EASDeployBlock:      u64env("EAS_DEPLOY_BLOCK", 0),
		EIP712DomainName:    getenv("EAS_DOMAIN_NAME", "EAS"),
		EIP712DomainVersion: getenv("EAS_DOMAIN_VERSION", "1.0.1"),
	}
}
