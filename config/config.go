package config

import (
	"os"
	"path/filepath"
	"strings"

	"crosslock/crypto"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration loaded from TOML.
type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	MetricsAddress       string `toml:"MetricsAddress"`
	DataDir              string `toml:"DataDir"`
	NetworkEnv           string `toml:"NetworkEnv"`
	LocalChainRef        string `toml:"LocalChainRef"`
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`

	Chains []ChainConfig `toml:"Chains"`
	Fees   Fees          `toml:"Fees"`
	Bridge Bridge        `toml:"Bridge"`
	RPC    RPC           `toml:"RPC"`
	Log    Log           `toml:"Log"`
	Pauses Pauses        `toml:"Pauses"`
}

// Load loads the configuration from the given path, creating a default file
// with a fresh operator keystore when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./crosslock-data"
	}
	if strings.TrimSpace(cfg.NetworkEnv) == "" {
		cfg.NetworkEnv = "local"
	}
	if strings.TrimSpace(cfg.LocalChainRef) == "" {
		cfg.LocalChainRef = "clk-local"
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = []ChainConfig{{Ref: cfg.LocalChainRef, Name: "local"}}
	}
	if cfg.Bridge.RequiredSignatures == 0 {
		cfg.Bridge.RequiredSignatures = 3
	}
	if cfg.Bridge.MessageTimeoutSeconds == 0 {
		cfg.Bridge.MessageTimeoutSeconds = 3600
	}
	if strings.TrimSpace(cfg.Bridge.MinStake) == "" {
		cfg.Bridge.MinStake = "1000"
	}
	if strings.TrimSpace(cfg.Bridge.SlashAmount) == "" {
		cfg.Bridge.SlashAmount = "500"
	}
	if cfg.RPC.RateLimitPerSecond == 0 {
		cfg.RPC.RateLimitPerSecond = 10
	}
	if cfg.RPC.RateLimitBurst == 0 {
		cfg.RPC.RateLimitBurst = 20
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.applyDefaults()
	cfg.OperatorKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
