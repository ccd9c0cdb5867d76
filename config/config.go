package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"vault-zap/pkg/client"
	"vault-zap/pkg/solver"
	"vault-zap/pkg/types"
)

var (
	ErrUnknownToken   = errors.New("unknown token")
	ErrAmbiguousToken = errors.New("token exists on several chains, specify one with <token>@<chain>")
	ErrUnknownVault   = errors.New("unknown vault")
	ErrAmbiguousVault = errors.New("several vaults match, use the vault address")
)

const (
	DefaultLiFiURL        = "https://li.quest/v1"
	DefaultLiFiIntegrator = "smol"
	NotificationsFileName = ".vault-zap-notifications.json"
)

// Config holds the application configuration
type Config struct {
	PrivateKey        string
	SafeAddress       *common.Address
	PortalsBaseURL    string
	LiFiBaseURL       string
	LiFiIntegrator    string
	Slippage          string
	Deadline          int
	WithPermit        bool
	NotificationsPath string
	PollInterval      time.Duration
	ReceiptTimeout    time.Duration
	HTTPTimeout       time.Duration
	// PushgatewayURL receives the metrics of one-shot commands when set
	PushgatewayURL    string
	Chains            map[uint64]Chain
	Vaults            []types.Vault
}

// Settings returns the preferences handed to the solvers
func (c *Config) Settings() solver.Settings {
	return solver.Settings{
		Slippage:        c.Slippage,
		DeadlineMinutes: c.Deadline,
		WithPermit:      c.WithPermit,
	}
}

// IsSafe reports whether transactions go through a Safe
func (c *Config) IsSafe() bool {
	return c.SafeAddress != nil
}

type tokenRecord struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Decimals int32  `mapstructure:"decimals"`
}

type vaultRecord struct {
	Address        string      `mapstructure:"address"`
	ChainID        uint64      `mapstructure:"chain_id"`
	Name           string      `mapstructure:"name"`
	Symbol         string      `mapstructure:"symbol"`
	Decimals       int32       `mapstructure:"decimals"`
	Version        string      `mapstructure:"version"`
	StakingAddress string      `mapstructure:"staking_address"`
	Token          tokenRecord `mapstructure:"token"`
}

var globalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("portals_base_url", client.DefaultPortalsURL)
	v.SetDefault("lifi_base_url", DefaultLiFiURL)
	v.SetDefault("lifi_integrator", DefaultLiFiIntegrator)
	v.SetDefault("slippage", "1")
	v.SetDefault("deadline", 60)
	v.SetDefault("with_permit", true)
	v.SetDefault("poll_interval", solver.DefaultPollInterval)
	v.SetDefault("receipt_timeout", solver.DefaultReceiptTimeout)
	v.SetDefault("http_timeout", 30*time.Second)
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".vault-zap")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// FromViper builds a Config from an already populated viper instance.
// Environment variables with the VAULT_ZAP_ prefix override every key;
// nested keys use underscores (VAULT_ZAP_CHAINS_137_RPC_URL).
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("VAULT_ZAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		PrivateKey:        v.GetString("private_key"),
		PortalsBaseURL:    v.GetString("portals_base_url"),
		LiFiBaseURL:       v.GetString("lifi_base_url"),
		LiFiIntegrator:    v.GetString("lifi_integrator"),
		Slippage:          v.GetString("slippage"),
		Deadline:          v.GetInt("deadline"),
		WithPermit:        v.GetBool("with_permit"),
		NotificationsPath: v.GetString("notifications_path"),
		PollInterval:      v.GetDuration("poll_interval"),
		ReceiptTimeout:    v.GetDuration("receipt_timeout"),
		HTTPTimeout:       v.GetDuration("http_timeout"),
		PushgatewayURL:    v.GetString("pushgateway_url"),
	}

	if safe := v.GetString("safe_address"); safe != "" {
		if !common.IsHexAddress(safe) {
			return nil, fmt.Errorf("invalid safe address: %s", safe)
		}
		addr := common.HexToAddress(safe)
		cfg.SafeAddress = &addr
	}

	if cfg.NotificationsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.NotificationsPath = filepath.Join(home, NotificationsFileName)
	}

	if _, err := strconv.ParseFloat(cfg.Slippage, 64); err != nil {
		return nil, fmt.Errorf("invalid slippage %q: %w", cfg.Slippage, err)
	}
	if cfg.Deadline <= 0 {
		return nil, fmt.Errorf("deadline must be a positive number of minutes")
	}

	chains, err := loadChains(v)
	if err != nil {
		return nil, err
	}
	cfg.Chains = chains

	vaults, err := loadVaults(v)
	if err != nil {
		return nil, err
	}
	cfg.Vaults = vaults

	return cfg, nil
}

// loadChains applies chains.<id>.* overrides on top of the built-in table.
// Unknown chain IDs in the config file add new networks.
func loadChains(v *viper.Viper) (map[uint64]Chain, error) {
	chains := defaultChains()

	for key := range v.GetStringMap("chains") {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in config", key)
		}
		if _, ok := chains[id]; !ok {
			chains[id] = Chain{ID: id, Name: key}
		}
	}

	for id, chain := range chains {
		prefix := fmt.Sprintf("chains.%d.", id)
		if url := v.GetString(prefix + "rpc_url"); url != "" {
			chain.RPCURL = url
		}
		if router := v.GetString(prefix + "router_address"); router != "" {
			if !common.IsHexAddress(router) {
				return nil, fmt.Errorf("invalid router address for chain %d: %s", id, router)
			}
			chain.Router = common.HexToAddress(router)
		}
		if url := v.GetString(prefix + "safe_api_url"); url != "" {
			chain.SafeAPIURL = url
		}
		for _, s := range v.GetStringSlice(fmt.Sprintf("stablecoins.%d", id)) {
			if !common.IsHexAddress(s) {
				return nil, fmt.Errorf("invalid stablecoin address for chain %d: %s", id, s)
			}
			chain.Stablecoins = append(chain.Stablecoins, common.HexToAddress(s))
		}
		chains[id] = chain
	}
	return chains, nil
}

func loadVaults(v *viper.Viper) ([]types.Vault, error) {
	var records []vaultRecord
	if err := v.UnmarshalKey("vaults", &records); err != nil {
		return nil, fmt.Errorf("failed to parse vaults: %w", err)
	}

	vaults := make([]types.Vault, 0, len(records))
	for i, r := range records {
		if !common.IsHexAddress(r.Address) {
			return nil, fmt.Errorf("vault %d: invalid address %q", i, r.Address)
		}
		if !common.IsHexAddress(r.Token.Address) {
			return nil, fmt.Errorf("vault %s: invalid token address %q", r.Address, r.Token.Address)
		}
		if r.ChainID == 0 {
			return nil, fmt.Errorf("vault %s: chain_id is required", r.Address)
		}

		vault := types.Vault{
			Address:  common.HexToAddress(r.Address),
			ChainID:  r.ChainID,
			Name:     r.Name,
			Symbol:   r.Symbol,
			Decimals: r.Decimals,
			Version:  r.Version,
			Token: types.Token{
				Address:  common.HexToAddress(r.Token.Address),
				ChainID:  r.ChainID,
				Symbol:   r.Token.Symbol,
				Name:     r.Token.Name,
				Decimals: r.Token.Decimals,
			},
		}
		if vault.Decimals == 0 {
			vault.Decimals = vault.Token.Decimals
		}
		if r.StakingAddress != "" {
			if !common.IsHexAddress(r.StakingAddress) {
				return nil, fmt.Errorf("vault %s: invalid staking address %q", r.Address, r.StakingAddress)
			}
			staking := common.HexToAddress(r.StakingAddress)
			vault.StakingAddress = &staking
		}
		vaults = append(vaults, vault)
	}
	return vaults, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}

// RequireKey fails when no private key is configured
func (c *Config) RequireKey() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("private key not found. Please set VAULT_ZAP_PRIVATE_KEY environment variable or create a .vault-zap.yaml config file")
	}
	return nil
}
