package cluster_authority

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/trufnetwork/kwil-db/common"

	"github.com/clustermesh/authority/internal/authority"
)

// Defaults applied when the node config omits a key.
const (
	defaultMaxCredentials = uint64(64)
)

// Config is the validated authority policy read from the node's extension
// configuration block.
type Config struct {
	// RootAddress is the only acceptable link B signer. Required.
	RootAddress ethcommon.Address

	// Admin may issue credentials while public issuance is disabled and
	// receives payments when it is enabled. Required, stored lowercase.
	Admin string

	// MaxCredentials caps issuance; 0 disables the cap.
	MaxCredentials uint64

	// PublicIssuance opens issuance to paying callers.
	PublicIssuance bool

	// IssuePrice is the minimum payment for public issuance, in the
	// engine's native balance units.
	IssuePrice *big.Int

	// DevMode lifts the endpoint transport and domain restrictions.
	DevMode bool

	// AllowedDomains are the base domains endpoints may use outside dev
	// mode.
	AllowedDomains []string

	// StatusSchedule is an optional cron expression for periodic cluster
	// status logging.
	StatusSchedule string
}

// Authority converts the extension config into the state machine's policy.
func (c Config) Authority() authority.Config {
	return authority.Config{
		Admin:          c.Admin,
		RootAddress:    c.RootAddress,
		MaxCredentials: c.MaxCredentials,
		PublicIssuance: c.PublicIssuance,
		IssuePrice:     c.IssuePrice,
		DevMode:        c.DevMode,
		AllowedDomains: c.AllowedDomains,
	}
}

// configFromService reads the extension's block from the node's local config.
func configFromService(service *common.Service) (Config, error) {
	if service == nil || service.LocalConfig == nil {
		return Config{}, fmt.Errorf("node configuration unavailable")
	}
	raw, ok := service.LocalConfig.Extensions[ExtensionName]
	if !ok {
		return Config{}, fmt.Errorf("missing %q extension configuration", ExtensionName)
	}
	return parseConfigMap(raw)
}

func parseConfigMap(raw map[string]string) (Config, error) {
	cfg := Config{
		MaxCredentials: defaultMaxCredentials,
		IssuePrice:     big.NewInt(0),
	}

	rootHex, ok := raw["root_address"]
	if !ok || rootHex == "" {
		return Config{}, fmt.Errorf("root_address is required")
	}
	if !ethcommon.IsHexAddress(rootHex) {
		return Config{}, fmt.Errorf("root_address %q is not a valid address", rootHex)
	}
	cfg.RootAddress = ethcommon.HexToAddress(rootHex)

	admin, ok := raw["admin"]
	if !ok || admin == "" {
		return Config{}, fmt.Errorf("admin is required")
	}
	if !ethcommon.IsHexAddress(admin) {
		return Config{}, fmt.Errorf("admin %q is not a valid address", admin)
	}
	cfg.Admin = strings.ToLower(admin)

	if v := raw["max_credentials"]; v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid max_credentials %q: %w", v, err)
		}
		cfg.MaxCredentials = parsed
	}

	if v := raw["public_issuance"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid public_issuance %q: %w", v, err)
		}
		cfg.PublicIssuance = parsed
	}

	if v := raw["issue_price"]; v != "" {
		price, ok := new(big.Int).SetString(v, 10)
		if !ok || price.Sign() < 0 {
			return Config{}, fmt.Errorf("invalid issue_price %q", v)
		}
		cfg.IssuePrice = price
	}

	if v := raw["dev_mode"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid dev_mode %q: %w", v, err)
		}
		cfg.DevMode = parsed
	}

	if v := raw["allowed_domains"]; v != "" {
		for _, domain := range strings.Split(v, ",") {
			domain = strings.ToLower(strings.TrimSpace(domain))
			if domain != "" {
				cfg.AllowedDomains = append(cfg.AllowedDomains, domain)
			}
		}
	}
	if !cfg.DevMode && len(cfg.AllowedDomains) == 0 {
		return Config{}, fmt.Errorf("allowed_domains is required outside dev mode")
	}

	if v := raw["status_schedule"]; v != "" {
		if _, err := cron.ParseStandard(v); err != nil {
			return Config{}, fmt.Errorf("invalid status_schedule %q: %w", v, err)
		}
		cfg.StatusSchedule = v
	}

	return cfg, nil
}
