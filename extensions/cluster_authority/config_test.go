package cluster_authority

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func validConfigMap() map[string]string {
	return map[string]string{
		"root_address":    "0x1111111111111111111111111111111111111111",
		"admin":           "0x2222222222222222222222222222222222222222",
		"allowed_domains": "peers.example.io",
	}
}

func TestParseConfigMap_Defaults(t *testing.T) {
	cfg, err := parseConfigMap(validConfigMap())
	require.NoError(t, err)

	require.Equal(t, ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"), cfg.RootAddress)
	require.Equal(t, "0x2222222222222222222222222222222222222222", cfg.Admin)
	require.Equal(t, uint64(64), cfg.MaxCredentials)
	require.False(t, cfg.PublicIssuance)
	require.Zero(t, cfg.IssuePrice.Sign())
	require.False(t, cfg.DevMode)
	require.Equal(t, []string{"peers.example.io"}, cfg.AllowedDomains)
	require.Empty(t, cfg.StatusSchedule)
}

func TestParseConfigMap_FullOverrides(t *testing.T) {
	raw := validConfigMap()
	raw["max_credentials"] = "128"
	raw["public_issuance"] = "true"
	raw["issue_price"] = "1000000000000000000"
	raw["dev_mode"] = "false"
	raw["allowed_domains"] = "Peers.Example.IO, other.net ,"
	raw["status_schedule"] = "*/5 * * * *"

	cfg, err := parseConfigMap(raw)
	require.NoError(t, err)

	require.Equal(t, uint64(128), cfg.MaxCredentials)
	require.True(t, cfg.PublicIssuance)
	require.Equal(t, big.NewInt(1000000000000000000), cfg.IssuePrice)
	require.Equal(t, []string{"peers.example.io", "other.net"}, cfg.AllowedDomains)
	require.Equal(t, "*/5 * * * *", cfg.StatusSchedule)
}

func TestParseConfigMap_AdminLowercased(t *testing.T) {
	raw := validConfigMap()
	raw["admin"] = "0x2222222222222222222222222222222222222AbC"

	cfg, err := parseConfigMap(raw)
	require.NoError(t, err)
	require.Equal(t, "0x2222222222222222222222222222222222222abc", cfg.Admin)
}

func TestParseConfigMap_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing root_address", func(m map[string]string) { delete(m, "root_address") }},
		{"malformed root_address", func(m map[string]string) { m["root_address"] = "0x123" }},
		{"missing admin", func(m map[string]string) { delete(m, "admin") }},
		{"malformed admin", func(m map[string]string) { m["admin"] = "not-an-address" }},
		{"bad max_credentials", func(m map[string]string) { m["max_credentials"] = "-1" }},
		{"bad public_issuance", func(m map[string]string) { m["public_issuance"] = "yep" }},
		{"negative issue_price", func(m map[string]string) { m["issue_price"] = "-5" }},
		{"non-numeric issue_price", func(m map[string]string) { m["issue_price"] = "1.5" }},
		{"bad dev_mode", func(m map[string]string) { m["dev_mode"] = "2" }},
		{"bad status_schedule", func(m map[string]string) { m["status_schedule"] = "every hour" }},
		{"no domains outside dev mode", func(m map[string]string) { delete(m, "allowed_domains") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validConfigMap()
			tc.mutate(raw)
			_, err := parseConfigMap(raw)
			require.Error(t, err)
		})
	}
}

func TestParseConfigMap_DevModeSkipsDomains(t *testing.T) {
	raw := validConfigMap()
	delete(raw, "allowed_domains")
	raw["dev_mode"] = "true"

	cfg, err := parseConfigMap(raw)
	require.NoError(t, err)
	require.True(t, cfg.DevMode)
	require.Empty(t, cfg.AllowedDomains)
}
