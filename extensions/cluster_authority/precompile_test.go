package cluster_authority

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/trufnetwork/kwil-db/common"

	"github.com/clustermesh/authority/internal/authority"
)

const (
	testAdmin = "0x00000000000000000000000000000000000000ad"
	testRoot  = "0x1111111111111111111111111111111111111111"
)

func testConfig(mutate ...func(*Config)) Config {
	cfg := Config{
		RootAddress:    ethcommon.HexToAddress(testRoot),
		Admin:          testAdmin,
		MaxCredentials: 64,
		IssuePrice:     big.NewInt(0),
		DevMode:        true,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return cfg
}

func setupExtension(t *testing.T, mutate ...func(*Config)) *extension {
	t.Helper()
	SetExtensionForTest(nil, testConfig(mutate...))
	ResetWatchersForTest()
	t.Cleanup(ResetWatchersForTest)
	return getExtension()
}

func engCtx(caller string) *common.EngineContext {
	return &common.EngineContext{
		TxContext: &common.TxContext{
			Ctx:          context.Background(),
			Signer:       []byte(caller),
			Caller:       caller,
			TxID:         "test-tx",
			BlockContext: &common.BlockContext{Height: 1, Timestamp: 1700000000},
		},
	}
}

func discardResult([]any) error { return nil }

func TestIssueCredentialHandler(t *testing.T) {
	ext := setupExtension(t)

	var id int64
	err := ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{"0xAAAA000000000000000000000000000000000001"}, func(row []any) error {
		id = row[0].(int64)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	// Recipient identity is case-insensitive.
	require.Equal(t, uint64(1), ext.Cache().State().CredentialOf("0xaaaa000000000000000000000000000000000001"))
}

func TestIssueCredentialHandler_NonAdminRejected(t *testing.T) {
	ext := setupExtension(t)

	err := ext.issueCredentialHandler(engCtx("0xoutsider"), nil, []any{"0xrecipient"}, discardResult)
	require.ErrorIs(t, err, authority.ErrAuthorization)
}

func TestIssueCredentialHandler_PaidWithoutAccounts(t *testing.T) {
	ext := setupExtension(t, func(c *Config) {
		c.PublicIssuance = true
		c.IssuePrice = big.NewInt(100)
	})

	// Paid issuance needs the engine's accounts subsystem; a nil app must
	// fail before any state changes.
	err := ext.issueCredentialHandler(engCtx("0xbuyer"), nil, []any{"0xbuyer"}, discardResult)
	require.Error(t, err)
	require.Contains(t, err.Error(), "accounts subsystem unavailable")
	require.Zero(t, ext.Cache().State().CredentialOf("0xbuyer"))
}

func TestIssueCredentialHandler_BadArgType(t *testing.T) {
	ext := setupExtension(t)

	err := ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{int64(7)}, discardResult)
	require.Error(t, err)
	require.Contains(t, err.Error(), "recipient must be text")
}

func TestTransferCredentialHandler(t *testing.T) {
	ext := setupExtension(t)
	require.NoError(t, ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{"0xalice"}, discardResult))

	err := ext.transferCredentialHandler(engCtx("0xAlice"), nil, []any{"0xbob", int64(1)}, discardResult)
	require.NoError(t, err)

	require.Equal(t, "0xbob", ext.Cache().State().HolderOf(1))
}

func TestTransferCredentialHandler_NonPositiveID(t *testing.T) {
	ext := setupExtension(t)

	err := ext.transferCredentialHandler(engCtx("0xalice"), nil, []any{"0xbob", int64(0)}, discardResult)
	require.Error(t, err)
	require.Contains(t, err.Error(), "credential_id must be positive")
}

func TestBindUnbindHandlers(t *testing.T) {
	ext := setupExtension(t)
	require.NoError(t, ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{"0xalice"}, discardResult))

	require.NoError(t, ext.bindNodeHandler(engCtx("0xalice"), nil, []any{"node-1"}, discardResult))
	require.Equal(t, 1, ext.Cache().State().TotalActive())

	// Only the bound holder may unbind.
	err := ext.unbindNodeHandler(engCtx("0xmallory"), nil, []any{"node-1"}, discardResult)
	require.ErrorIs(t, err, authority.ErrAuthorization)

	require.NoError(t, ext.unbindNodeHandler(engCtx("0xalice"), nil, []any{"node-1"}, discardResult))
	require.Zero(t, ext.Cache().State().TotalActive())
}

func TestElectionHandlers(t *testing.T) {
	ext := setupExtension(t)
	for _, holder := range []string{"0xa", "0xb", "0xc"} {
		require.NoError(t, ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{holder}, discardResult))
		require.NoError(t, ext.bindNodeHandler(engCtx(holder), nil, []any{"node-" + holder}, discardResult))
	}

	require.NoError(t, ext.electLeaderHandler(engCtx("0xa"), nil, nil, discardResult))
	leader, _, ok := ext.Cache().State().Leader()
	require.True(t, ok)
	require.Equal(t, "0xa", leader)

	// A standing leader makes further elections a no-op, not an error.
	require.NoError(t, ext.electLeaderHandler(engCtx("0xb"), nil, nil, discardResult))
	leader, _, _ = ext.Cache().State().Leader()
	require.Equal(t, "0xa", leader)

	require.NoError(t, ext.castVoteHandler(engCtx("0xb"), nil, []any{"0xA", true}, discardResult))
	require.NoError(t, ext.castVoteHandler(engCtx("0xc"), nil, []any{"0xa", true}, discardResult))

	// Quorum of 2 reached, leadership passes to the lowest clean credential.
	leader, cred, ok := ext.Cache().State().Leader()
	require.True(t, ok)
	require.Equal(t, "0xb", leader)
	require.Equal(t, uint64(2), cred)

	require.NoError(t, ext.withdrawVoteHandler(engCtx("0xb"), nil, nil, discardResult))
	_, voted := ext.Cache().State().VoteOf("0xb")
	require.False(t, voted)
}

func TestCastVoteHandler_BadArgTypes(t *testing.T) {
	ext := setupExtension(t)

	err := ext.castVoteHandler(engCtx("0xa"), nil, []any{"0xb", "yes"}, discardResult)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no_confidence must be bool")
}

func TestSubmitAttestationHandler_NegativeValue(t *testing.T) {
	ext := setupExtension(t)

	inputs := []any{"node-1", int64(-1), []byte{1}, []byte{1}, []byte{1}, []byte{1}, []byte{1}}
	err := ext.submitAttestationHandler(engCtx("0xa"), nil, inputs, discardResult)
	require.Error(t, err)
	require.Contains(t, err.Error(), "value must be non-negative")
}

func TestClusterStatusHandler(t *testing.T) {
	ext := setupExtension(t)

	var rows [][]any
	collect := func(row []any) error {
		rows = append(rows, row)
		return nil
	}

	require.NoError(t, ext.clusterStatusHandler(engCtx("0xobserver"), nil, nil, collect))
	require.Len(t, rows, 1)
	require.Equal(t, int64(0), rows[0][0])
	require.Equal(t, int64(0), rows[0][1])
	require.Nil(t, rows[0][2], "no leader reports null")

	require.NoError(t, ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{"0xa"}, discardResult))
	require.NoError(t, ext.bindNodeHandler(engCtx("0xa"), nil, []any{"node-1"}, discardResult))
	require.NoError(t, ext.electLeaderHandler(engCtx("0xa"), nil, nil, discardResult))

	rows = nil
	require.NoError(t, ext.clusterStatusHandler(engCtx("0xobserver"), nil, nil, collect))
	require.Equal(t, int64(1), rows[0][0])
	require.Equal(t, int64(1), rows[0][1])
	require.Equal(t, "0xa", rows[0][2])
}

func TestHandlers_MissingCaller(t *testing.T) {
	ext := setupExtension(t)

	bare := &common.EngineContext{TxContext: &common.TxContext{Ctx: context.Background()}}
	err := ext.issueCredentialHandler(bare, nil, []any{"0xa"}, discardResult)
	require.Error(t, err)
	require.Contains(t, err.Error(), "caller identity unavailable")
}

func TestWatcherReceivesEvents(t *testing.T) {
	ext := setupExtension(t)

	var seen []string
	require.NoError(t, RegisterWatcher("recorder", func(ev authority.Event) {
		seen = append(seen, ev.Name)
	}))

	require.NoError(t, ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{"0xa"}, discardResult))
	require.NoError(t, ext.bindNodeHandler(engCtx("0xa"), nil, []any{"node-1"}, discardResult))

	require.Equal(t, []string{authority.EventCredentialIssued, authority.EventNodeBound}, seen)
}
