package cluster_authority

import (
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/trufnetwork/kwil-db/common"
	kcrypto "github.com/trufnetwork/kwil-db/core/crypto"
	"github.com/trufnetwork/kwil-db/core/types"
	"github.com/trufnetwork/kwil-db/extensions/precompiles"

	"github.com/clustermesh/authority/internal/sigchain"
)

func buildPrecompile(ext *extension) precompiles.Precompile {
	return precompiles.Precompile{
		Cache: ext.Cache(),
		Methods: []precompiles.Method{
			{
				Name: "issue_credential",
				Parameters: []precompiles.PrecompileValue{
					precompiles.NewPrecompileValue("recipient", types.TextType, false),
				},
				Returns: &precompiles.MethodReturn{
					Fields: []precompiles.PrecompileValue{
						precompiles.NewPrecompileValue("credential_id", types.IntType, false),
					},
				},
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.issueCredentialHandler,
			},
			{
				Name: "transfer_credential",
				Parameters: []precompiles.PrecompileValue{
					precompiles.NewPrecompileValue("recipient", types.TextType, false),
					precompiles.NewPrecompileValue("credential_id", types.IntType, false),
				},
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.transferCredentialHandler,
			},
			{
				Name: "bind_node",
				Parameters: []precompiles.PrecompileValue{
					precompiles.NewPrecompileValue("node_id", types.TextType, false),
				},
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.bindNodeHandler,
			},
			{
				Name: "unbind_node",
				Parameters: []precompiles.PrecompileValue{
					precompiles.NewPrecompileValue("node_id", types.TextType, false),
				},
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.unbindNodeHandler,
			},
			{
				Name: "publish_endpoint",
				Parameters: []precompiles.PrecompileValue{
					precompiles.NewPrecompileValue("node_id", types.TextType, false),
					precompiles.NewPrecompileValue("derived_pubkey", types.ByteaType, false),
					precompiles.NewPrecompileValue("app_pubkey", types.ByteaType, false),
					precompiles.NewPrecompileValue("app_sig", types.ByteaType, false),
					precompiles.NewPrecompileValue("root_sig", types.ByteaType, false),
					precompiles.NewPrecompileValue("app_id", types.ByteaType, false),
					precompiles.NewPrecompileValue("purpose", types.TextType, false),
					precompiles.NewPrecompileValue("endpoint", types.TextType, false),
				},
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.publishEndpointHandler,
			},
			{
				Name: "list_endpoints",
				Returns: &precompiles.MethodReturn{
					IsTable: true,
					Fields: []precompiles.PrecompileValue{
						precompiles.NewPrecompileValue("node_id", types.TextType, false),
						precompiles.NewPrecompileValue("endpoint", types.TextType, false),
					},
				},
				AccessModifiers: []precompiles.Modifier{precompiles.VIEW, precompiles.PUBLIC},
				Handler:         ext.listEndpointsHandler,
			},
			{
				Name:            "elect_leader",
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.electLeaderHandler,
			},
			{
				Name: "cast_vote",
				Parameters: []precompiles.PrecompileValue{
					precompiles.NewPrecompileValue("target", types.TextType, false),
					precompiles.NewPrecompileValue("no_confidence", types.BoolType, false),
				},
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.castVoteHandler,
			},
			{
				Name:            "withdraw_vote",
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.withdrawVoteHandler,
			},
			{
				Name: "submit_attestation",
				Parameters: []precompiles.PrecompileValue{
					precompiles.NewPrecompileValue("node_id", types.TextType, false),
					precompiles.NewPrecompileValue("value", types.IntType, false),
					precompiles.NewPrecompileValue("derived_pubkey", types.ByteaType, false),
					precompiles.NewPrecompileValue("app_pubkey", types.ByteaType, false),
					precompiles.NewPrecompileValue("app_sig", types.ByteaType, false),
					precompiles.NewPrecompileValue("root_sig", types.ByteaType, false),
					precompiles.NewPrecompileValue("app_id", types.ByteaType, false),
				},
				AccessModifiers: []precompiles.Modifier{precompiles.PUBLIC},
				Handler:         ext.submitAttestationHandler,
			},
			{
				Name: "cluster_status",
				Returns: &precompiles.MethodReturn{
					Fields: []precompiles.PrecompileValue{
						precompiles.NewPrecompileValue("total_active", types.IntType, false),
						precompiles.NewPrecompileValue("quorum", types.IntType, false),
						precompiles.NewPrecompileValue("leader", types.TextType, true),
					},
				},
				AccessModifiers: []precompiles.Modifier{precompiles.VIEW, precompiles.PUBLIC},
				Handler:         ext.clusterStatusHandler,
			},
		},
	}
}

// callerFrom resolves the holder identity for the current operation: the
// transaction caller, lowercased so the same key always addresses the same
// holder.
func callerFrom(ctx *common.EngineContext) (string, error) {
	if ctx == nil || ctx.TxContext == nil || ctx.TxContext.Caller == "" {
		return "", fmt.Errorf("caller identity unavailable")
	}
	return strings.ToLower(ctx.TxContext.Caller), nil
}

// blockTime returns the consensus timestamp, the only clock the deterministic
// state machine is allowed to observe.
func blockTime(ctx *common.EngineContext) int64 {
	if ctx == nil || ctx.TxContext == nil || ctx.TxContext.BlockContext == nil {
		return 0
	}
	return ctx.TxContext.BlockContext.Timestamp
}

func textArg(inputs []any, idx int, name string) (string, error) {
	v, ok := inputs[idx].(string)
	if !ok {
		return "", fmt.Errorf("%s must be text, got %T", name, inputs[idx])
	}
	return v, nil
}

func byteaArg(inputs []any, idx int, name string) ([]byte, error) {
	v, ok := inputs[idx].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s must be bytea, got %T", name, inputs[idx])
	}
	return v, nil
}

func intArg(inputs []any, idx int, name string) (int64, error) {
	v, ok := inputs[idx].(int64)
	if !ok {
		return 0, fmt.Errorf("%s must be int, got %T", name, inputs[idx])
	}
	return v, nil
}

func (e *extension) issueCredentialHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	recipient, err := textArg(inputs, 0, "recipient")
	if err != nil {
		return err
	}

	paid, err := e.collectIssuePayment(ctx, app)
	if err != nil {
		return err
	}

	// If issuance is rejected after the payment moved, the engine discards
	// the whole transaction, balances included.
	id, ev, err := e.Cache().State().IssueCredential(caller, strings.ToLower(recipient), paid)
	if err != nil {
		return err
	}
	e.emit(ev)
	return resultFn([]any{int64(id)})
}

// collectIssuePayment moves the configured issuance price from the caller to
// the admin treasury. A nil return with zero price means issuance is free or
// admin-gated.
func (e *extension) collectIssuePayment(ctx *common.EngineContext, app *common.App) (*big.Int, error) {
	cfg := e.Config()
	price := cfg.IssuePrice
	if !cfg.PublicIssuance || price == nil || price.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if app == nil || app.Accounts == nil {
		return nil, fmt.Errorf("accounts subsystem unavailable")
	}
	if ctx.TxContext == nil || len(ctx.TxContext.Signer) == 0 {
		return nil, fmt.Errorf("transaction signer unavailable")
	}

	from := &types.AccountID{
		Identifier: ctx.TxContext.Signer,
		KeyType:    kcrypto.KeyTypeSecp256k1,
	}
	to := &types.AccountID{
		Identifier: ethcommon.HexToAddress(cfg.Admin).Bytes(),
		KeyType:    kcrypto.KeyTypeSecp256k1,
	}
	if err := app.Accounts.Transfer(ctx.TxContext.Ctx, app.DB, from, to, price); err != nil {
		return nil, fmt.Errorf("collect issuance payment: %w", err)
	}
	return price, nil
}

func (e *extension) transferCredentialHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	recipient, err := textArg(inputs, 0, "recipient")
	if err != nil {
		return err
	}
	id, err := intArg(inputs, 1, "credential_id")
	if err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("credential_id must be positive, got %d", id)
	}

	ev, err := e.Cache().State().TransferCredential(caller, strings.ToLower(recipient), uint64(id))
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

func (e *extension) bindNodeHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	nodeID, err := textArg(inputs, 0, "node_id")
	if err != nil {
		return err
	}

	ev, err := e.Cache().State().BindNode(nodeID, caller)
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

func (e *extension) unbindNodeHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	nodeID, err := textArg(inputs, 0, "node_id")
	if err != nil {
		return err
	}

	ev, err := e.Cache().State().UnbindNode(nodeID, caller)
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

func (e *extension) publishEndpointHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	nodeID, err := textArg(inputs, 0, "node_id")
	if err != nil {
		return err
	}
	proof, err := proofFromInputs(inputs, 1)
	if err != nil {
		return err
	}
	purpose, err := textArg(inputs, 6, "purpose")
	if err != nil {
		return err
	}
	endpoint, err := textArg(inputs, 7, "endpoint")
	if err != nil {
		return err
	}
	proof.Purpose = purpose

	ev, err := e.Cache().State().PublishEndpoint(nodeID, proof, endpoint)
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

// proofFromInputs decodes the fixed proof argument block starting at idx:
// derived_pubkey, app_pubkey, app_sig, root_sig, app_id.
func proofFromInputs(inputs []any, idx int) (sigchain.Proof, error) {
	derived, err := byteaArg(inputs, idx, "derived_pubkey")
	if err != nil {
		return sigchain.Proof{}, err
	}
	appPubkey, err := byteaArg(inputs, idx+1, "app_pubkey")
	if err != nil {
		return sigchain.Proof{}, err
	}
	appSig, err := byteaArg(inputs, idx+2, "app_sig")
	if err != nil {
		return sigchain.Proof{}, err
	}
	rootSig, err := byteaArg(inputs, idx+3, "root_sig")
	if err != nil {
		return sigchain.Proof{}, err
	}
	appID, err := byteaArg(inputs, idx+4, "app_id")
	if err != nil {
		return sigchain.Proof{}, err
	}
	return sigchain.Proof{
		DerivedPubkey: derived,
		AppPubkey:     appPubkey,
		AppID:         appID,
		AppSignature:  appSig,
		RootSignature: rootSig,
	}, nil
}

func (e *extension) listEndpointsHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	for _, peer := range e.Cache().State().ListEndpoints() {
		if err := resultFn([]any{peer.NodeID, peer.Endpoint}); err != nil {
			return err
		}
	}
	return nil
}

func (e *extension) electLeaderHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}

	ev, changed, err := e.Cache().State().ElectLeader(caller, blockTime(ctx))
	if err != nil {
		return err
	}
	if !changed {
		// First caller wins; a standing leader makes this a no-op, which
		// retrying callers must be able to treat as success.
		e.Logger().Debug("elect_leader no-op, leader already set", "caller", caller)
		return nil
	}
	e.emit(ev)
	return nil
}

func (e *extension) castVoteHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	target, err := textArg(inputs, 0, "target")
	if err != nil {
		return err
	}
	noConfidence, ok := inputs[1].(bool)
	if !ok {
		return fmt.Errorf("no_confidence must be bool, got %T", inputs[1])
	}

	events, err := e.Cache().State().CastVote(caller, strings.ToLower(target), noConfidence, blockTime(ctx))
	if err != nil {
		return err
	}
	for _, ev := range events {
		e.emit(ev)
	}
	return nil
}

func (e *extension) withdrawVoteHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}

	ev, err := e.Cache().State().WithdrawVote(caller)
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

func (e *extension) submitAttestationHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	nodeID, err := textArg(inputs, 0, "node_id")
	if err != nil {
		return err
	}
	value, err := intArg(inputs, 1, "value")
	if err != nil {
		return err
	}
	if value < 0 {
		return fmt.Errorf("value must be non-negative, got %d", value)
	}
	proof, err := proofFromInputs(inputs, 2)
	if err != nil {
		return err
	}

	ev, err := e.Cache().State().SubmitAttestation(nodeID, uint64(value), proof, blockTime(ctx))
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

func (e *extension) clusterStatusHandler(ctx *common.EngineContext, app *common.App, inputs []any, resultFn func([]any) error) error {
	st := e.Cache().State()
	var leaderVal any
	if leader, _, ok := st.Leader(); ok {
		leaderVal = leader
	}
	return resultFn([]any{int64(st.TotalActive()), int64(st.Quorum()), leaderVal})
}
