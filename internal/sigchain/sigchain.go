// Package sigchain verifies the two-link hardware attestation signature chain
// that backs every node claim: the application key signs a binding over the
// derived key, and the root key signs the issuance of the application key.
// All functions are pure and usable offline without any engine state.
package sigchain

import (
	"encoding/hex"
	"fmt"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the required length of every chain signature:
	// 32-byte R, 32-byte S, 1-byte recovery id.
	SignatureLength = 65

	// AppIDLength is the number of leading app id bytes covered by the
	// root issuance message.
	AppIDLength = 20

	// issuancePrefix anchors the root-signed message so it cannot collide
	// with application-signed payloads.
	issuancePrefix = "issued:"
)

// Proof bundles the raw material produced by the attestation agent. The
// verifier treats every field as opaque input; it never generates or caches
// proofs.
type Proof struct {
	DerivedPubkey []byte // public half of the key the node actually uses
	AppPubkey     []byte // application public key, SEC1 compressed or uncompressed
	AppID         []byte // application identity, at least AppIDLength bytes
	Purpose       string // free-form purpose tag bound into the link A message
	AppSignature  []byte // link A: app key over the binding message
	RootSignature []byte // link B: root key over the issuance message
}

// KeyBindingMessage builds the link A message binding the derived public key
// to a purpose: purpose || ":" || lowercase hex of the derived key, no 0x
// prefix.
func KeyBindingMessage(purpose string, derivedPubkey []byte) []byte {
	return []byte(purpose + ":" + hex.EncodeToString(derivedPubkey))
}

// AttestedValueMessage builds the link A message for a value attestation:
// node id || ":" || decimal rendering of the value.
func AttestedValueMessage(nodeID string, value uint64) []byte {
	return []byte(nodeID + ":" + strconv.FormatUint(value, 10))
}

// IssuanceMessage builds the link B message the root key must have signed:
// "issued:" || first AppIDLength bytes of the app id || app public key bytes.
func IssuanceMessage(appID, appPubkey []byte) []byte {
	msg := make([]byte, 0, len(issuancePrefix)+AppIDLength+len(appPubkey))
	msg = append(msg, issuancePrefix...)
	msg = append(msg, appID[:AppIDLength]...)
	msg = append(msg, appPubkey...)
	return msg
}

// RecoverSigner hashes the message with raw keccak256 (no Ethereum message
// prefix) and recovers the signer address. Recovery of the zero address is
// reported as an invalid signature, never as a valid-but-unexpected signer.
func RecoverSigner(message, signature []byte) (ethcommon.Address, error) {
	if len(signature) != SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(signature))
	}

	normalized := append([]byte(nil), signature...)
	recoveryID, err := toCompactRecoveryID(normalized[64])
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("normalise recovery id: %w", err)
	}
	normalized[64] = recoveryID

	digest := crypto.Keccak256(message)
	pubkey, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	addr := crypto.PubkeyToAddress(*pubkey)
	if addr == (ethcommon.Address{}) {
		return ethcommon.Address{}, fmt.Errorf("recovered zero address")
	}
	return addr, nil
}

// AppKeyAddress derives the address of the supplied application public key.
// Both SEC1 compressed (33 byte) and uncompressed (65 byte) encodings are
// accepted.
func AppKeyAddress(appPubkey []byte) (ethcommon.Address, error) {
	switch len(appPubkey) {
	case 33:
		pub, err := crypto.DecompressPubkey(appPubkey)
		if err != nil {
			return ethcommon.Address{}, fmt.Errorf("decompress app public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	case 65:
		pub, err := crypto.UnmarshalPubkey(appPubkey)
		if err != nil {
			return ethcommon.Address{}, fmt.Errorf("unmarshal app public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	default:
		return ethcommon.Address{}, fmt.Errorf("app public key must be 33 or 65 bytes, got %d", len(appPubkey))
	}
}

// Verify checks both links of the chain. linkAMessage is the application-signed
// payload (key binding or attested value). The recovered link A signer must
// match the address of the supplied app public key, and the recovered link B
// signer must match the configured root address exactly.
func Verify(linkAMessage []byte, p Proof, root ethcommon.Address) error {
	if len(p.AppID) < AppIDLength {
		return fmt.Errorf("app id must be at least %d bytes, got %d", AppIDLength, len(p.AppID))
	}

	appAddr, err := AppKeyAddress(p.AppPubkey)
	if err != nil {
		return err
	}

	appSigner, err := RecoverSigner(linkAMessage, p.AppSignature)
	if err != nil {
		return fmt.Errorf("link A: %w", err)
	}
	if appSigner != appAddr {
		return fmt.Errorf("link A: recovered signer %s does not match app key %s", appSigner.Hex(), appAddr.Hex())
	}

	rootSigner, err := RecoverSigner(IssuanceMessage(p.AppID, p.AppPubkey), p.RootSignature)
	if err != nil {
		return fmt.Errorf("link B: %w", err)
	}
	if rootSigner != root {
		return fmt.Errorf("link B: recovered signer %s does not match root %s", rootSigner.Hex(), root.Hex())
	}

	return nil
}

// VerifyKeyBinding verifies the chain for an endpoint publication, where the
// app-signed message binds the derived public key to the proof purpose.
func VerifyKeyBinding(p Proof, root ethcommon.Address) error {
	if len(p.DerivedPubkey) == 0 {
		return fmt.Errorf("derived public key cannot be empty")
	}
	if p.Purpose == "" {
		return fmt.Errorf("purpose cannot be empty")
	}
	return Verify(KeyBindingMessage(p.Purpose, p.DerivedPubkey), p, root)
}

// VerifyAttestedValue verifies the chain for a value attestation by node id.
func VerifyAttestedValue(nodeID string, value uint64, p Proof, root ethcommon.Address) error {
	return Verify(AttestedValueMessage(nodeID, value), p, root)
}

// toCompactRecoveryID maps the recovery id byte to the compact {0,1} form
// expected by secp256k1 recovery. EVM-style 27/28 (and EIP-155 offsets up to
// 34) are accepted; anything else is rejected.
func toCompactRecoveryID(v byte) (byte, error) {
	switch {
	case v <= 1:
		return v, nil
	case v >= 27 && v <= 34:
		return (v - 27) & 1, nil
	default:
		return 0, fmt.Errorf("invalid recovery id %d", v)
	}
}
