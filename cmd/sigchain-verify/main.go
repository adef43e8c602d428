// sigchain-verify checks a two-link hardware attestation signature chain
// offline, with the same rules the cluster authority applies on chain. Useful
// for debugging a proof before spending a transaction on it.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/clustermesh/authority/internal/sigchain"
)

type proofFlags struct {
	root          string
	derivedPubkey string
	appPubkey     string
	appSig        string
	rootSig       string
	appID         string
}

func (f *proofFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.root, "root", "", "expected root signer address (0x-prefixed)")
	cmd.Flags().StringVar(&f.derivedPubkey, "derived-pubkey", "", "derived public key, hex")
	cmd.Flags().StringVar(&f.appPubkey, "app-pubkey", "", "application public key, hex (33 or 65 bytes)")
	cmd.Flags().StringVar(&f.appSig, "app-sig", "", "application signature over link A, hex (65 bytes)")
	cmd.Flags().StringVar(&f.rootSig, "root-sig", "", "root signature over link B, hex (65 bytes)")
	cmd.Flags().StringVar(&f.appID, "app-id", "", "application identity, hex (at least 20 bytes)")
	for _, name := range []string{"root", "derived-pubkey", "app-pubkey", "app-sig", "root-sig", "app-id"} {
		cobra.CheckErr(cmd.MarkFlagRequired(name))
	}
}

func (f *proofFlags) parse() (sigchain.Proof, ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(f.root) {
		return sigchain.Proof{}, ethcommon.Address{}, fmt.Errorf("invalid root address %q", f.root)
	}
	root := ethcommon.HexToAddress(f.root)

	var proof sigchain.Proof
	var err error
	if proof.DerivedPubkey, err = decodeHexFlag("derived-pubkey", f.derivedPubkey); err != nil {
		return sigchain.Proof{}, ethcommon.Address{}, err
	}
	if proof.AppPubkey, err = decodeHexFlag("app-pubkey", f.appPubkey); err != nil {
		return sigchain.Proof{}, ethcommon.Address{}, err
	}
	if proof.AppSignature, err = decodeHexFlag("app-sig", f.appSig); err != nil {
		return sigchain.Proof{}, ethcommon.Address{}, err
	}
	if proof.RootSignature, err = decodeHexFlag("root-sig", f.rootSig); err != nil {
		return sigchain.Proof{}, ethcommon.Address{}, err
	}
	if proof.AppID, err = decodeHexFlag("app-id", f.appID); err != nil {
		return sigchain.Proof{}, ethcommon.Address{}, err
	}
	return proof, root, nil
}

func decodeHexFlag(name, value string) ([]byte, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return decoded, nil
}

func keyBindingCmd() *cobra.Command {
	var flags proofFlags
	var purpose string

	cmd := &cobra.Command{
		Use:   "key-binding",
		Short: "Verify a key binding proof for a purpose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, root, err := flags.parse()
			if err != nil {
				return err
			}
			proof.Purpose = purpose
			if err := sigchain.VerifyKeyBinding(proof, root); err != nil {
				return fmt.Errorf("chain invalid: %w", err)
			}
			cmd.Println("chain valid")
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&purpose, "purpose", "", "binding purpose string")
	cobra.CheckErr(cmd.MarkFlagRequired("purpose"))
	return cmd
}

func attestedValueCmd() *cobra.Command {
	var flags proofFlags
	var nodeID string
	var value uint64

	cmd := &cobra.Command{
		Use:   "attested-value",
		Short: "Verify an attested value proof for a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, root, err := flags.parse()
			if err != nil {
				return err
			}
			if err := sigchain.VerifyAttestedValue(nodeID, value, proof, root); err != nil {
				return fmt.Errorf("chain invalid: %w", err)
			}
			cmd.Println("chain valid")
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&nodeID, "node-id", "", "node identity the value is attested for")
	cmd.Flags().Uint64Var(&value, "value", 0, "attested value")
	cobra.CheckErr(cmd.MarkFlagRequired("node-id"))
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "sigchain-verify",
		Short:         "Offline verifier for two-link attestation signature chains",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(keyBindingCmd(), attestedValueCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
