package client

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/go-bip39"
	"github.com/mezonai/balances-maintenance/jsonx"
	"github.com/mezonai/balances-maintenance/types"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

var ErrUnsupportedKey = errors.New("crypto: unsupported private key")

// Keypair is an ed25519 signing key and the account address it controls.
type Keypair struct {
	Address types.Address
	private ed25519.PrivateKey
}

// KeypairFromSeed accepts a BIP-39 mnemonic or a hex encoded seed, with or
// without 0x prefix.
func KeypairFromSeed(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrUnsupportedKey)
	}

	var seed []byte
	if bip39.IsMnemonicValid(secret) {
		seed = bip39.NewSeed(secret, "")[:ed25519.SeedSize]
	} else {
		raw, err := hex.DecodeString(strings.TrimPrefix(secret, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: neither a mnemonic nor a hex seed", ErrUnsupportedKey)
		}
		switch len(raw) {
		case ed25519.SeedSize:
			seed = raw
		case ed25519.PrivateKeySize:
			seed = raw[:ed25519.SeedSize]
		default:
			return nil, fmt.Errorf("%w: %d byte key", ErrUnsupportedKey, len(raw))
		}
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		Address: types.AddressFromPublicKey(priv.Public().(ed25519.PublicKey)),
		private: priv,
	}, nil
}

// signingPayload is the JSON encoding of the call followed by the
// big-endian nonce.
func signingPayload(call *Call, nonce uint64) ([]byte, error) {
	body, err := jsonx.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return append(body, n[:]...), nil
}

func SignExtrinsic(call *Call, nonce uint64, kp *Keypair) (*SignedExtrinsic, error) {
	if call == nil {
		return nil, ErrInvalidCall
	}
	payload, err := signingPayload(call, nonce)
	if err != nil {
		return nil, err
	}
	digest := blake2b.Sum256(payload)
	signature := ed25519.Sign(kp.private, digest[:])

	return &SignedExtrinsic{
		Call:      call,
		Signer:    kp.Address,
		Nonce:     nonce,
		Signature: base58.Encode(signature),
		Hash:      "0x" + hex.EncodeToString(digest[:]),
	}, nil
}

func VerifyExtrinsic(ext *SignedExtrinsic) bool {
	pub, err := ext.Signer.PublicKey()
	if err != nil {
		return false
	}
	signature, err := base58.Decode(ext.Signature)
	if err != nil {
		return false
	}
	payload, err := signingPayload(ext.Call, ext.Nonce)
	if err != nil {
		return false
	}
	digest := blake2b.Sum256(payload)
	return ed25519.Verify(pub, digest[:], signature)
}
