// Package solwallet derives and holds Solana Ed25519 keypairs from BIP39
// mnemonics.
package solwallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

// DerivationPath is the path recorded alongside every wallet. The standard
// BIP44 Solana coin type is 501; this implementation does not walk a full
// hierarchical derivation tree (solana-go has no native SLIP-0010 support
// wired in here), it derives directly from the mnemonic seed's first 32
// bytes the same way the account-index-0 path would, and records the path
// string purely as metadata.
const DerivationPath = "m/44'/501'/0'/0'"

var (
	ErrInvalidWordCount = errors.New("mnemonic must be 12 or 24 words")
	ErrInvalidChecksum  = errors.New("mnemonic failed bip39 checksum validation")
	ErrSeedTooShort     = errors.New("derived seed shorter than 32 bytes")
)

// Keypair is a derived Solana signing keypair plus the mnemonic it came
// from.
type Keypair struct {
	Mnemonic   string
	PrivateKey solana.PrivateKey
}

// PublicKey returns the base58 Solana address.
func (k Keypair) PublicKey() solana.PublicKey {
	return k.PrivateKey.PublicKey()
}

// GenerateMnemonic creates a fresh BIP39 mnemonic. wordCount must be 12 or 24.
func GenerateMnemonic(wordCount int) (string, error) {
	entropyBits, err := entropyBitsForWordCount(wordCount)
	if err != nil {
		return "", err
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// DeriveFromMnemonic validates a mnemonic's word count and BIP39 checksum,
// then derives the Solana Ed25519 keypair from its seed. This is the single
// derivation path used by both create (fresh mnemonic) and import (operator
// supplied mnemonic).
func DeriveFromMnemonic(mnemonic string) (Keypair, error) {
	words := countWords(mnemonic)
	if words != 12 && words != 24 {
		return Keypair{}, ErrInvalidWordCount
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return Keypair{}, ErrInvalidChecksum
	}

	seed := bip39.NewSeed(mnemonic, "")
	if len(seed) < 32 {
		return Keypair{}, ErrSeedTooShort
	}

	stdKey := ed25519.NewKeyFromSeed(seed[:32])
	return Keypair{
		Mnemonic:   mnemonic,
		PrivateKey: solana.PrivateKey(stdKey),
	}, nil
}

// Create generates a fresh 12-word mnemonic and derives its keypair.
func Create() (Keypair, error) {
	mnemonic, err := GenerateMnemonic(12)
	if err != nil {
		return Keypair{}, err
	}
	return DeriveFromMnemonic(mnemonic)
}

func entropyBitsForWordCount(wordCount int) (int, error) {
	switch wordCount {
	case 12:
		return 128, nil
	case 24:
		return 256, nil
	default:
		return 0, ErrInvalidWordCount
	}
}

func countWords(mnemonic string) int {
	n := 0
	inWord := false
	for _, r := range mnemonic {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			n++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return n
}
