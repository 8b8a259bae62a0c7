package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const keystoreVersion = 1

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// file has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted identity")

// kdf holds scrypt cost parameters.
type kdf struct {
	N, R, P int
}

func defaultKDF() kdf { return kdf{N: 1 << 15, R: 8, P: 1} }

// sealed is the on-disk JSON form of a passphrase-protected secret.
type sealed struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

func seal(passphrase string, raw []byte, params kdf) ([]byte, error) {
	out := sealed{V: keystoreVersion, N: params.N, R: params.R, P: params.P}
	out.Salt = make([]byte, 16)
	out.Nonce = make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(out.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(out.Nonce); err != nil {
		return nil, err
	}
	aead, err := passphraseAEAD(passphrase, out.Salt, params)
	if err != nil {
		return nil, err
	}
	out.Cipher = aead.Seal(nil, out.Nonce, raw, out.Salt)
	return json.Marshal(out)
}

func unseal(passphrase string, b []byte) ([]byte, error) {
	var in sealed
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if in.V != keystoreVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", in.V)
	}
	if len(in.Nonce) != chacha20poly1305.NonceSize {
		return nil, ErrWrongPassphrase
	}
	aead, err := passphraseAEAD(passphrase, in.Salt, kdf{N: in.N, R: in.R, P: in.P})
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, in.Nonce, in.Cipher, in.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func passphraseAEAD(passphrase string, salt []byte, params kdf) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}
