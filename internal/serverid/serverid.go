// Package serverid seals game server ids into opaque tokens so clients
// cannot pick a server they were not offered.
package serverid

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strconv"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrInvalidToken is returned for tokens that fail to decode or authenticate
var ErrInvalidToken = errors.New("invalid server token")

// Sealer encrypts and authenticates server ids
type Sealer struct {
	key  [32]byte
	rand io.Reader
}

// NewSealer derives the sealing key from secret
func NewSealer(secret string) *Sealer {
	return &Sealer{key: sha256.Sum256([]byte(secret)), rand: rand.Reader}
}

// Seal returns an opaque token for id
func (s *Sealer) Seal(id int) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(strconv.Itoa(id)), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open recovers the server id from a token produced by Seal
func (s *Sealer) Open(token string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return 0, ErrInvalidToken
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return 0, ErrInvalidToken
	}

	id, err := strconv.Atoi(string(plain))
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// OpenOptional opens token, treating an empty token as "no server"
func (s *Sealer) OpenOptional(token string) (*int, error) {
	if token == "" {
		return nil, nil
	}
	id, err := s.Open(token)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
