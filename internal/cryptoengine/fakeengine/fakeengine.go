// Package fakeengine is an in-memory cryptoengine.Engine test double.
// It does not implement MLS; it gives encryptMls/decryptMls real
// authenticated-encryption semantics (so tests exercise an actual
// cipher rather than an identity passthrough) using the Noise
// package's AES-GCM cipher keyed with a random per-group key; no Noise
// handshake is run.
package fakeengine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"

	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

type group struct {
	epoch       uint64
	cipher      noise.Cipher
	sendNonce   uint64
	recvNonce   uint64
	memberCount int
}

// Engine is the in-memory cryptoengine.Engine double.
type Engine struct {
	mu              sync.Mutex
	groups          map[string]*group
	pendingWelcomes map[string][]byte // groupID -> raw welcome payload, orphan until claimed
	keyPackageCount int
	signPub         []byte

	// ForceOrphanWelcome makes the next ProcessWelcome call return
	// WelcomeOrphan, exercising the P6 recovery path in tests.
	ForceOrphanWelcome bool
	// ForceDecryptStaleEpoch makes the next DecryptMls call for
	// groupID fail as if the backend reported a stale epoch (P5).
	ForceDecryptStaleEpoch map[string]bool
}

// New returns a fresh Engine with no groups.
func New() *Engine {
	pub := make([]byte, 32)
	_, _ = rand.Read(pub)
	return &Engine{
		groups:                 make(map[string]*group),
		pendingWelcomes:        make(map[string][]byte),
		keyPackageCount:        0,
		signPub:                pub,
		ForceDecryptStaleEpoch: make(map[string]bool),
	}
}

func key(id model.MlsGroupId) string { return string(id) }

func newSymmetricGroup() *group {
	// Both directions share one derived key and independent nonce
	// counters, so encrypt/decrypt round-trip within this single fake
	// engine instance without a full Noise handshake per message.
	var k [32]byte
	_, _ = rand.Read(k[:])
	return &group{cipher: cipherSuite.Cipher(k)}
}

func (e *Engine) ConversationExists(_ context.Context, groupID model.MlsGroupId) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.groups[key(groupID)]
	return ok, nil
}

func (e *Engine) ProcessWelcome(_ context.Context, welcome []byte) (model.MlsGroupId, cryptoengine.WelcomeOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ForceOrphanWelcome {
		e.ForceOrphanWelcome = false
		return nil, cryptoengine.WelcomeOrphan, nil
	}

	groupID := model.MlsGroupId(welcome)
	e.groups[key(groupID)] = newSymmetricGroup()
	return groupID, cryptoengine.WelcomeOK, nil
}

func (e *Engine) DecryptMls(_ context.Context, groupID model.MlsGroupId, ciphertext []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ForceDecryptStaleEpoch[key(groupID)] {
		delete(e.ForceDecryptStaleEpoch, key(groupID))
		return nil, fmt.Errorf("mls: stale epoch")
	}

	g, ok := e.groups[key(groupID)]
	if !ok {
		return nil, errors.New("fakeengine: unknown group")
	}
	if len(ciphertext) == 0 {
		// Epoch-update message with no application payload.
		return nil, nil
	}
	plaintext, err := g.cipher.Decrypt(nil, g.recvNonce, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("fakeengine: decrypt: %w", err)
	}
	g.recvNonce++
	return plaintext, nil
}

func (e *Engine) EncryptMls(_ context.Context, groupID model.MlsGroupId, plaintext []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[key(groupID)]
	if !ok {
		return nil, errors.New("fakeengine: unknown group")
	}
	ciphertext := g.cipher.Encrypt(nil, g.sendNonce, nil, plaintext)
	g.sendNonce++
	return ciphertext, nil
}

func (e *Engine) JoinByExternalCommit(_ context.Context, groupInfo []byte) (model.MlsGroupId, cryptoengine.CommitBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	groupID := model.MlsGroupId(groupInfo)
	e.groups[key(groupID)] = newSymmetricGroup()
	return groupID, cryptoengine.CommitBundle{Commit: []byte("commit"), GroupInfo: groupInfo}, nil
}

func (e *Engine) CreateConversation(_ context.Context, groupID model.MlsGroupId, _ []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.groups[key(groupID)] = newSymmetricGroup()
	return nil
}

func (e *Engine) AddMembers(_ context.Context, groupID model.MlsGroupId, keyPackages []cryptoengine.KeyPackage) (cryptoengine.CommitBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[key(groupID)]
	if !ok {
		return cryptoengine.CommitBundle{}, errors.New("fakeengine: unknown group")
	}
	g.epoch++
	g.memberCount += len(keyPackages)
	return cryptoengine.CommitBundle{
		Commit:    []byte("commit"),
		GroupInfo: []byte(key(groupID)),
		Welcome:   []byte("welcome"),
	}, nil
}

func (e *Engine) RemoveMembers(_ context.Context, groupID model.MlsGroupId, clients []model.CryptoClientId) (cryptoengine.CommitBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[key(groupID)]
	if !ok {
		return cryptoengine.CommitBundle{}, errors.New("fakeengine: unknown group")
	}
	g.epoch++
	g.memberCount -= len(clients)
	return cryptoengine.CommitBundle{Commit: []byte("commit"), GroupInfo: []byte(key(groupID))}, nil
}

func (e *Engine) UpdateKeyingMaterial(_ context.Context, groupID model.MlsGroupId) (cryptoengine.CommitBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[key(groupID)]
	if !ok {
		return cryptoengine.CommitBundle{}, errors.New("fakeengine: unknown group")
	}
	g.epoch++
	return cryptoengine.CommitBundle{Commit: []byte("commit"), GroupInfo: []byte(key(groupID))}, nil
}

func (e *Engine) GenerateKeyPackages(_ context.Context, count int, _ uint16) ([]cryptoengine.KeyPackage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]cryptoengine.KeyPackage, count)
	for i := range out {
		kp := make([]byte, 32)
		_, _ = rand.Read(kp)
		out[i] = kp
	}
	e.keyPackageCount += count
	return out, nil
}

func (e *Engine) PublicKey(_ context.Context, _ uint16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signPub, nil
}

func (e *Engine) HasTooFewKeyPackages(_ context.Context, defaultCount int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keyPackageCount < defaultCount/2, nil
}

func (e *Engine) ConversationEpoch(_ context.Context, groupID model.MlsGroupId) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[key(groupID)]
	if !ok {
		return 0, errors.New("fakeengine: unknown group")
	}
	return g.epoch, nil
}

func (e *Engine) WipeConversation(_ context.Context, groupID model.MlsGroupId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.groups, key(groupID))
	return nil
}

// SetKeyPackageCount lets tests directly set the tracked valid
// key-package count, for exercising I4/P8 without generating real
// packages first.
func (e *Engine) SetKeyPackageCount(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keyPackageCount = n
}

var _ cryptoengine.Engine = (*Engine)(nil)
