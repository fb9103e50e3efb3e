// Package bootstrap implements CryptoBootstrap (C9, spec §4.8): the
// SDK startup sequence that selects a ciphersuite, derives the local
// keystore path, and establishes or loads this device's MLS/Proteus
// client identity.
package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/config"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
	"github.com/wireapp/wire-apps-go-sdk/internal/store"
)

// Backend is the subset of internal/backend.Client the bootstrap
// sequence needs.
type Backend interface {
	APIVersion(ctx context.Context) (*backend.APIVersionResponse, error)
	FeatureConfigs(ctx context.Context) (*backend.FeatureConfigsResponse, error)
	RegisterClient(ctx context.Context, req backend.RegisterClientRequest) (*backend.RegisterClientResponse, error)
	AttachMlsPublicKey(ctx context.Context, clientID string, ciphersuite uint16, publicKey []byte) error
	UploadKeyPackages(ctx context.Context, deviceID string, keyPackagesB64 []string) error
}

// EngineFactory constructs a cryptoengine.Engine rooted at
// keystorePath. The concrete MLS/Proteus implementation isn't part
// of this module's dependency surface (spec §9 narrows the core to
// the Engine interface); callers supply the factory.
type EngineFactory func(keystorePath string) (cryptoengine.Engine, error)

// Result is what a successful bootstrap hands back to the
// composition root.
type Result struct {
	Engine      cryptoengine.Engine
	Domain      string
	Ciphersuite uint16
	DeviceId    string
}

// Run executes the sequence described in spec §4.8.
func Run(ctx context.Context, cfg *config.Config, b Backend, apps store.AppStore, newEngine EngineFactory) (*Result, error) {
	features, err := b.FeatureConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: fetch feature configs: %w", err)
	}
	ciphersuite := defaultCiphersuite(features)

	apiVersion, err := b.APIVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: fetch api version: %w", err)
	}
	domain := apiVersion.Domain

	keystorePath, err := deriveKeystorePath(cfg.UserID, cfg.CryptographyStorageKey)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: construct crypto engine: %w", err)
	}

	deviceID, existed, err := apps.Get(ctx, model.AppDataDeviceId)
	if err != nil {
		return nil, err
	}

	if existed {
		if err := apps.Set(ctx, model.AppDataShouldRejoinConversations, "false"); err != nil {
			return nil, err
		}
		return &Result{Engine: engine, Domain: domain, Ciphersuite: ciphersuite, DeviceId: deviceID}, nil
	}

	deviceID, err = registerDevice(ctx, b, engine, ciphersuite, domain, cfg)
	if err != nil {
		return nil, err
	}
	// Device-id write is effectively once-per-install; AppStore has no
	// compare-and-swap, so this relies on the caller never re-running
	// registerDevice for an existing install.
	if err := apps.Set(ctx, model.AppDataDeviceId, deviceID); err != nil {
		return nil, err
	}
	if err := apps.Set(ctx, model.AppDataShouldRejoinConversations, "true"); err != nil {
		return nil, err
	}

	return &Result{Engine: engine, Domain: domain, Ciphersuite: ciphersuite, DeviceId: deviceID}, nil
}

func registerDevice(ctx context.Context, b Backend, engine cryptoengine.Engine, ciphersuite uint16, domain string, cfg *config.Config) (string, error) {
	prekeys := make([]backend.Prekey, 4)
	for i := range prekeys {
		prekeys[i] = backend.Prekey{Id: uint16(i), Key: placeholderPrekey()}
	}
	lastPrekey := backend.Prekey{Id: 0xFFFF, Key: placeholderPrekey()}

	resp, err := b.RegisterClient(ctx, backend.RegisterClientRequest{
		Prekeys:    prekeys,
		LastPrekey: lastPrekey,
		Type:       "permanent",
	})
	if err != nil {
		return "", fmt.Errorf("bootstrap: register client: %w", err)
	}

	publicKey, err := engine.PublicKey(ctx, ciphersuite)
	if err != nil {
		return "", err
	}
	if err := b.AttachMlsPublicKey(ctx, resp.Id, ciphersuite, publicKey); err != nil {
		return "", err
	}

	packages, err := engine.GenerateKeyPackages(ctx, cfg.DefaultKeyPackageCount, ciphersuite)
	if err != nil {
		return "", err
	}
	encoded := make([]string, len(packages))
	for i, kp := range packages {
		encoded[i] = base64.StdEncoding.EncodeToString(kp)
	}
	if err := b.UploadKeyPackages(ctx, resp.Id, encoded); err != nil {
		return "", err
	}

	return resp.Id, nil
}

// placeholderPrekey is a non-cryptographic stand-in: Proteus prekeys
// aren't otherwise used by this SDK once MLS is established, but the
// register-client endpoint requires the field.
func placeholderPrekey() string {
	sum := sha256.Sum256([]byte("wire-apps-go-sdk-prekey"))
	return base64.StdEncoding.EncodeToString(sum[:16])
}

func defaultCiphersuite(f *backend.FeatureConfigsResponse) uint16 {
	if f.MLS.Config.DefaultCipherSuite != 0 {
		return uint16(f.MLS.Config.DefaultCipherSuite)
	}
	return 0x0001
}

// deriveKeystorePath derives a per-user, per-storage-key keystore
// path via HKDF-SHA256, enforcing the configured storage-key length
// (spec §4.8: "violation ⇒ InvalidParameter").
func deriveKeystorePath(userID, storageKey string) (string, error) {
	if len(storageKey) != config.CryptoStorageKeyLen {
		return "", sdkerr.New(sdkerr.InvalidParameter, fmt.Sprintf(
			"cryptography storage key must be %d bytes, got %d", config.CryptoStorageKeyLen, len(storageKey)))
	}

	reader := hkdf.New(sha256.New, []byte(storageKey), []byte(userID), []byte("wire-apps-go-sdk/keystore"))
	out := make([]byte, 16)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", fmt.Errorf("bootstrap: derive keystore path: %w", err)
	}
	return "keystore-" + hex.EncodeToString(out), nil
}
