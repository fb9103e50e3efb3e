package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/config"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine/fakeengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/store/memstore"
)

type fakeBootstrapBackend struct {
	registered bool
	uploaded   []string
}

func (f *fakeBootstrapBackend) APIVersion(ctx context.Context) (*backend.APIVersionResponse, error) {
	return &backend.APIVersionResponse{Domain: "example.com"}, nil
}

func (f *fakeBootstrapBackend) FeatureConfigs(ctx context.Context) (*backend.FeatureConfigsResponse, error) {
	return &backend.FeatureConfigsResponse{}, nil
}

func (f *fakeBootstrapBackend) RegisterClient(ctx context.Context, req backend.RegisterClientRequest) (*backend.RegisterClientResponse, error) {
	f.registered = true
	return &backend.RegisterClientResponse{Id: "device-1"}, nil
}

func (f *fakeBootstrapBackend) AttachMlsPublicKey(ctx context.Context, clientID string, ciphersuite uint16, publicKey []byte) error {
	return nil
}

func (f *fakeBootstrapBackend) UploadKeyPackages(ctx context.Context, deviceID string, keyPackagesB64 []string) error {
	f.uploaded = keyPackagesB64
	return nil
}

func newEngine(keystorePath string) (cryptoengine.Engine, error) {
	return fakeengine.New(), nil
}

func validConfig() *config.Config {
	return &config.Config{
		UserID:                 "user-1",
		CryptographyStorageKey: "0123456789abcdef0123456789abcdef"[:32],
		DefaultKeyPackageCount: 10,
	}
}

func TestRunRegistersNewDevice(t *testing.T) {
	b := &fakeBootstrapBackend{}
	apps := memstore.NewAppStore()

	result, err := Run(context.Background(), validConfig(), b, apps, newEngine)
	require.NoError(t, err)
	assert.Equal(t, "device-1", result.DeviceId)
	assert.True(t, b.registered)
	assert.Len(t, b.uploaded, 10)

	shouldRejoin, ok, err := apps.Get(context.Background(), "should_rejoin_conversations")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", shouldRejoin)
}

func TestRunSkipsRegistrationWhenDeviceIdExists(t *testing.T) {
	b := &fakeBootstrapBackend{}
	apps := memstore.NewAppStore()
	require.NoError(t, apps.Set(context.Background(), "device_id", "existing-device"))

	result, err := Run(context.Background(), validConfig(), b, apps, newEngine)
	require.NoError(t, err)
	assert.Equal(t, "existing-device", result.DeviceId)
	assert.False(t, b.registered)
}

func TestRunRejectsWrongLengthStorageKey(t *testing.T) {
	b := &fakeBootstrapBackend{}
	apps := memstore.NewAppStore()
	cfg := validConfig()
	cfg.CryptographyStorageKey = "too-short"

	_, err := Run(context.Background(), cfg, b, apps, newEngine)
	assert.Error(t, err)
}
