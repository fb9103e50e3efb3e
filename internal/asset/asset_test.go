package asset

import (
	"context"
	"io"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractDataPart(body []byte) ([]byte, string, error) {
	r := multipart.NewReader(strings.NewReader(string(body)), "frontier")
	// metadata part
	if _, err := r.NextPart(); err != nil {
		return nil, "", err
	}
	dataPart, err := r.NextPart()
	if err != nil {
		return nil, "", err
	}
	data, err := io.ReadAll(dataPart)
	return data, dataPart.Header.Get("Content-MD5"), err
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("hello from a test fixture, repeated repeated repeated repeated for compression")

	enc, err := Encrypt(plaintext, DefaultMaxDataSize, false)
	require.NoError(t, err)
	assert.False(t, enc.Compressed)

	got, err := Decrypt(enc.Ciphertext, enc.Sha256, enc.OtrKey, enc.Compressed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptDecryptRoundTripCompressed(t *testing.T) {
	plaintext := make([]byte, 4096)
	for i := range plaintext {
		plaintext[i] = 'a'
	}

	enc, err := Encrypt(plaintext, DefaultMaxDataSize, true)
	require.NoError(t, err)
	assert.True(t, enc.Compressed)

	got, err := Decrypt(enc.Ciphertext, enc.Sha256, enc.OtrKey, enc.Compressed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptRejectsOversizedPlaintext(t *testing.T) {
	_, err := Encrypt(make([]byte, 100), 10, false)
	assert.Error(t, err)
}

func TestDecryptRejectsChecksumMismatch(t *testing.T) {
	enc, err := Encrypt([]byte("payload"), DefaultMaxDataSize, false)
	require.NoError(t, err)

	badSum := make([]byte, len(enc.Sha256))
	copy(badSum, enc.Sha256)
	badSum[0] ^= 0xFF

	_, err = Decrypt(enc.Ciphertext, badSum, enc.OtrKey, false)
	assert.Error(t, err)
}

type fakeUploader struct {
	stored map[string][]byte
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{stored: map[string][]byte{}}
}

func (f *fakeUploader) UploadAsset(ctx context.Context, body []byte, contentType string) (string, string, string, error) {
	key := "asset-1"
	f.stored[key] = body
	return key, "example.com", "tok", nil
}

func (f *fakeUploader) DownloadAsset(ctx context.Context, domain, key, token string) ([]byte, error) {
	body := f.stored[key]
	ciphertext, _, err := extractDataPart(body)
	return ciphertext, err
}

func TestServiceSendDownloadRoundTrip(t *testing.T) {
	uploader := newFakeUploader()
	svc := NewService(uploader, DefaultMaxDataSize)

	remote, err := svc.Send(context.Background(), []byte("asset payload"), false, "persistent", false)
	require.NoError(t, err)
	assert.NotEmpty(t, remote.Key)

	got, err := svc.Download(context.Background(), *remote)
	require.NoError(t, err)
	assert.Equal(t, []byte("asset payload"), got)
}
