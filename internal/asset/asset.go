// Package asset implements sendAsset/downloadAsset (spec §4.5):
// AES-256-GCM encryption, optional zstd pre-compression, SHA-256
// checksum over ciphertext, and the backend's multipart upload
// format.
package asset

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/klauspost/compress/zstd"

	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
)

// DefaultMaxDataSize is the plaintext size cap NewService falls back
// to when given no positive maxDataSize (spec's configured
// MAX_DATA_SIZE).
const DefaultMaxDataSize = 25 * 1024 * 1024

// Uploader is the subset of internal/backend.Client asset upload/
// download needs.
type Uploader interface {
	UploadAsset(ctx context.Context, body []byte, contentType string) (assetKey, assetDomain, assetToken string, err error)
	DownloadAsset(ctx context.Context, domain, key, token string) ([]byte, error)
}

// EncryptedAsset is the result of Send's local encryption step,
// before upload.
type EncryptedAsset struct {
	Ciphertext  []byte
	OtrKey      []byte
	Sha256      []byte
	Compressed  bool
}

// Encrypt caps plaintext at maxDataSize, optionally zstd-compresses
// it, then encrypts with a fresh AES-256-GCM key. Sha256 is computed
// over the ciphertext (legacy "md5" field name on the wire, per
// spec §4.5).
func Encrypt(plaintext []byte, maxDataSize int64, compress bool) (*EncryptedAsset, error) {
	if int64(len(plaintext)) > maxDataSize {
		return nil, sdkerr.New(sdkerr.InvalidParameter, fmt.Sprintf("asset too large: %d > %d", len(plaintext), maxDataSize))
	}

	payload := plaintext
	compressed := false
	if compress {
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("asset: create zstd writer: %w", err)
		}
		if _, err := w.Write(plaintext); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("asset: compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("asset: close zstd writer: %w", err)
		}
		if buf.Len() < len(plaintext) {
			payload = buf.Bytes()
			compressed = true
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("asset: generate key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("asset: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("asset: create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("asset: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, payload, nil)

	sum := sha256.Sum256(ciphertext)

	return &EncryptedAsset{
		Ciphertext: ciphertext,
		OtrKey:     key,
		Sha256:     sum[:],
		Compressed: compressed,
	}, nil
}

// Decrypt verifies the downloaded ciphertext's SHA-256 against
// wantSha256 (InvalidParameter on mismatch, P9), then decrypts with
// otrKey. Pass compressed=true if the plaintext was zstd-compressed
// before encryption.
func Decrypt(ciphertext, wantSha256, otrKey []byte, compressed bool) ([]byte, error) {
	got := sha256.Sum256(ciphertext)
	if !bytes.Equal(got[:], wantSha256) {
		return nil, sdkerr.New(sdkerr.InvalidParameter, "asset checksum mismatch")
	}

	block, err := aes.NewCipher(otrKey)
	if err != nil {
		return nil, fmt.Errorf("asset: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("asset: create gcm: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, sdkerr.New(sdkerr.InvalidParameter, "asset ciphertext too short")
	}
	nonce, encrypted := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	payload, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.InvalidParameter, "asset decrypt failed", err)
	}

	if !compressed {
		return payload, nil
	}

	r, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("asset: create zstd reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("asset: decompress: %w", err)
	}
	return out, nil
}

// BuildMultipart builds the backend's multipart upload body: a
// "frontier" boundary with two parts (JSON metadata, then the
// ciphertext octet-stream with a Content-MD5 header carrying the
// base64 sha256 — the backend's legacy field name for this header).
func BuildMultipart(metadata interface{}, ciphertext []byte, sha256B64 string) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary("frontier"); err != nil {
		return nil, "", fmt.Errorf("asset: set boundary: %w", err)
	}

	metaPart, err := w.CreatePart(map[string][]string{
		"Content-Type": {"application/json; charset=utf-8"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("asset: create metadata part: %w", err)
	}
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return nil, "", fmt.Errorf("asset: encode metadata: %w", err)
	}
	if _, err := metaPart.Write(metaBytes); err != nil {
		return nil, "", fmt.Errorf("asset: write metadata part: %w", err)
	}

	dataPart, err := w.CreatePart(map[string][]string{
		"Content-Type": {"application/octet-stream"},
		"Content-MD5":  {sha256B64},
	})
	if err != nil {
		return nil, "", fmt.Errorf("asset: create data part: %w", err)
	}
	if _, err := dataPart.Write(ciphertext); err != nil {
		return nil, "", fmt.Errorf("asset: write data part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("asset: close multipart writer: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// UploadMetadata is the JSON part of the multipart asset upload body.
type UploadMetadata struct {
	Public    bool   `json:"public"`
	Retention string `json:"retention"`
}

// Remote describes an uploaded asset's location, handed back to the
// caller so it can be referenced from an Asset wire message.
type Remote struct {
	Key      string
	Domain   string
	Token    string
	OtrKey   []byte
	Sha256   []byte
	Compress bool
}

// Service glues Encrypt/Decrypt to an Uploader, giving appmanager a
// single Send/Download call per asset.
type Service struct {
	Uploader    Uploader
	MaxDataSize int64
}

func NewService(u Uploader, maxDataSize int64) *Service {
	if maxDataSize <= 0 {
		maxDataSize = DefaultMaxDataSize
	}
	return &Service{Uploader: u, MaxDataSize: maxDataSize}
}

// Send encrypts plaintext and uploads it, returning where it landed.
func (s *Service) Send(ctx context.Context, plaintext []byte, public bool, retention string, compress bool) (*Remote, error) {
	enc, err := Encrypt(plaintext, s.MaxDataSize, compress)
	if err != nil {
		return nil, err
	}

	body, contentType, err := BuildMultipart(
		UploadMetadata{Public: public, Retention: retention},
		enc.Ciphertext,
		encodeBase64(enc.Sha256),
	)
	if err != nil {
		return nil, err
	}

	key, domain, token, err := s.Uploader.UploadAsset(ctx, body, contentType)
	if err != nil {
		return nil, err
	}

	return &Remote{
		Key:      key,
		Domain:   domain,
		Token:    token,
		OtrKey:   enc.OtrKey,
		Sha256:   enc.Sha256,
		Compress: enc.Compressed,
	}, nil
}

// Download fetches and decrypts an asset previously returned by Send.
func (s *Service) Download(ctx context.Context, r Remote) ([]byte, error) {
	ciphertext, err := s.Uploader.DownloadAsset(ctx, r.Domain, r.Key, r.Token)
	if err != nil {
		return nil, err
	}
	return Decrypt(ciphertext, r.Sha256, r.OtrKey, r.Compress)
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
