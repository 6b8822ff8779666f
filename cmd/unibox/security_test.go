package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyIngestSignature_ValidSignature(t *testing.T) {
	secret := "test-ingest-secret"
	body := []byte(`{"channel_name": "whatsapp", "content": "hola"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader(body))
	req.Header.Set(ingestSignatureHeader, signBody(secret, body))

	got, err := verifyIngestSignature(req, secret)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestVerifyIngestSignature_PrefixedSignature(t *testing.T) {
	secret := "test-ingest-secret"
	body := []byte(`{"channel_name": "gmail", "content": "consulta"}`)

	for _, prefix := range []string{"sha256=", "SHA256="} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader(body))
		req.Header.Set(ingestSignatureHeader, prefix+signBody(secret, body))

		got, err := verifyIngestSignature(req, secret)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	}
}

func TestVerifyIngestSignature_InvalidPrefix(t *testing.T) {
	secret := "test-ingest-secret"
	body := []byte(`{}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader(body))
	req.Header.Set(ingestSignatureHeader, "md5="+signBody(secret, body))

	_, err := verifyIngestSignature(req, secret)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signature format")
}

func TestVerifyIngestSignature_Mismatch(t *testing.T) {
	secret := "test-ingest-secret"
	body := []byte(`{"channel_name": "whatsapp"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader(body))
	req.Header.Set(ingestSignatureHeader, signBody("a-different-secret", body))

	_, err := verifyIngestSignature(req, secret)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestVerifyIngestSignature_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader([]byte(`{}`)))

	_, err := verifyIngestSignature(req, "test-ingest-secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing signature header")
}

func TestVerifyIngestSignature_TamperedBody(t *testing.T) {
	secret := "test-ingest-secret"
	original := []byte(`{"content": "pedido de 3 unidades"}`)
	tampered := []byte(`{"content": "pedido de 300 unidades"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader(tampered))
	req.Header.Set(ingestSignatureHeader, signBody(secret, original))

	_, err := verifyIngestSignature(req, secret)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestVerifyIngestSignature_EmptySecretDevMode(t *testing.T) {
	t.Setenv("UNIBOX_ENV", "")

	body := []byte(`{"channel_name": "mercadolibre"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader(body))

	got, err := verifyIngestSignature(req, "")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestVerifyIngestSignature_EmptySecretProduction(t *testing.T) {
	t.Setenv("UNIBOX_ENV", "production")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader([]byte(`{}`)))

	_, err := verifyIngestSignature(req, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest secret is required in production mode")
}

func TestVerifyIngestSignature_BodyRestored(t *testing.T) {
	secret := "test-ingest-secret"
	body := []byte(`{"channel_name": "instagram", "content": "dm"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", bytes.NewReader(body))
	req.Header.Set(ingestSignatureHeader, signBody(secret, body))

	_, err := verifyIngestSignature(req, secret)
	require.NoError(t, err)

	// The handler decodes from r.Body after verification, so the stream
	// must be readable again.
	reread, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, reread)
}
