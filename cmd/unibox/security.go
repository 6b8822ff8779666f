package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const ingestSignatureHeader = "X-Ingest-Hmac"

// verifyIngestSignature authenticates an adapter post against the shared
// ingest secret and hands back the raw body with r.Body reset so the handler
// can decode it. The signature is an HMAC-SHA256 of the body, hex encoded.
func verifyIngestSignature(r *http.Request, secretKey string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if secretKey == "" {
		if os.Getenv("UNIBOX_ENV") == "production" {
			return nil, fmt.Errorf("ingest secret is required in production mode")
		}
		return body, nil
	}

	provided, err := signatureFromHeader(r)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(provided)) {
		return nil, fmt.Errorf("signature mismatch")
	}
	return body, nil
}

// signatureFromHeader extracts the hex digest, accepting both the bare form
// and the "sha256=<hex>" form some adapter frameworks produce.
func signatureFromHeader(r *http.Request) (string, error) {
	header := r.Header.Get(ingestSignatureHeader)
	if header == "" {
		return "", fmt.Errorf("missing signature header: %s", ingestSignatureHeader)
	}

	scheme, digest, found := strings.Cut(header, "=")
	if !found {
		return header, nil
	}
	if !strings.EqualFold(scheme, "sha256") {
		return "", fmt.Errorf("invalid signature format in header %s", ingestSignatureHeader)
	}
	return digest, nil
}
