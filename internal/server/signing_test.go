package server

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/tlegate/internal/crypto"
)

func TestHandleBatchSignsManifest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})

	tmp := t.TempDir()
	srv, err := NewServer(Options{StorageDir: tmp, SigningKey: keyPEM})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	ts := httptest.NewServer(NewRouter(srv))
	defer ts.Close()
	env := &testEnv{srv: srv, ts: ts, tmp: tmp}

	resp, body := env.post(t, "/batch", "text/plain", strings.Join([]string{issLine1, issLine2}, "\n"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var out batchSummary
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Signed || len(out.Artifacts) != 5 {
		t.Fatalf("batch = %+v", out)
	}

	paths := map[string]string{}
	for _, a := range out.Artifacts {
		if a.Name == "manifest.json" || a.Name == "manifest.jws" {
			paths[a.Name] = filepath.Join(tmp, a.Name)
			downloadArtifact(t, ts.URL, a.ID, paths[a.Name])
		}
	}
	manifestBytes, err := os.ReadFile(paths["manifest.json"])
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	sig, err := crypto.LoadJWS(paths["manifest.jws"])
	if err != nil {
		t.Fatalf("LoadJWS: %v", err)
	}
	if err := crypto.VerifyDetachedJWS(sig, manifestBytes, pubPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}
}

func TestNewServerWithoutSigningKey(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.post(t, "/batch", "text/plain", issLine1+"\n"+issLine2)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "manifest.jws") {
		t.Fatalf("unsigned server published a signature: %s", body)
	}
}
