// Package crypto signs manifests as compact-serialisable RS256 JWS objects.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	algRS256    = "RS256"
	manifestTyp = "tlegate-manifest+jws"
)

var (
	ErrBadSignature   = errors.New("jws: signature does not verify")
	ErrPayloadChanged = errors.New("jws: payload does not match signed content")
)

type JWS struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Compact renders j as header.payload.signature.
func (j JWS) Compact() string {
	return j.Protected + "." + j.Payload + "." + j.Signature
}

func SignDetachedJWS(payload []byte, privateKeyPEM []byte) (JWS, error) {
	hb, err := json.Marshal(header{Alg: algRS256, Typ: manifestTyp})
	if err != nil {
		return JWS{}, err
	}
	protected := base64.RawURLEncoding.EncodeToString(hb)
	pl := base64.RawURLEncoding.EncodeToString(payload)

	priv, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return JWS{}, err
	}
	h := sha256.Sum256([]byte(protected + "." + pl))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, h[:])
	if err != nil {
		return JWS{}, err
	}
	return JWS{
		Protected: protected,
		Payload:   pl,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}, nil
}

// VerifyDetachedJWS checks j against payload using the RSA key in
// publicPEM, which may hold a certificate or a PUBLIC KEY block.
func VerifyDetachedJWS(j JWS, payload, publicPEM []byte) error {
	hb, err := base64.RawURLEncoding.DecodeString(j.Protected)
	if err != nil {
		return fmt.Errorf("jws: protected header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return fmt.Errorf("jws: protected header: %w", err)
	}
	if hdr.Alg != algRS256 {
		return fmt.Errorf("jws: unsupported alg %q", hdr.Alg)
	}
	if j.Payload != base64.RawURLEncoding.EncodeToString(payload) {
		return ErrPayloadChanged
	}
	sig, err := base64.RawURLEncoding.DecodeString(j.Signature)
	if err != nil {
		return fmt.Errorf("jws: signature: %w", err)
	}
	pub, err := parseRSAPublicKey(publicPEM)
	if err != nil {
		return err
	}
	h := sha256.Sum256([]byte(j.Protected + "." + j.Payload))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

// SaveJWS writes j as JSON next to the manifest it signs.
func SaveJWS(j JWS, path string) error {
	b, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadJWS(path string) (JWS, error) {
	var j JWS
	b, err := os.ReadFile(path)
	if err != nil {
		return j, err
	}
	err = json.Unmarshal(b, &j)
	return j, err
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", key)
	}
	return rsaKey, nil
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block")
	}
	var key any
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		key = cert.PublicKey
	case "RSA PUBLIC KEY":
		k, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key = k
	default:
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key = k
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", key)
	}
	return pub, nil
}
