package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func ecdsaPEMPair(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private: %v", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	return string(privPEM), string(pubPEM)
}

func TestLoadKeyPair_InlinePEM(t *testing.T) {
	privPEM, pubPEM := ecdsaPEMPair(t)
	signer, pub, err := LoadKeyPair(privPEM, pubPEM)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	if signer == nil || pub == nil {
		t.Fatal("nil key returned")
	}
	if _, ok := pub.(*ecdsa.PublicKey); !ok {
		t.Errorf("public key type = %T, want *ecdsa.PublicKey", pub)
	}
}

func TestParsePrivateKey_RSA_PKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	signer, err := ParsePrivateKey(string(privPEM))
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if _, ok := signer.Public().(*rsa.PublicKey); !ok {
		t.Errorf("public key type = %T, want *rsa.PublicKey", signer.Public())
	}
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	if _, err := ParsePrivateKey(""); err == nil {
		t.Error("empty input: want error")
	}
	if _, err := ParsePrivateKey("-----BEGIN GARBAGE-----\nzzzz\n-----END GARBAGE-----"); err == nil {
		t.Error("garbage PEM: want error")
	}
}

func TestParsePublicKey_Invalid(t *testing.T) {
	privPEM, _ := ecdsaPEMPair(t)
	if _, err := ParsePublicKey(privPEM); err == nil {
		t.Error("private PEM as public key: want error")
	}
}
