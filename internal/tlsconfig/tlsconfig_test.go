package tlsconfig_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/storyworks/analyzerd/internal/tlsconfig"
)

// writeTestCerts generates a self-signed certificate usable both as the CA
// and as the leaf, and writes the PEM files into dir.
func writeTestCerts(t *testing.T, dir string) (certPath, keyPath, caPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	certPath = filepath.Join(dir, "server.crt")
	keyPath = filepath.Join(dir, "server.key")
	caPath = filepath.Join(dir, "ca.crt")

	for path, data := range map[string][]byte{
		certPath: certPEM,
		keyPath:  keyPEM,
		caPath:   certPEM,
	} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	return certPath, keyPath, caPath
}

func TestSetupTLS(t *testing.T) {
	t.Parallel()

	certPath, keyPath, caPath := writeTestCerts(t, t.TempDir())

	t.Run("Test server TLS config", func(t *testing.T) {
		t.Parallel()

		tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   certPath,
			KeyPath:    keyPath,
			CACertPath: caPath,
			Server:     true,
		})
		if err != nil {
			t.Fatalf("expected TLS setup not to return error: got '%v'", err)
		}

		if tlsConfig.MinVersion != tls.VersionTLS13 {
			t.Errorf(
				"expected min TLS version: got '%v', want '%v'",
				tlsConfig.MinVersion,
				tls.VersionTLS13,
			)
		}

		if tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
			t.Errorf(
				"expected client auth: got '%v', want '%v'",
				tlsConfig.ClientAuth,
				tls.RequireAndVerifyClientCert,
			)
		}

		if tlsConfig.ClientCAs == nil {
			t.Error("expected client CAs to be set")
		}
	})

	t.Run("Test client TLS config", func(t *testing.T) {
		t.Parallel()

		tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   certPath,
			KeyPath:    keyPath,
			CACertPath: caPath,
			Server:     false,
			ServerName: "localhost",
		})
		if err != nil {
			t.Fatalf("expected TLS setup not to return error: got '%v'", err)
		}

		if tlsConfig.ServerName != "localhost" {
			t.Errorf(
				"expected server name: got '%s', want 'localhost'",
				tlsConfig.ServerName,
			)
		}

		if tlsConfig.RootCAs == nil {
			t.Error("expected root CAs to be set")
		}
	})

	t.Run("Test missing key pair", func(t *testing.T) {
		t.Parallel()

		if _, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   filepath.Join(t.TempDir(), "missing.crt"),
			KeyPath:    keyPath,
			CACertPath: caPath,
		}); err == nil {
			t.Error("expected to receive error")
		}
	})

	t.Run("Test malformed CA certificate", func(t *testing.T) {
		t.Parallel()

		badCA := filepath.Join(t.TempDir(), "ca.crt")
		if err := os.WriteFile(badCA, []byte("not a pem"), 0o600); err != nil {
			t.Fatalf("write bad CA: %v", err)
		}

		if _, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   certPath,
			KeyPath:    keyPath,
			CACertPath: badCA,
		}); err == nil {
			t.Error("expected to receive error")
		}
	})
}
