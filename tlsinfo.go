package irc

import (
	"crypto/tls"
	"crypto/x509"
	"strconv"
	"strings"
)

// describeTLS builds the Secured notification for a completed handshake.
// local is the client certificate the server accepted, nil when none.
// Opened fields are filled in by the caller.
func describeTLS(cs tls.ConnectionState, local *tls.Certificate) *Secured {
	suite := describeCipherSuite(cs.CipherSuite)

	secured := &Secured{
		Protocol:             tls.VersionName(cs.Version),
		CipherAlgorithm:      suite.cipher,
		CipherStrength:       suite.cipherBits,
		HashAlgorithm:        suite.hash,
		HashStrength:         suite.hashBits,
		KeyExchangeAlgorithm: suite.keyExchange,
		IsEncrypted:          cs.HandshakeComplete,
		IsSigned:             cs.HandshakeComplete,
		IsAuthenticated:      cs.HandshakeComplete && len(cs.PeerCertificates) > 0,
	}

	if len(cs.PeerCertificates) > 0 {
		secured.RemoteCertificate = cs.PeerCertificates[0].Subject.String()
	}

	if local != nil {
		secured.LocalCertificate = certificateSubject(local)
		secured.IsMutuallyAuthenticated = secured.IsAuthenticated
	}

	return secured
}

func certificateSubject(cert *tls.Certificate) string {
	if cert.Leaf != nil {
		return cert.Leaf.Subject.String()
	}
	if len(cert.Certificate) == 0 {
		return ""
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return ""
	}
	return leaf.Subject.String()
}

type cipherSuite struct {
	keyExchange string
	cipher      string
	cipherBits  int
	hash        string
	hashBits    int
}

// describeCipherSuite splits a suite name such as
// TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 or TLS_AES_256_GCM_SHA384 into its
// parts. TLS 1.3 suites always use ephemeral elliptic-curve key exchange in
// crypto/tls.
func describeCipherSuite(id uint16) cipherSuite {
	name := strings.TrimPrefix(tls.CipherSuiteName(id), "TLS_")

	var suite cipherSuite
	keyExchange, rest, ok := strings.Cut(name, "_WITH_")
	if ok {
		suite.keyExchange = keyExchange
	} else {
		suite.keyExchange = "ECDHE"
		rest = name
	}

	i := strings.LastIndexByte(rest, '_')
	if i < 0 {
		suite.cipher = rest
		return suite
	}
	suite.cipher, suite.hash = rest[:i], rest[i+1:]
	suite.cipherBits = cipherBits(suite.cipher)
	suite.hashBits = hashBits(suite.hash)

	return suite
}

func cipherBits(cipher string) int {
	switch {
	case strings.HasPrefix(cipher, "CHACHA20"):
		return 256
	case strings.HasPrefix(cipher, "3DES"):
		return 168
	}
	for _, part := range strings.Split(cipher, "_") {
		if bits, err := strconv.Atoi(part); err == nil {
			return bits
		}
	}
	return 0
}

func hashBits(hash string) int {
	switch hash {
	case "SHA":
		return 160
	case "SHA256":
		return 256
	case "SHA384":
		return 384
	default:
		return 0
	}
}
