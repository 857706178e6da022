package email

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// A single self-signed certificate serves every mock server in the
// package; clients trust it through RootCAs instead of skipping
// verification.
var (
	testCertOnce sync.Once
	testCert     tls.Certificate
	testCertPool *x509.CertPool
)

func loadTestCert() {
	testCertOnce.Do(func() {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			panic(err)
		}
		tmpl := &x509.Certificate{
			SerialNumber:          big.NewInt(1),
			DNSNames:              []string{"localhost"},
			IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
			NotBefore:             time.Now().Add(-time.Hour),
			NotAfter:              time.Now().Add(24 * time.Hour),
			IsCA:                  true,
			BasicConstraintsValid: true,
			KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
			ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
		if err != nil {
			panic(err)
		}
		leaf, err := x509.ParseCertificate(der)
		if err != nil {
			panic(err)
		}
		testCert = tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
		testCertPool = x509.NewCertPool()
		testCertPool.AddCert(leaf)
	})
}

// serverTLS is the TLS config of the mock POP3, IMAP and SMTP servers.
func serverTLS() *tls.Config {
	loadTestCert()
	return &tls.Config{Certificates: []tls.Certificate{testCert}}
}

// clientTLS trusts the mock servers' certificate.
func clientTLS() *tls.Config {
	loadTestCert()
	return &tls.Config{RootCAs: testCertPool}
}

// splitHostPort splits "host:port" into (host, int port).
func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

// testMail builds a single-part message with the fixed envelope headers
// every fixture shares.
func testMail(subject, contentType, body string) string {
	return "MIME-Version: 1.0\r\n" +
		"From: sender@example.com\r\n" +
		"To: rcpt@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Mon, 10 Feb 2026 08:00:00 +0000\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"\r\n" +
		body
}

// testPart is one body part; header holds its raw header lines and may be
// empty for a part without Content-Type.
func testPart(header, body string) string {
	return header + "\r\n" + body + "\r\n"
}

// testMultipartMail joins parts under boundary.
func testMultipartMail(subject, subtype, boundary string, parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--" + boundary + "\r\n" + p)
	}
	b.WriteString("--" + boundary + "--\r\n")
	return testMail(subject, "multipart/"+subtype+"; boundary=\""+boundary+"\"", b.String())
}

func testMailWithSubject(subject string) string {
	return testMail(subject, "text/plain; charset=utf-8", "Hello, World!")
}

var (
	testMailRFC822 = testMailWithSubject("Test Subject")

	// The octet-stream attachment is the last typed part.
	testMailMultipart = testMultipartMail("Multipart Test", "mixed", "MIXED",
		testPart("Content-Type: text/plain; charset=utf-8\r\n", "Plain text body"),
		testPart("Content-Type: application/octet-stream\r\n"+
			"Content-Disposition: attachment; filename=\"test.bin\"\r\n", "BINARYDATA"),
	)

	// An alternative part nested before an image attachment.
	testMailNested = testMultipartMail("Nested Multipart", "mixed", "OUTER",
		testPart("Content-Type: "+`multipart/alternative; boundary="INNER"`+"\r\n",
			"--INNER\r\n"+
				testPart("Content-Type: text/plain; charset=utf-8\r\n", "Plain version")+
				"--INNER\r\n"+
				testPart("Content-Type: text/html; charset=utf-8\r\n", "<p>HTML version</p>")+
				"--INNER--"),
		testPart("Content-Type: image/png\r\n"+
			"Content-Disposition: attachment; filename=\"image.png\"\r\n", "PNG-DATA"),
	)

	// Typed A, untyped B, typed C: the body is C.
	testMailTieBreak = testMultipartMail("Tie Break", "mixed", "TIE",
		testPart("Content-Type: text/plain\r\n", "A"),
		testPart("", "B"),
		testPart("Content-Type: text/plain\r\n", "C"),
	)

	// Body lines that start with "." are byte-stuffed on the POP3 wire.
	testMailDotLines = testMail("Dots", "text/plain; charset=utf-8",
		"line one\r\n.hidden\r\n..double\r\n.\r\nend")

	// A single body line longer than any default line buffer.
	testMailLongLine = testMail("Long", "text/html; charset=utf-8",
		"<p>"+strings.Repeat("x", 5000)+"</p>")

	// A Latin-1 body that must reach the record as UTF-8.
	testMailLatin1 = testMail("Latin-1", "text/plain; charset=iso-8859-1", "caf\xe9")
)
