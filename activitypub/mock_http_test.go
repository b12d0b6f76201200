package activitypub

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"sync"
)

// mockNetworkError simulates a transport-level failure (DNS, connection
// refused, timeout) as distinct from a non-2xx HTTP response.
type mockNetworkError struct {
	message string
}

func (e *mockNetworkError) Error() string { return e.message }

// MockHTTPClient is an in-memory HTTPClient for exercising actor fetching
// and activity delivery without a real network call. Responses are looked
// up by exact request URL; unmatched requests get a canned 404.
type MockHTTPClient struct {
	mu sync.Mutex

	Responses map[string]*http.Response
	Errors    map[string]error
	Requests  []*http.Request
}

// NewMockHTTPClient creates an empty mock client.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		Responses: make(map[string]*http.Response),
		Errors:    make(map[string]error),
	}
}

// SetResponse registers a canned status/body for url. A nil body produces
// an empty response body.
func (m *MockHTTPClient) SetResponse(url string, status int, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if body == nil {
		body = []byte{}
	}
	m.Responses[url] = &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// SetError registers a transport-level error to return for url instead of
// a response.
func (m *MockHTTPClient) SetError(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[url] = err
}

// Do records req and returns the canned response or error registered for
// its URL, or a bare 404 if nothing was registered.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	url := req.URL.String()
	if err, ok := m.Errors[url]; ok {
		return nil, err
	}
	if resp, ok := m.Responses[url]; ok {
		return resp, nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Header:     make(http.Header),
	}, nil
}

// TestKeyPair bundles an RSA key with its PEM encodings for test fixtures.
type TestKeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	PrivatePEM string
	PublicPEM  string
}

// GenerateTestKeyPair generates an RSA key pair plus its PKCS#8/PKIX PEM
// encodings, matching the format new accounts are issued in production.
func GenerateTestKeyPair() (*TestKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	pkcs8Bytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8Bytes})

	pkixBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkixBytes})

	return &TestKeyPair{
		PrivateKey: key,
		PublicKey:  &key.PublicKey,
		PrivatePEM: string(privatePEM),
		PublicPEM:  string(publicPEM),
	}, nil
}
