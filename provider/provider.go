// Package provider defines the contract for fetching blob contents from an
// external source, plus a null implementation for offline operation and an
// HTTP implementation for the common case of a remote blob service.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/socket-patch/socket-patch/digest"
)

// ErrNotAvailable is returned when the provider does not have the
// requested blob (the remote responded 404, or no provider is configured).
// It is not an error condition for the caller to log loudly: it is simply
// "try something else" (abort the operation, or continue without it).
var ErrNotAvailable = errors.New("provider: blob not available")

// Provider fetches blob content by digest from an external source. It must
// not decode or transform the body in any way: the bytes returned are
// handed directly to the blob store, which will reject them if they do not
// hash to the requested digest.
type Provider interface {
	FetchBlob(ctx context.Context, d digest.Digest) ([]byte, error)
}

// Null never has anything: every fetch returns ErrNotAvailable without
// performing any I/O. It is the provider used in offline mode.
type Null struct{}

// FetchBlob implements Provider.
func (Null) FetchBlob(ctx context.Context, d digest.Digest) ([]byte, error) {
	return nil, ErrNotAvailable
}

// HTTP fetches blobs from a remote service at BaseURL + "/" + digest. A
// 404 response maps to ErrNotAvailable; any other non-2xx status is a
// TransportError.
type HTTP struct {
	BaseURL string
	Client  *http.Client
}

// TransportError wraps a non-2xx, non-404 HTTP response.
type TransportError struct {
	Digest     digest.Digest
	StatusCode int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider: fetching %s: unexpected status %d", e.Digest, e.StatusCode)
}

// FetchBlob implements Provider.
func (h HTTP) FetchBlob(ctx context.Context, d digest.Digest) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"/"+string(d), nil)
	if err != nil {
		return nil, fmt.Errorf("provider: building request for %s: %w", d, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: fetching %s: %w", d, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotAvailable
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Digest: d, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider: reading body for %s: %w", d, err)
	}
	return body, nil
}
