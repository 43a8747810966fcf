// Package fetch downloads installer scripts over HTTPS.
//
// Installer hosts (source forges, raw-content CDNs) fail transiently often
// enough that a single GET is not good enough, so downloads go through a
// retrying client. The fetched bytes are held in memory and digested so
// callers can check them against a recipe's content pin before anything
// runs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docker/go-units"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/opencontainers/go-digest"

	"github.com/mossrock-dev/kiln/internal/model"
)

// MaxScriptSize caps how many bytes a fetched installer may occupy.
// Installer scripts are text; anything past this limit is a wrong URL,
// not a big script.
const MaxScriptSize = 8 * units.MiB

// Result holds a fetched installer script and its content digest.
type Result struct {
	// URL is the address the script was fetched from.
	URL string

	// Body is the raw script content.
	Body []byte

	// Digest is the canonical sha256 digest of Body.
	Digest digest.Digest
}

// Matches reports whether the fetched content matches a hex-encoded
// sha256 pin. The comparison is case-insensitive on the pin side.
func (r *Result) Matches(pin string) bool {
	want := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(pin))
	return r.Digest == want
}

// Fetcher downloads installer scripts with automatic retries on
// connection errors and server-side failures.
type Fetcher struct {
	client *retryablehttp.Client
}

// NewFetcher returns a Fetcher with the standard retry policy:
// up to 4 retries with exponential backoff.
func NewFetcher() *Fetcher {
	c := retryablehttp.NewClient()
	c.RetryMax = 4
	// The default logger writes to stderr on every attempt; the CLI
	// reports outcomes itself.
	c.Logger = nil
	return &Fetcher{client: c}
}

// Fetch downloads the script at rawURL and returns its bytes together
// with their digest.
//
// Responses other than 200 OK fail the fetch (retries for 5xx and
// connection errors happen inside the client first). Bodies larger than
// MaxScriptSize and empty bodies are rejected.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("invalid installer URL %q", rawURL), err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("fetching installer from %s", rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewCLIError(model.ExitFetchFailed,
			fmt.Sprintf("fetching installer from %s: unexpected status %s", rawURL, resp.Status))
	}

	// Read one byte past the cap so oversized bodies are detectable
	// without buffering them whole.
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxScriptSize+1))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("reading installer from %s", rawURL), err)
	}
	if len(body) > MaxScriptSize {
		return nil, model.NewCLIError(model.ExitFetchFailed,
			fmt.Sprintf("installer from %s exceeds the %s size limit",
				rawURL, units.BytesSize(float64(MaxScriptSize))))
	}
	if len(body) == 0 {
		return nil, model.NewCLIError(model.ExitFetchFailed,
			fmt.Sprintf("installer from %s is empty", rawURL))
	}

	return &Result{
		URL:    rawURL,
		Body:   body,
		Digest: digest.FromBytes(body),
	}, nil
}
