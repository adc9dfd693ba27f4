package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"onchainsummer/internal/domain/article"
)

// DefaultGateway is the public Arweave gateway serving GraphQL and transaction data.
const DefaultGateway = "https://arweave.net"

// maxArticleBytes caps how much of a transaction body is read.
const maxArticleBytes = 4 << 20

// ErrUnexpectedStatus is returned when the gateway answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("content gateway returned unexpected status")

// transactionsQuery finds the newest Mirror publication carrying a content digest.
const transactionsQuery = `query GetMirrorTransactions($digest: String!) {
  transactions(
    tags: [
      { name: "Original-Content-Digest", values: [$digest] }
      { name: "App-Name", values: ["MirrorXYZ"] }
    ]
    sort: HEIGHT_DESC
    first: 1
  ) {
    edges { node { id } }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type transactionsResponse struct {
	Data struct {
		Transactions struct {
			Edges []struct {
				Node struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"transactions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type mirrorEntry struct {
	Content struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"content"`
}

// ArweaveClient fetches Mirror articles through an Arweave gateway.
type ArweaveClient struct {
	gateway    string
	httpClient *http.Client
	now        func() time.Time
}

var _ Fetcher = (*ArweaveClient)(nil)

// NewArweaveClient creates a client for gateway with a per-request timeout.
// An empty gateway uses DefaultGateway.
func NewArweaveClient(gateway string, timeout time.Duration) *ArweaveClient {
	gateway = strings.TrimRight(strings.TrimSpace(gateway), "/")
	if gateway == "" {
		gateway = DefaultGateway
	}
	return &ArweaveClient{
		gateway:    gateway,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Fetch resolves digest to its newest transaction and decodes the article stored there.
// PRE: digest is non-empty
// POST: ok=false with nil error when no transaction or an empty body is found
func (c *ArweaveClient) Fetch(ctx context.Context, digest string) (article.Article, bool, error) {
	txID, err := c.lookupTransaction(ctx, digest)
	if err != nil {
		return article.Article{}, false, err
	}
	if txID == "" {
		return article.Article{}, false, nil
	}

	entry, err := c.getEntry(ctx, txID)
	if err != nil {
		return article.Article{}, false, err
	}

	a := article.Article{
		Digest:        digest,
		TransactionID: txID,
		Title:         entry.Content.Title,
		Body:          entry.Content.Body,
		FetchedAt:     c.now(),
	}
	if a.Validate() != nil {
		return article.Article{}, false, nil
	}
	return a, true, nil
}

func (c *ArweaveClient) lookupTransaction(ctx context.Context, digest string) (string, error) {
	payload, err := json.Marshal(graphQLRequest{
		Query:     transactionsQuery,
		Variables: map[string]any{"digest": digest},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gateway+"/graphql", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out transactionsResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("lookup digest %s: %w", digest, err)
	}
	if len(out.Errors) > 0 {
		return "", fmt.Errorf("lookup digest %s: graphql: %s", digest, out.Errors[0].Message)
	}
	edges := out.Data.Transactions.Edges
	if len(edges) == 0 {
		return "", nil
	}
	return edges[0].Node.ID, nil
}

func (c *ArweaveClient) getEntry(ctx context.Context, txID string) (mirrorEntry, error) {
	var entry mirrorEntry
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gateway+"/"+txID, nil)
	if err != nil {
		return entry, fmt.Errorf("failed to create transaction request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if err := c.do(req, &entry); err != nil {
		return entry, fmt.Errorf("get transaction %s: %w", txID, err)
	}
	return entry, nil
}

func (c *ArweaveClient) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxArticleBytes)).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
