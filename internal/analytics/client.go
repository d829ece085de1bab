// Package analytics reads monthly storage usage from the provider's GraphQL
// analytics API. It is read-only: totals lag real traffic by a few minutes and
// cannot be incremented.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"imguard/internal/domain"
	"imguard/internal/port"
)

// Error is the error class for analytics query failures.
var Error = errs.Class("analytics")

const operationsQuery = `query R2Operations($accountTag: string!, $start: Time!, $end: Time!, $bucket: string) {
  viewer {
    accounts(filter: { accountTag: $accountTag }) {
      r2OperationsAdaptiveGroups(
        limit: 10000
        filter: { datetime_geq: $start, datetime_leq: $end, bucketName: $bucket }
      ) {
        sum { requests }
        dimensions { actionType }
      }
    }
  }
}`

const storageQuery = `query R2Storage($accountTag: string!, $start: Time!, $end: Time!, $bucket: string) {
  viewer {
    accounts(filter: { accountTag: $accountTag }) {
      r2StorageAdaptiveGroups(
        limit: 1
        filter: { datetime_geq: $start, datetime_leq: $end, bucketName: $bucket }
        orderBy: [datetime_DESC]
      ) {
        max { payloadSize metadataSize objectCount }
        dimensions { datetime }
      }
    }
  }
}`

// Config holds the analytics API coordinates.
type Config struct {
	Endpoint  string
	AccountID string
	Token     string
	Bucket    string
}

// Client queries operation counts and storage size for the current period.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
	now        func() time.Time
}

var _ port.UsageSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces time.Now, which bounds the query window.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates an analytics client.
func New(cfg Config, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the strategy in snapshots and logs.
func (c *Client) Name() string {
	return string(domain.UsageStrategyAnalytics)
}

// Totals runs the operations and storage queries concurrently for period.
// Either query failing fails the whole read.
func (c *Client) Totals(ctx context.Context, period domain.Period) (domain.UsageTotals, error) {
	end := c.now().UTC()
	if !period.Contains(end) {
		end = period.End
	}
	vars := map[string]any{
		"accountTag": c.cfg.AccountID,
		"start":      period.Start.Format(time.RFC3339),
		"end":        end.Format(time.RFC3339),
	}
	if c.cfg.Bucket != "" {
		vars["bucket"] = c.cfg.Bucket
	}

	var totals domain.UsageTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, b, err := c.operations(gctx, vars)
		if err != nil {
			return err
		}
		totals.ClassAOps, totals.ClassBOps = a, b
		return nil
	})
	g.Go(func() error {
		size, err := c.storage(gctx, vars)
		if err != nil {
			return err
		}
		totals.StorageBytes = size
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.UsageTotals{}, err
	}
	return totals, nil
}

type operationsData struct {
	Viewer struct {
		Accounts []struct {
			Groups []struct {
				Sum struct {
					Requests int64 `json:"requests"`
				} `json:"sum"`
				Dimensions struct {
					ActionType string `json:"actionType"`
				} `json:"dimensions"`
			} `json:"r2OperationsAdaptiveGroups"`
		} `json:"accounts"`
	} `json:"viewer"`
}

func (c *Client) operations(ctx context.Context, vars map[string]any) (classA, classB int64, err error) {
	var data operationsData
	if err := c.query(ctx, operationsQuery, vars, &data); err != nil {
		return 0, 0, err
	}
	if len(data.Viewer.Accounts) == 0 {
		return 0, 0, Error.New("operations: no account data returned")
	}
	for _, group := range data.Viewer.Accounts[0].Groups {
		action := group.Dimensions.ActionType
		if !IsKnown(action) {
			c.log.Debug("unclassified storage action counted as class A", zap.String("action", action))
		}
		switch Classify(action) {
		case domain.DimensionClassB:
			classB += group.Sum.Requests
		default:
			classA += group.Sum.Requests
		}
	}
	return classA, classB, nil
}

type storageData struct {
	Viewer struct {
		Accounts []struct {
			Groups []struct {
				Max struct {
					PayloadSize  int64 `json:"payloadSize"`
					MetadataSize int64 `json:"metadataSize"`
					ObjectCount  int64 `json:"objectCount"`
				} `json:"max"`
				Dimensions struct {
					Datetime string `json:"datetime"`
				} `json:"dimensions"`
			} `json:"r2StorageAdaptiveGroups"`
		} `json:"accounts"`
	} `json:"viewer"`
}

// storage returns the most recent storage data point. A bucket with no data
// point yet this period reads as empty.
func (c *Client) storage(ctx context.Context, vars map[string]any) (int64, error) {
	var data storageData
	if err := c.query(ctx, storageQuery, vars, &data); err != nil {
		return 0, err
	}
	if len(data.Viewer.Accounts) == 0 {
		return 0, Error.New("storage: no account data returned")
	}
	groups := data.Viewer.Accounts[0].Groups
	if len(groups) == 0 {
		return 0, nil
	}
	latest := groups[0].Max
	return latest.PayloadSize + latest.MetadataSize, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return Error.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Error.Wrap(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Error.Wrap(err)
	}
	if resp.StatusCode != http.StatusOK {
		return Error.New("unexpected status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var gr graphqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return Error.New("decoding response: %v", err)
	}
	if len(gr.Errors) > 0 {
		return Error.New("query error: %s", gr.Errors[0].Message)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return Error.New("empty response data")
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return Error.New("decoding data: %v", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}
