// Package argo fetches Argo float profiles for a region from an ERDDAP server.
//
// For each configured year the client first queries the configured months one
// window at a time, then falls back to the whole year, and finally, when
// enabled, to generated sample profiles.
package argo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

const (
	providerName = "argo-erddap"
	variables    = "platform_number,cycle_number,time,latitude,longitude,pres,temp,psal"
)

// Options configures a Client
type Options struct {
	BaseURL           string
	DatasetID         string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelayBase    time.Duration
	Years             []int
	Months            []int
	MaxDepth          int
	SyntheticFallback bool

	// Now defaults to time.Now; windows after Now are skipped
	Now func() time.Time
	// Seed for synthetic data; zero seeds from the clock
	Seed int64
}

// Client provides access to the ERDDAP Argo dataset
type Client struct {
	opts       Options
	httpClient *http.Client

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewClient creates a new ERDDAP Argo client
func NewClient(opts Options) *Client {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.DatasetID == "" {
		opts.DatasetID = "ArgoFloats"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = opts.Now().UnixNano()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		rnd: rand.New(rand.NewSource(seed)),
	}
}

// Name identifies the data source
func (c *Client) Name() string {
	return providerName
}

// erddapTable is the JSON body of a tabledap .json response
type erddapTable struct {
	Table struct {
		ColumnNames []string        `json:"columnNames"`
		Rows        [][]interface{} `json:"rows"`
	} `json:"table"`
}

// window is a half-open time range [Start, End)
type window struct {
	Start time.Time
	End   time.Time
}

func (w window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}

// Fetch retrieves measurements inside region. FetchedAt is left for the caller to stamp.
func (c *Client) Fetch(ctx context.Context, region models.RegionDescriptor) (*models.RawDataset, error) {
	var records []models.RawDataRecord
	synthetic := false

	for _, year := range c.opts.Years {
		yearRecords, failures, err := c.fetchYear(ctx, region, year)
		if err != nil {
			return nil, &models.FetchError{RegionKey: region.Key, Err: err}
		}
		if len(yearRecords) > 0 {
			records = append(records, yearRecords...)
			continue
		}

		if c.opts.SyntheticFallback {
			logger.Warn("No Argo data for %s in %d, generating sample profiles", region.Key, year)
			records = append(records, c.generateSample(region, year)...)
			synthetic = true
			continue
		}
		if failures > 0 {
			return nil, &models.FetchError{
				RegionKey: region.Key,
				Err:       fmt.Errorf("all requests for %d failed", year),
			}
		}
		logger.Info("No Argo data for %s in %d", region.Key, year)
	}

	if len(records) == 0 {
		return nil, &models.FetchError{RegionKey: region.Key, Err: errors.New("no measurements found")}
	}

	return &models.RawDataset{
		RegionKey: region.Key,
		Records:   records,
		Source: models.SourceMetadata{
			Provider:  providerName,
			URL:       c.datasetURL(),
			Years:     append([]int(nil), c.opts.Years...),
			Months:    append([]int(nil), c.opts.Months...),
			MaxDepth:  c.opts.MaxDepth,
			Synthetic: synthetic,
		},
	}, nil
}

// fetchYear tries monthly windows and then the whole year. It returns the
// records found and how many requests failed; err is only set when ctx ends.
func (c *Client) fetchYear(ctx context.Context, region models.RegionDescriptor, year int) ([]models.RawDataRecord, int, error) {
	now := c.opts.Now().UTC()
	failures := 0

	var monthly []models.RawDataRecord
	for _, month := range c.opts.Months {
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		if !start.Before(now) {
			continue
		}
		w := window{Start: start, End: clip(start.AddDate(0, 1, 0), now)}

		rows, err := c.fetchWindow(ctx, region, w)
		if err != nil {
			if ctx.Err() != nil {
				return nil, failures, ctx.Err()
			}
			failures++
			logger.Warn("Argo fetch %s %s failed: %v", region.Key, w, err)
			continue
		}
		if len(rows) > 0 {
			logger.Debug("Argo fetch %s %s: %d records", region.Key, w, len(rows))
		}
		monthly = append(monthly, rows...)
	}
	if len(monthly) > 0 {
		return monthly, failures, nil
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	if !start.Before(now) {
		return nil, failures, nil
	}
	w := window{Start: start, End: clip(start.AddDate(1, 0, 0), now)}
	rows, err := c.fetchWindow(ctx, region, w)
	if err != nil {
		if ctx.Err() != nil {
			return nil, failures, ctx.Err()
		}
		failures++
		logger.Warn("Argo fetch %s %s failed: %v", region.Key, w, err)
		return nil, failures, nil
	}
	if len(rows) > 0 {
		logger.Info("Found Argo data for %s using the whole of %d", region.Key, year)
	}
	return rows, failures, nil
}

func clip(t, limit time.Time) time.Time {
	if t.After(limit) {
		return limit
	}
	return t
}

func (c *Client) datasetURL() string {
	return fmt.Sprintf("%s/tabledap/%s", c.opts.BaseURL, c.opts.DatasetID)
}

// queryURL builds the tabledap query for a region and window
func (c *Client) queryURL(region models.RegionDescriptor, w window) string {
	box := region.BoundingBox
	constraints := []string{
		fmt.Sprintf("longitude>=%g", box.LonMin),
		fmt.Sprintf("longitude<=%g", box.LonMax),
		fmt.Sprintf("latitude>=%g", box.LatMin),
		fmt.Sprintf("latitude<=%g", box.LatMax),
		"pres>=0",
		fmt.Sprintf("pres<=%d", c.opts.MaxDepth),
		"time>=" + w.Start.Format(time.RFC3339),
		"time<" + w.End.Format(time.RFC3339),
	}

	var b strings.Builder
	b.WriteString(c.datasetURL())
	b.WriteString(".json?")
	b.WriteString(variables)
	for _, con := range constraints {
		b.WriteString("&")
		b.WriteString(url.QueryEscape(con))
	}
	return b.String()
}

// fetchWindow queries one window. ERDDAP answers 404 when nothing matches,
// which is reported as no rows.
func (c *Client) fetchWindow(ctx context.Context, region models.RegionDescriptor, w window) ([]models.RawDataRecord, error) {
	resp, err := c.doRequest(ctx, c.queryURL(region, w))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profiles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var table erddapTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}

	return parseRows(table, region)
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.opts.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.opts.RetryDelayBase):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
