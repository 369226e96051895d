// Package neon is a minimal client for the NEON data portal API v0: product
// availability, site-month file manifests, and checksum-verified downloads.
package neon

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/quadrat-io/trapline/internal/fetcher"
)

// Client talks to the portal API for one data product.
type Client struct {
	baseURL string
	product string
	fetcher fetcher.Fetcher
}

// NewClient creates a portal client. baseURL is the API root, e.g.
// "https://data.neonscience.org/api/v0".
func NewClient(baseURL, product string, f fetcher.Fetcher) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		product: product,
		fetcher: f,
	}
}

// SiteAvailability lists the months a site has data for the product.
type SiteAvailability struct {
	SiteCode        string   `json:"siteCode"`
	AvailableMonths []string `json:"availableMonths"`
}

// FileMeta is one downloadable file in a site-month manifest.
type FileMeta struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MD5  string `json:"md5"`
	URL  string `json:"url"`
}

type productResponse struct {
	Data struct {
		ProductCode string             `json:"productCode"`
		SiteCodes   []SiteAvailability `json:"siteCodes"`
	} `json:"data"`
}

type manifestResponse struct {
	Data struct {
		ProductCode string     `json:"productCode"`
		SiteCode    string     `json:"siteCode"`
		Month       string     `json:"month"`
		Files       []FileMeta `json:"files"`
	} `json:"data"`
}

// Sites returns per-site month availability for the product.
func (c *Client) Sites(ctx context.Context) ([]SiteAvailability, error) {
	url := fmt.Sprintf("%s/products/%s", c.baseURL, c.product)
	body, err := c.fetcher.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "neon: fetch product %s", c.product)
	}
	defer body.Close() //nolint:errcheck

	var resp productResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, eris.Wrap(err, "neon: decode product response")
	}
	return resp.Data.SiteCodes, nil
}

// Files returns the file manifest for one site-month.
func (c *Client) Files(ctx context.Context, site, month string) ([]FileMeta, error) {
	url := fmt.Sprintf("%s/data/%s/%s/%s", c.baseURL, c.product, site, month)
	body, err := c.fetcher.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "neon: fetch manifest %s %s", site, month)
	}
	defer body.Close() //nolint:errcheck

	var resp manifestResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, eris.Wrap(err, "neon: decode manifest response")
	}
	return resp.Data.Files, nil
}

// FetchFile downloads a manifest entry and verifies its checksum.
func (c *Client) FetchFile(ctx context.Context, meta FileMeta) ([]byte, error) {
	body, err := c.fetcher.Download(ctx, meta.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "neon: download %s", meta.Name)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "neon: read %s", meta.Name)
	}
	if err := verifyMD5(data, meta); err != nil {
		return nil, err
	}
	return data, nil
}

// FetchFileIfChanged downloads a manifest entry unless the server still
// serves the given ETag. Returns (data, newETag, changed, error); data is
// nil when unchanged.
func (c *Client) FetchFileIfChanged(ctx context.Context, meta FileMeta, etag string) ([]byte, string, bool, error) {
	body, newETag, changed, err := c.fetcher.DownloadIfChanged(ctx, meta.URL, etag)
	if err != nil {
		return nil, "", false, eris.Wrapf(err, "neon: download %s", meta.Name)
	}
	if !changed {
		return nil, newETag, false, nil
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", false, eris.Wrapf(err, "neon: read %s", meta.Name)
	}
	if err := verifyMD5(data, meta); err != nil {
		return nil, "", false, err
	}
	return data, newETag, true, nil
}

// verifyMD5 checks the payload against the manifest checksum when one is
// present.
func verifyMD5(data []byte, meta FileMeta) error {
	if meta.MD5 == "" {
		return nil
	}
	sum := md5.Sum(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, meta.MD5) {
		return eris.Errorf("neon: checksum mismatch for %s: got %s want %s", meta.Name, got, meta.MD5)
	}
	return nil
}

// TableFile selects the best manifest entry for a raw table CSV: the
// expanded package is preferred over basic, and newer generation timestamps
// win within a package. Names look like
// NEON.D01.HARV.DP1.10022.001.bet_fielddata.2018-06.expanded.20181119T045011Z.csv.
func TableFile(files []FileMeta, table string) (FileMeta, bool) {
	var best FileMeta
	var found bool
	for _, f := range files {
		if !strings.HasSuffix(f.Name, ".csv") || !strings.Contains(f.Name, "."+table+".") {
			continue
		}
		if !found || betterFile(f, best) {
			best, found = f, true
		}
	}
	return best, found
}

func betterFile(a, b FileMeta) bool {
	if ra, rb := pkgRank(a.Name), pkgRank(b.Name); ra != rb {
		return ra > rb
	}
	// Generation timestamp is embedded in the name; newer sorts later.
	return a.Name > b.Name
}

func pkgRank(name string) int {
	switch {
	case strings.Contains(name, ".expanded."):
		return 2
	case strings.Contains(name, ".basic."):
		return 1
	}
	return 0
}
