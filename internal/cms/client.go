// Package cms reads public site pages from the club's headless CMS.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

var (
	ErrPageNotFound = errors.New("cms: page not found")
	ErrInvalidSlug  = errors.New("cms: invalid page slug")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Page is one published CMS page.
type Page struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Client fetches pages from {BaseURL}/pages/{slug} and keeps them in Cache
// for TTL.
type Client struct {
	BaseURL string
	Token   string
	TTL     time.Duration
	Cache   Cache
	HTTP    *http.Client
}

// NewClient returns a client with a 10s HTTP timeout. A nil cache disables
// caching.
func NewClient(baseURL, token string, ttl time.Duration, cache Cache) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		TTL:     ttl,
		Cache:   cache,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a CMS endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.BaseURL != ""
}

// Page returns the page for slug, from cache when fresh.
func (c *Client) Page(ctx context.Context, slug string) (*Page, error) {
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}

	key := "cms:page:" + slug
	if c.Cache != nil {
		if raw, ok, err := c.Cache.Get(ctx, key); err != nil {
			log.Printf("WARN: cms cache read for %s failed: %v", slug, err)
		} else if ok {
			var p Page
			if err := json.Unmarshal(raw, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := c.fetch(ctx, slug)
	if err != nil {
		return nil, err
	}

	if c.Cache != nil && c.TTL > 0 {
		raw, _ := json.Marshal(p)
		if err := c.Cache.Set(ctx, key, raw, c.TTL); err != nil {
			log.Printf("WARN: cms cache write for %s failed: %v", slug, err)
		}
	}
	return p, nil
}

func (c *Client) fetch(ctx context.Context, slug string) (*Page, error) {
	endpoint, err := url.JoinPath(c.BaseURL, "pages", slug)
	if err != nil {
		return nil, fmt.Errorf("cms: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cms: fetch %s: %w", slug, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPageNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("cms: fetch %s: unexpected status %d", slug, resp.StatusCode)
	}

	var p Page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("cms: decode %s: %w", slug, err)
	}
	if p.Slug == "" {
		p.Slug = slug
	}
	return &p, nil
}
