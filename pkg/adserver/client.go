// Package adserver composes templated VAST requests and fetches ad pods.
package adserver

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jeffwalter-rum/vast"

	"github.com/aminofox/adproxy/pkg/errors"
	"github.com/aminofox/adproxy/pkg/logger"
	"github.com/aminofox/adproxy/pkg/slots"
)

// Sentinel tokens recognized inside ad server query parameter values.
const (
	SessionIDTemplate = "[template.sessionId]"
	DurationTemplate  = "[template.duration]"
	PodNumTemplate    = "[template.pod]"
)

// UserAgent is sent on outbound ad server calls. Some ad servers reject
// requests carrying a missing or default user agent.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.0.1 Safari/605.1.15"

// Client talks to the configured VAST endpoint.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	logger   logger.Logger
}

// NewClient creates an ad server client for the given endpoint URL.
func NewClient(endpoint string, log logger.Logger) (*Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeURLParseFailed, "invalid ad server endpoint", err)
	}

	return &Client{
		endpoint: parsed,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log,
	}, nil
}

// Endpoint returns the configured ad server URL.
func (c *Client) Endpoint() *url.URL {
	return c.endpoint
}

// ResolveURL clones the endpoint and binds its query templates to the slot
// and session, then appends the session's saved sidecar query.
func (c *Client) ResolveURL(slot slots.Slot, sessionID, sidecarQuery string) *url.URL {
	replacements := map[string]string{
		SessionIDTemplate: sessionID,
		DurationTemplate:  strconv.FormatFloat(slot.Duration, 'f', -1, 64),
		PodNumTemplate:    strconv.Itoa(slot.Pod),
	}

	resolved := *c.endpoint
	query := substituteQuery(resolved.RawQuery, replacements)
	if sidecarQuery != "" {
		if query != "" {
			query += "&"
		}
		query += sidecarQuery
	}
	resolved.RawQuery = query

	return &resolved
}

// substituteQuery rewrites each query value, replacing every sentinel token
// at most once. Pair order and non-sentinel values are preserved verbatim.
func substituteQuery(rawQuery string, replacements map[string]string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}

		decoded, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}

		substituted := decoded
		for sentinel, replacement := range replacements {
			substituted = strings.Replace(substituted, sentinel, replacement, 1)
		}
		if substituted == decoded {
			continue
		}

		pairs[i] = key + "=" + url.QueryEscape(substituted)
	}

	return strings.Join(pairs, "&")
}

// FetchVAST requests the resolved ad pod URL and parses the response.
// Transport failures and non-2xx statuses surface as upstream errors; a
// malformed VAST body is recovered as an empty document.
func (c *Client) FetchVAST(ctx context.Context, adURL *url.URL) (*vast.VAST, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, adURL.String(), nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeURLParseFailed, "invalid ad request", err)
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", UserAgent)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError("ad server request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, errors.New(errors.ErrCodeUpstreamStatus,
			fmt.Sprintf("ad server returned status %d", res.StatusCode))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.NewUpstreamError("reading ad server response failed", err)
	}

	doc := &vast.VAST{}
	if err := xml.Unmarshal(body, doc); err != nil {
		c.logger.Error("Error parsing VAST; substituting an empty document", logger.Err(err))
		return &vast.VAST{}, nil
	}

	return doc, nil
}
