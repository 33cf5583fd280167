// Package feed provides a client for a radio stream's metadata document.
//
// The feed is a single flat JSON document describing the currently
// playing track and up to five previously played ones:
//
//	{
//	  "artist": "...", "title": "...", "album": "...", "date": 1983,
//	  "prev_artist_1": "...", "prev_title_1": "...",
//	  ...
//	  "prev_artist_5": "...", "prev_title_5": "..."
//	}
//
// "date" is the release year and arrives as either a number or a string
// depending on the upstream encoder. Absent current-track fields fall
// back to placeholder strings rather than nulls.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Placeholder values used when the feed omits current-track fields.
const (
	UnknownArtist = "Unknown Artist"
	UnknownTitle  = "Unknown Track"
)

// DefaultTimeout bounds each fetch. It must stay shorter than the poll
// interval so a slow feed can never stall the polling cadence.
const DefaultTimeout = 5 * time.Second

// Config holds client configuration.
type Config struct {
	URL        string        // Required: metadata document URL
	HTTPClient *http.Client  // Optional: HTTP client (defaults to a fresh client)
	Timeout    time.Duration // Optional: per-fetch timeout (defaults to DefaultTimeout)
}

// Client fetches and decodes the metadata document.
type Client struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a feed client. Returns an error if the URL is missing.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed: URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		url:        cfg.URL,
		httpClient: httpClient,
		timeout:    timeout,
	}, nil
}

// PreviousTrack is one entry of the feed's played-before list.
type PreviousTrack struct {
	Artist string
	Title  string
}

// Metadata is the decoded feed document.
type Metadata struct {
	Artist   string
	Title    string
	Album    string
	Year     *int
	Previous []PreviousTrack
}

// Fetch retrieves and decodes the feed document. Network and HTTP status
// problems come back as *FetchError, malformed payloads as *ParseError;
// everything else on this path is a programming error.
func (c *Client) Fetch(ctx context.Context) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "spinlog/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}

	return parseMetadata(body)
}

// document mirrors the raw wire format before normalization.
type document struct {
	Artist string   `json:"artist"`
	Title  string   `json:"title"`
	Album  string   `json:"album"`
	Date   yearText `json:"date"`

	PrevArtist1 string `json:"prev_artist_1"`
	PrevTitle1  string `json:"prev_title_1"`
	PrevArtist2 string `json:"prev_artist_2"`
	PrevTitle2  string `json:"prev_title_2"`
	PrevArtist3 string `json:"prev_artist_3"`
	PrevTitle3  string `json:"prev_title_3"`
	PrevArtist4 string `json:"prev_artist_4"`
	PrevTitle4  string `json:"prev_title_4"`
	PrevArtist5 string `json:"prev_artist_5"`
	PrevTitle5  string `json:"prev_title_5"`
}

// yearText tolerates the feed sending the release year as a JSON number
// or as a string. Unparseable values decode to empty rather than failing
// the whole document.
type yearText string

func (y *yearText) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*y = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		*y = yearText(strings.TrimSpace(unquoted))
		return nil
	}
	// Bare number; keep the integer part.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	*y = yearText(s)
	return nil
}

func (y yearText) year() *int {
	if y == "" {
		return nil
	}
	n, err := strconv.Atoi(string(y))
	if err != nil {
		return nil
	}
	return &n
}

func parseMetadata(body []byte) (*Metadata, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	md := &Metadata{
		Artist: doc.Artist,
		Title:  doc.Title,
		Album:  doc.Album,
		Year:   doc.Date.year(),
	}
	if md.Artist == "" {
		md.Artist = UnknownArtist
	}
	if md.Title == "" {
		md.Title = UnknownTitle
	}

	prev := [][2]string{
		{doc.PrevArtist1, doc.PrevTitle1},
		{doc.PrevArtist2, doc.PrevTitle2},
		{doc.PrevArtist3, doc.PrevTitle3},
		{doc.PrevArtist4, doc.PrevTitle4},
		{doc.PrevArtist5, doc.PrevTitle5},
	}
	for _, p := range prev {
		if p[0] == "" || p[1] == "" {
			continue
		}
		md.Previous = append(md.Previous, PreviousTrack{Artist: p[0], Title: p[1]})
	}

	return md, nil
}
