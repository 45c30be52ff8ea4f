package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/httpclient"
)

const defaultBaseURL = "https://api.github.com"

// Result is the outcome of an update check
type Result struct {
	Pending bool
	Latest  string
	URL     string
}

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Checker compares the running version against the latest GitHub release
type Checker struct {
	Owner   string
	Repo    string
	Current string

	baseURL string
	client  *http.Client
}

// CheckerOption configures a Checker
type CheckerOption func(*Checker)

// WithBaseURL points the checker at a different API host
func WithBaseURL(u string) CheckerOption {
	return func(c *Checker) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewChecker creates a checker for owner/repo at the current version
func NewChecker(owner, repo, current string, opts ...CheckerOption) *Checker {
	c := &Checker{
		Owner:   owner,
		Repo:    repo,
		Current: current,
		baseURL: defaultBaseURL,
		client:  httpclient.NewTraceClient("github", config.GetTimeouts().HTTPClient),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches the latest release
func (c *Checker) Check(ctx context.Context) (Result, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.Owner, c.Repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", c.Repo)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("latest release request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return Result{}, fmt.Errorf("failed to decode release: %w", err)
	}
	if rel.TagName == "" {
		return Result{}, errors.New("latest release has no tag")
	}

	return Result{
		Pending: Compare(c.Current, rel.TagName) < 0,
		Latest:  rel.TagName,
		URL:     rel.HTMLURL,
	}, nil
}

// Compare compares two dotted versions segment by segment. A leading "v"
// and any pre-release or build suffix are ignored; missing segments count
// as zero. Returns -1, 0 or 1.
func Compare(a, b string) int {
	as, bs := segments(a), segments(b)
	for i := range max(len(as), len(bs)) {
		var x, y int
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func segments(v string) []int {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if i := strings.IndexAny(v, "-+ "); i >= 0 {
		v = v[:i]
	}

	var out []int
	for part := range strings.SplitSeq(v, ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			n = 0
		}
		out = append(out, n)
	}
	return out
}
