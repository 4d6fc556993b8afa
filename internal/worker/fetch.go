// Copyright 2025 The Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package worker

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/time/rate"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

const maxDescriptionLen = 500

// FetchExecutor implements the FETCH worker (§4.3.1): an HTTP GET per
// configured URL, RSS/Atom parsing on format=rss, JSON-with-text-fallback
// otherwise, grounded on the teacher's security-aware
// internal/connector/http/connector.go client (timeout, bounded response
// size) with the pack's golang.org/x/time/rate added for per-host pacing,
// mirroring the teacher's own use of rate.Limiter for trigger throttling
// (internal/controller/filewatcher/service.go).
type FetchExecutor struct {
	client    *http.Client
	userAgent string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewFetchExecutor constructs a FetchExecutor. rps/burst bound requests per
// host; zero rps disables pacing.
func NewFetchExecutor(userAgent string, timeout time.Duration, rps float64, burst int) *FetchExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FetchExecutor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		limiters:  make(map[string]*rate.Limiter),
		rps:       rps,
		burst:     burst,
	}
}

func (f *FetchExecutor) Name() string { return workload.WorkerFetch }

type fetchFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type fetchItem struct {
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
	PubDate     string `json:"pubDate,omitempty"`
	Source      string `json:"source"`
}

type fetchOutput struct {
	Timestamp     time.Time      `json:"timestamp"`
	Sources       []string       `json:"sources"`
	FailedSources []fetchFailure `json:"failedSources"`
	ItemCount     int            `json:"itemCount"`
	Items         []fetchItem    `json:"items"`
}

func (f *FetchExecutor) Execute(ctx context.Context, task eventbus.TaskReady, _ map[string]InputFile) (Result, error) {
	urls := configStringSlice(task.Config, "urls")
	if single := configString(task.Config, "url"); single != "" {
		urls = append(urls, single)
	}
	if len(urls) == 0 {
		return Result{}, &conductorerrors.PermanentError{Cause: fmt.Errorf("fetch: url or urls is required")}
	}
	for _, target := range urls {
		if err := checkHostAllowed(task.Permissions, target); err != nil {
			return Result{}, err
		}
	}

	format := configString(task.Config, "format")

	out := fetchOutput{
		Timestamp: time.Now().UTC(),
		Sources:   urls,
	}

	for _, target := range urls {
		items, err := f.fetchOne(ctx, target, format)
		if err != nil {
			out.FailedSources = append(out.FailedSources, fetchFailure{URL: target, Error: err.Error()})
			continue
		}
		out.Items = append(out.Items, items...)
	}
	out.ItemCount = len(out.Items)

	if len(out.FailedSources) == len(urls) {
		return Result{}, &conductorerrors.TransientError{Cause: fmt.Errorf("fetch: all %d source(s) failed", len(urls))}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Format: "json"}, nil
}

// checkHostAllowed enforces the workload's optional network allow-list
// (§3 [ADDED]: "enforced only for the EXEC and FETCH workers"). A nil
// Permissions or nil/empty Network block leaves the worker unrestricted.
func checkHostAllowed(perms *workload.Permissions, target string) error {
	if perms == nil || perms.Network == nil || len(perms.Network.AllowedHosts) == 0 {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return &conductorerrors.PermanentError{Cause: fmt.Errorf("fetch: invalid url %q: %w", target, err)}
	}
	host := u.Hostname()
	for _, pattern := range perms.Network.AllowedHosts {
		if ok, _ := doublestar.Match(pattern, host); ok {
			return nil
		}
	}
	return &conductorerrors.PermanentError{Cause: fmt.Errorf("network-permission violation: host %q is not in allowedHosts", host)}
}

func (f *FetchExecutor) fetchOne(ctx context.Context, target, format string) ([]fetchItem, error) {
	if err := f.waitForHost(ctx, target); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	if format == "rss" {
		return parseFeed(body, target)
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return []fetchItem{{Description: truncate(fmt.Sprintf("%v", parsed), maxDescriptionLen), Source: target}}, nil
	}
	return []fetchItem{{Description: truncate(string(body), maxDescriptionLen), Source: target}}, nil
}

func (f *FetchExecutor) waitForHost(ctx context.Context, target string) error {
	if f.rps <= 0 {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	return f.limiterFor(u.Hostname()).Wait(ctx)
}

func (f *FetchExecutor) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.rps), f.burst)
		f.limiters[host] = l
	}
	return l
}

// rssFeed and atomFeed are minimal structs sufficient to pull items/entries
// out of either RSS 2.0 or Atom feeds (§4.3.1: "<item> or Atom <entry>
// elements"). No teacher feed parser exists in the pack, so this XML
// unmarshaling uses the standard library directly.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title string `xml:"title"`
	Link  struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
}

func parseFeed(body []byte, source string) ([]fetchItem, error) {
	var rss rssFeed
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		items := make([]fetchItem, 0, len(rss.Channel.Items))
		for _, it := range rss.Channel.Items {
			items = append(items, fetchItem{
				Title:       it.Title,
				Link:        it.Link,
				Description: truncate(it.Description, maxDescriptionLen),
				PubDate:     it.PubDate,
				Source:      source,
			})
		}
		return items, nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		items := make([]fetchItem, 0, len(atom.Entries))
		for _, e := range atom.Entries {
			items = append(items, fetchItem{
				Title:       e.Title,
				Link:        e.Link.Href,
				Description: truncate(e.Summary, maxDescriptionLen),
				PubDate:     e.Updated,
				Source:      source,
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("no rss <item> or atom <entry> elements found")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
