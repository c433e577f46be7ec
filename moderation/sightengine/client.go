// Content classifier backed by the Sightengine text moderation API.
package sightengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tweetor-social/tweetor/moderation"
	"github.com/tweetor-social/tweetor/pkg/robusthttp"

	"github.com/carlmjohnson/versioninfo"
)

const DefaultHost = "https://api.sightengine.com"

type Client struct {
	Client    *http.Client
	Host      string
	APIUser   string
	APISecret string
	// sightengine "mode" form value
	Mode   string
	Logger *slog.Logger
}

var _ moderation.Classifier = (*Client)(nil)

func NewClient(apiUser, apiSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = robusthttp.NewClient()
	}
	return &Client{
		Client:    httpClient,
		Host:      DefaultHost,
		APIUser:   apiUser,
		APISecret: apiSecret,
		Mode:      "standard",
		Logger:    slog.Default().With("component", "sightengine"),
	}
}

// schema: https://sightengine.com/docs/text-moderation-api-reference
type checkResp struct {
	Status string          `json:"status"`
	Error  *checkRespError `json:"error,omitempty"`
}

type checkRespError struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type checkRespCategory struct {
	Matches []checkRespMatch `json:"matches"`
}

type checkRespMatch struct {
	Type  string `json:"type"`
	Match string `json:"match"`
}

// Extracts matched categories from a raw response body.
//
// Profanity matches are reported under their sub-type; every other requested
// category is reported under its own name when it has any match.
func parseMatches(raw map[string]json.RawMessage, categories []string) ([]string, error) {
	var out []string
	if prof, ok := raw["profanity"]; ok {
		var cat checkRespCategory
		if err := json.Unmarshal(prof, &cat); err != nil {
			return nil, fmt.Errorf("parsing profanity matches: %w", err)
		}
		for _, m := range cat.Matches {
			if m.Type != "" {
				out = append(out, m.Type)
			} else {
				out = append(out, "profanity")
			}
		}
	}
	for _, name := range categories {
		if name == "profanity" {
			continue
		}
		body, ok := raw[name]
		if !ok {
			continue
		}
		var cat checkRespCategory
		if err := json.Unmarshal(body, &cat); err != nil {
			return nil, fmt.Errorf("parsing %s matches: %w", name, err)
		}
		if len(cat.Matches) > 0 {
			out = append(out, name)
		}
	}
	return out, nil
}

func (c *Client) Classify(ctx context.Context, req moderation.Request) (*moderation.Response, error) {
	form := url.Values{}
	form.Set("text", req.Text)
	form.Set("lang", req.Language)
	form.Set("mode", c.Mode)
	form.Set("api_user", c.APIUser)
	form.Set("api_secret", c.APISecret)
	form.Set("categories", strings.Join(req.Categories, ","))

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/1.0/text/check.json", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, moderation.Permanent(err)
	}
	hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("User-Agent", "tweetor/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		apiDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := c.Client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("sightengine request failed: %w", err)
	}
	defer res.Body.Close()

	apiCount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("sightengine request failed statusCode=%d", res.StatusCode)
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, moderation.Permanent(err)
		}
		return nil, err
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sightengine resp body: %w", err)
	}

	var status checkResp
	if err := json.Unmarshal(respBytes, &status); err != nil {
		return nil, moderation.Permanent(fmt.Errorf("failed to parse sightengine resp JSON: %w", err))
	}
	if status.Status != moderation.StatusSuccess {
		if status.Error != nil {
			return nil, fmt.Errorf("sightengine error type=%s code=%d: %s", status.Error.Type, status.Error.Code, status.Error.Message)
		}
		return &moderation.Response{Status: status.Status}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(respBytes, &raw); err != nil {
		return nil, moderation.Permanent(fmt.Errorf("failed to parse sightengine resp JSON: %w", err))
	}
	matches, err := parseMatches(raw, req.Categories)
	if err != nil {
		return nil, moderation.Permanent(err)
	}
	c.Logger.Debug("sightengine-response", "matches", matches)
	return &moderation.Response{
		Status:  status.Status,
		Matches: matches,
	}, nil
}
