// Package youtube is the external channel source. Calls go through a
// circuit breaker so a failing upstream is rejected fast instead of
// burning quota and worker time; the open state surfaces as a transient
// error that the job's normal retry/backoff handles.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

type Video struct {
	ID          string
	Title       string
	Description string
	PublishedAt time.Time
}

// ChannelSource is what the sync processor consumes.
type ChannelSource interface {
	// ChannelUploads lists a channel's uploads, newest first. A non-nil
	// publishedAfter bounds the walk (incremental mode); maxPages 0 means
	// walk everything.
	ChannelUploads(ctx context.Context, channelID string, publishedAfter *time.Time, maxPages int) ([]Video, error)
}

const pageSize = 50

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewClient(baseURL, apiKey string, log *zap.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "youtube",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= 10 && float64(c.TotalFailures)/float64(c.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		cb:      cb,
		log:     log,
	}
}

func (c *Client) ChannelUploads(ctx context.Context, channelID string, publishedAfter *time.Time, maxPages int) ([]Video, error) {
	var out []Video
	pageToken := ""
	for page := 0; maxPages == 0 || page < maxPages; page++ {
		res, err := c.cb.Execute(func() (any, error) {
			return c.searchPage(ctx, channelID, publishedAfter, pageToken)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return out, domain.NewTransientError("youtube circuit open", err)
		}
		if err != nil {
			return out, domain.NewTransientError("youtube search", err)
		}
		p := res.(searchPage)
		out = append(out, p.videos...)
		if p.nextToken == "" {
			break
		}
		pageToken = p.nextToken
	}
	return out, nil
}

type searchPage struct {
	videos    []Video
	nextToken string
}

func (c *Client) searchPage(ctx context.Context, channelID string, publishedAfter *time.Time, pageToken string) (searchPage, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("channelId", channelID)
	q.Set("order", "date")
	q.Set("type", "video")
	q.Set("maxResults", fmt.Sprint(pageSize))
	q.Set("key", c.apiKey)
	if publishedAfter != nil {
		q.Set("publishedAfter", publishedAfter.UTC().Format(time.RFC3339))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return searchPage{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return searchPage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return searchPage{}, errors.Errorf("youtube search: status %d", resp.StatusCode)
	}

	var body struct {
		NextPageToken string `json:"nextPageToken"`
		Items         []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title       string    `json:"title"`
				Description string    `json:"description"`
				PublishedAt time.Time `json:"publishedAt"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return searchPage{}, errors.Wrap(err, "decode search response")
	}

	page := searchPage{nextToken: body.NextPageToken}
	for _, it := range body.Items {
		if it.ID.VideoID == "" {
			continue
		}
		page.videos = append(page.videos, Video{
			ID:          it.ID.VideoID,
			Title:       it.Snippet.Title,
			Description: it.Snippet.Description,
			PublishedAt: it.Snippet.PublishedAt,
		})
	}
	return page, nil
}
