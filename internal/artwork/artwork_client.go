package artwork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Snapshot is the REST seed state for one artwork: the countdown window plus
// the highest bid known before any socket event arrives.
type Snapshot struct {
	ArtworkID         string    `json:"artworkId"`
	AuctionStartTime  time.Time `json:"auctionStartTime"`
	AuctionEndTime    time.Time `json:"auctionEndTime"`
	CurrentBid        float64   `json:"currentBid"`
	CurrentBidderName string    `json:"currentBidderName"`
}

// Client fetches artwork snapshots from the REST layer.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Get returns the snapshot for one artwork.
func (c *Client) Get(ctx context.Context, artworkID string) (*Snapshot, error) {
	endpoint := fmt.Sprintf("%s/api/artworks/%s", c.baseURL, url.PathEscape(artworkID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("artwork API returned status %d: %s", resp.StatusCode, string(body))
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode artwork snapshot: %w", err)
	}
	return &snap, nil
}
