package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/crewtrack/backend/internal/config"
	"github.com/crewtrack/backend/internal/database"
)

// Client talks to the external group/role directory. Every call has a
// bounded timeout; callers degrade (skip rank gates, reuse cached data)
// instead of failing when the directory is down.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Member is one entry of a group's member list
type Member struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	RoleID   int64  `json:"role_id"`
}

type roleRanksResponse struct {
	Roles []struct {
		ID   int64 `json:"id"`
		Rank int   `json:"rank"`
	} `json:"roles"`
}

type membersResponse struct {
	Members []Member `json:"members"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.DirectoryBaseURL,
		httpClient: &http.Client{
			Timeout: cfg.DirectoryTimeout,
		},
	}
}

// RoleRanks returns the roleId -> numeric rank map for a group. On failure
// it falls back to the last cached copy before returning an error.
func (c *Client) RoleRanks(ctx context.Context, groupID int64) (map[int64]int, error) {
	cacheKey := fmt.Sprintf("%s%d", database.CacheKeyRoleRanks, groupID)

	ranks, err := c.fetchRoleRanks(ctx, groupID)
	if err != nil {
		var cached map[int64]int
		if cacheErr := database.CacheGet(cacheKey, &cached); cacheErr == nil {
			log.Printf("Directory: role ranks fetch failed for group %d, using cached copy: %v", groupID, err)
			return cached, nil
		}
		return nil, err
	}

	if err := database.CacheSet(cacheKey, ranks, 24*time.Hour); err != nil {
		log.Printf("Directory: failed to cache role ranks for group %d: %v", groupID, err)
	}
	return ranks, nil
}

func (c *Client) fetchRoleRanks(ctx context.Context, groupID int64) (map[int64]int, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("directory not configured")
	}

	url := fmt.Sprintf("%s/v1/groups/%d/roles", c.baseURL, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var body roleRanksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	ranks := make(map[int64]int, len(body.Roles))
	for _, role := range body.Roles {
		ranks[role.ID] = role.Rank
	}
	return ranks, nil
}

// Members returns the group member list
func (c *Client) Members(ctx context.Context, groupID int64) ([]Member, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("directory not configured")
	}

	url := fmt.Sprintf("%s/v1/groups/%d/members", c.baseURL, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var body membersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Members, nil
}
