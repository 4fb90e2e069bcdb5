package mastodon

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DefaultStatusesLimit is the largest page the statuses endpoint serves
	DefaultStatusesLimit = 40

	// DefaultAccountsLimit is the largest page the account list endpoints serve
	DefaultAccountsLimit = 80
)

// RelationKind selects one of the account list endpoints of an account.
type RelationKind string

const (
	Followers RelationKind = "followers"
	Following RelationKind = "following"
)

func (c *Client) lookupURL(acct string) string {
	params := url.Values{}
	params.Set("acct", acct)
	return fmt.Sprintf("%s/api/v1/accounts/lookup?%s", c.baseURL, params.Encode())
}

func (c *Client) accountURL(id string) string {
	return fmt.Sprintf("%s/api/v1/accounts/%s", c.baseURL, url.PathEscape(id))
}

func (c *Client) verifyCredentialsURL() string {
	return c.baseURL + "/api/v1/accounts/verify_credentials"
}

func (c *Client) appCredentialsURL() string {
	return c.baseURL + "/api/v1/apps/verify_credentials"
}

func (c *Client) statusesURL(accountID, maxID string, limit int) string {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(clampLimit(limit, DefaultStatusesLimit)))
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	return fmt.Sprintf("%s/statuses?%s", c.accountURL(accountID), params.Encode())
}

func (c *Client) relationURL(accountID string, kind RelationKind, limit int) string {
	return fmt.Sprintf("%s/%s?limit=%d", c.accountURL(accountID), kind, clampLimit(limit, DefaultAccountsLimit))
}

func (c *Client) statusURL(id string) string {
	return fmt.Sprintf("%s/api/v1/statuses/%s", c.baseURL, url.PathEscape(id))
}

func (c *Client) statusActorsURL(id, action string, limit int) string {
	return fmt.Sprintf("%s/%s?limit=%d", c.statusURL(id), action, clampLimit(limit, DefaultAccountsLimit))
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
