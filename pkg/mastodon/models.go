package mastodon

import "encoding/json"

// Account is an account entity as returned by the API.
type Account struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Acct           string  `json:"acct"`
	DisplayName    string  `json:"display_name"`
	Note           string  `json:"note"`
	URL            string  `json:"url"`
	Avatar         string  `json:"avatar"`
	Header         string  `json:"header"`
	Locked         bool    `json:"locked"`
	Bot            bool    `json:"bot"`
	CreatedAt      string  `json:"created_at"`
	LastStatusAt   *string `json:"last_status_at"`
	FollowersCount int     `json:"followers_count"`
	FollowingCount int     `json:"following_count"`
	StatusesCount  int     `json:"statuses_count"`
	Fields         []Field `json:"fields"`
}

// Field is a profile metadata key/value pair.
type Field struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	VerifiedAt *string `json:"verified_at"`
}

// Status is a post as returned by the API. Reblog is set when the status
// is a boost of another status.
type Status struct {
	ID                 string            `json:"id"`
	URI                string            `json:"uri"`
	URL                string            `json:"url"`
	CreatedAt          string            `json:"created_at"`
	Account            Account           `json:"account"`
	Content            string            `json:"content"`
	Visibility         string            `json:"visibility"`
	Sensitive          bool              `json:"sensitive"`
	SpoilerText        string            `json:"spoiler_text"`
	Language           *string           `json:"language"`
	InReplyToID        *string           `json:"in_reply_to_id"`
	InReplyToAccountID *string           `json:"in_reply_to_account_id"`
	RepliesCount       int               `json:"replies_count"`
	ReblogsCount       int               `json:"reblogs_count"`
	FavouritesCount    int               `json:"favourites_count"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
	Poll               json.RawMessage   `json:"poll,omitempty"`
	Reblog             *Status           `json:"reblog"`
}

// MediaAttachment is a file attached to a status.
type MediaAttachment struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	URL         string          `json:"url"`
	PreviewURL  string          `json:"preview_url"`
	RemoteURL   string          `json:"remote_url"`
	Description string          `json:"description"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}

// Context holds the thread around a status.
type Context struct {
	Ancestors   []Status `json:"ancestors"`
	Descendants []Status `json:"descendants"`
}

// Application is the client application a token was issued to.
type Application struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}
