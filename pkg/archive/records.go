// Package archive defines the records written to the export directory and
// their conversion from API entities.
package archive

import (
	"encoding/json"

	"mastoscrape/pkg/content"
)

// PostType classifies a post in the export.
type PostType string

const (
	TypeOriginal PostType = "original"
	TypeReblog   PostType = "reblog"
	TypeFavorite PostType = "favorite"
)

// Profile is the snapshot of the exported account, written once per job.
type Profile struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Instance       string  `json:"instance"`
	DisplayName    string  `json:"display_name"`
	CreatedAt      string  `json:"created_at"`
	Note           string  `json:"note"`
	URL            string  `json:"url"`
	Avatar         string  `json:"avatar"`
	Header         string  `json:"header"`
	FollowersCount int     `json:"followers_count"`
	FollowingCount int     `json:"following_count"`
	StatusesCount  int     `json:"statuses_count"`
	LastStatusAt   *string `json:"last_status_at"`
	Bot            bool    `json:"bot"`
	Locked         bool    `json:"locked"`
	Fields         []Field `json:"fields"`
}

// Field is a custom profile field.
type Field struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	VerifiedAt *string `json:"verified_at,omitempty"`
}

// Account is the reduced account form used for followers, following,
// rebloggers and favouriters. Partial is set when only the actor list
// entry was available and the full lookup failed.
type Account struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	DisplayName    string  `json:"display_name"`
	URL            string  `json:"url"`
	Instance       string  `json:"instance"`
	Avatar         string  `json:"avatar"`
	Header         string  `json:"header"`
	Note           string  `json:"note"`
	Bot            bool    `json:"bot"`
	Locked         bool    `json:"locked"`
	CreatedAt      string  `json:"created_at"`
	LastStatusAt   *string `json:"last_status_at"`
	FollowersCount *int    `json:"followers_count,omitempty"`
	FollowingCount *int    `json:"following_count,omitempty"`
	StatusesCount  *int    `json:"statuses_count,omitempty"`
	Fields         []Field `json:"fields"`
	Partial        bool    `json:"partial,omitempty"`
}

// Media is an attachment, with LocalPath set once it has been downloaded.
type Media struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	URL         string          `json:"url"`
	PreviewURL  string          `json:"preview_url"`
	Description string          `json:"description,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	LocalPath   string          `json:"local_path,omitempty"`
}

// Reply is a descendant of a post in its thread.
type Reply struct {
	ID                 string `json:"id"`
	AccountID          string `json:"account_id"`
	AccountUsername    string `json:"account_username"`
	AccountDisplayName string `json:"account_display_name"`
	Content            string `json:"content"`
	CreatedAt          string `json:"created_at"`
}

// AccountRef is the minimal author reference inside a CrossRef.
type AccountRef struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

// CrossRef points from a reblog or favourite to the source status.
type CrossRef struct {
	ID               string     `json:"id"`
	Account          AccountRef `json:"account"`
	CreatedAt        string     `json:"created_at"`
	MediaAttachments []Media    `json:"media_attachments,omitempty"`
}

// Post is an enriched status as persisted in posts.json.
type Post struct {
	ID                 string          `json:"id"`
	URL                string          `json:"url"`
	CreatedAt          string          `json:"created_at"`
	Type               PostType        `json:"type"`
	Content            content.Content `json:"content"`
	ReblogsCount       int             `json:"reblogs_count"`
	FavouritesCount    int             `json:"favourites_count"`
	RepliesCount       int             `json:"replies_count"`
	Visibility         string          `json:"visibility"`
	Sensitive          bool            `json:"sensitive"`
	SpoilerText        string          `json:"spoiler_text"`
	Language           *string         `json:"language"`
	InReplyToID        *string         `json:"in_reply_to_id"`
	InReplyToAccountID *string         `json:"in_reply_to_account_id"`
	Poll               json.RawMessage `json:"poll,omitempty"`
	MediaAttachments   []Media         `json:"media_attachments"`
	Rebloggers         []Account       `json:"rebloggers"`
	Favouriters        []Account       `json:"favouriters"`
	Replies            []Reply         `json:"replies"`
	RebloggedFrom      *CrossRef       `json:"reblogged_from"`
	FavoritedStatus    *CrossRef       `json:"favorited_status"`
}

// Summary reports the totals of one export job.
type Summary struct {
	Handle          string `json:"handle"`
	OutputDir       string `json:"output_dir"`
	Posts           int    `json:"posts"`
	MediaDownloaded int    `json:"media_downloaded"`
	Followers       int    `json:"followers"`
	Following       int    `json:"following"`
	Fallbacks       int    `json:"fallbacks"`
	// PersistFailures counts output documents whose final write failed.
	PersistFailures int `json:"persist_failures"`
}
