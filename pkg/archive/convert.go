package archive

import (
	"net/url"

	"mastoscrape/pkg/mastodon"
)

// InstanceOf returns the authority of a profile or status URL, or "" when
// it cannot be parsed.
func InstanceOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// ProfileFromAccount builds the profile snapshot; instance is the home
// server the handle resolved on.
func ProfileFromAccount(a *mastodon.Account, instance string) Profile {
	return Profile{
		ID:             a.ID,
		Username:       a.Username,
		Instance:       instance,
		DisplayName:    a.DisplayName,
		CreatedAt:      a.CreatedAt,
		Note:           a.Note,
		URL:            a.URL,
		Avatar:         a.Avatar,
		Header:         a.Header,
		FollowersCount: a.FollowersCount,
		FollowingCount: a.FollowingCount,
		StatusesCount:  a.StatusesCount,
		LastStatusAt:   a.LastStatusAt,
		Bot:            a.Bot,
		Locked:         a.Locked,
		Fields:         fieldsFrom(a.Fields),
	}
}

// AccountFromWire reduces a full account entity.
func AccountFromWire(a mastodon.Account) Account {
	followers, following, statuses := a.FollowersCount, a.FollowingCount, a.StatusesCount
	return Account{
		ID:             a.ID,
		Username:       a.Username,
		DisplayName:    a.DisplayName,
		URL:            a.URL,
		Instance:       InstanceOf(a.URL),
		Avatar:         a.Avatar,
		Header:         a.Header,
		Note:           a.Note,
		Bot:            a.Bot,
		Locked:         a.Locked,
		CreatedAt:      a.CreatedAt,
		LastStatusAt:   a.LastStatusAt,
		FollowersCount: &followers,
		FollowingCount: &following,
		StatusesCount:  &statuses,
		Fields:         fieldsFrom(a.Fields),
	}
}

// PartialAccount keeps what an actor list entry carries when the full
// lookup failed; counters are left unknown.
func PartialAccount(a mastodon.Account) Account {
	return Account{
		ID:           a.ID,
		Username:     a.Username,
		DisplayName:  a.DisplayName,
		URL:          a.URL,
		Instance:     InstanceOf(a.URL),
		Avatar:       a.Avatar,
		Header:       a.Header,
		Bot:          a.Bot,
		Locked:       a.Locked,
		CreatedAt:    a.CreatedAt,
		LastStatusAt: a.LastStatusAt,
		Fields:       fieldsFrom(a.Fields),
		Partial:      true,
	}
}

// AccountRefFrom extracts the author reference of a cross reference.
func AccountRefFrom(a mastodon.Account) AccountRef {
	return AccountRef{ID: a.ID, Username: a.Username, DisplayName: a.DisplayName, URL: a.URL}
}

// MediaFromWire converts attachments. The metadata blob is kept for images
// and videos only.
func MediaFromWire(attachments []mastodon.MediaAttachment) []Media {
	media := make([]Media, 0, len(attachments))
	for _, a := range attachments {
		m := Media{
			ID:          a.ID,
			Type:        a.Type,
			URL:         a.URL,
			PreviewURL:  a.PreviewURL,
			Description: a.Description,
		}
		if a.Type == "image" || a.Type == "video" || a.Type == "gifv" {
			m.Meta = a.Meta
		}
		media = append(media, m)
	}
	return media
}

// ReplyFromWire reduces a thread descendant.
func ReplyFromWire(s mastodon.Status) Reply {
	return Reply{
		ID:                 s.ID,
		AccountID:          s.Account.ID,
		AccountUsername:    s.Account.Username,
		AccountDisplayName: s.Account.DisplayName,
		Content:            s.Content,
		CreatedAt:          s.CreatedAt,
	}
}

func fieldsFrom(in []mastodon.Field) []Field {
	out := make([]Field, 0, len(in))
	for _, f := range in {
		out = append(out, Field{Name: f.Name, Value: f.Value, VerifiedAt: f.VerifiedAt})
	}
	return out
}
