package engine

import (
	"strings"
)

// Moderation subject: the profile of the user requesting membership or authoring a cast. Field names follow the social network API's JSON.
type Profile struct {
	Fid               int64    `json:"fid"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"display_name"`
	PfpURL            string   `json:"pfp_url"`
	Bio               string   `json:"bio"`
	FollowerCount     int64    `json:"follower_count"`
	FollowingCount    int64    `json:"following_count"`
	CustodyAddress    string   `json:"custody_address"`
	VerifiedAddresses []string `json:"verified_addresses"`
	PowerBadge        bool     `json:"power_badge"`
	ActiveStatus      string   `json:"active_status"`
}

// All addresses associated with the user (custody first), lower-cased and de-duplicated
func (p *Profile) Addresses() []string {
	var out []string
	seen := map[string]bool{}
	for _, a := range append([]string{p.CustodyAddress}, p.VerifiedAddresses...) {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

type Channel struct {
	ID string `json:"id"`
}

const (
	EmbedImage = "image"
	EmbedVideo = "video"
	EmbedLink  = "link"
	EmbedCast  = "cast"
	EmbedFrame = "frame"
)

type Embed struct {
	URL  string `json:"url,omitempty"`
	Type string `json:"type"`
}

type Cast struct {
	Hash          string  `json:"hash"`
	Text          string  `json:"text"`
	ParentHash    string  `json:"parent_hash,omitempty"`
	ThreadHash    string  `json:"thread_hash,omitempty"`
	MentionedFids []int64 `json:"mentioned_fids,omitempty"`
	Embeds        []Embed `json:"embeds,omitempty"`
}

func (c *Cast) IsReply() bool {
	return c.ParentHash != ""
}

// Input to a single evaluation. Cast is only set when evaluating cast rules.
type Input struct {
	User    Profile
	Channel Channel
	Cast    *Cast
}
