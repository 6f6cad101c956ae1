package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentTypeVideo is the only content type counted towards VIDEO_COUNT. Matching is exact.
const ContentTypeVideo = "Video"

// UncategorizedLabel is reported for posts whose campaign category is blank.
const UncategorizedLabel = "Uncategorized"

// Post is a piece of published content belonging to one campaign and one account.
type Post struct {
	ID               string    `json:"id"`
	CampaignID       string    `json:"campaignId"`
	AccountID        string    `json:"accountId"`
	ContentType      string    `json:"contentType"`
	CampaignCategory string    `json:"campaignCategory"`
	URL              string    `json:"url,omitempty"`
	TotalView        LooseInt  `json:"totalView"`
	TotalLike        LooseInt  `json:"totalLike"`
	TotalComment     LooseInt  `json:"totalComment"`
	TotalShare       LooseInt  `json:"totalShare"`
	TotalSaved       LooseInt  `json:"totalSaved"`
	YellowCart       LooseBool `json:"yellowCart"`
	PostedAt         time.Time `json:"postedAt,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Validate checks the ownership fields every post must carry.
func (p *Post) Validate() error {
	if strings.TrimSpace(p.CampaignID) == "" {
		return fmt.Errorf("%w: campaignId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("%w: accountId is required", ErrInvalidInput)
	}
	return nil
}

// CategoryLabel returns the dashboard label for the post's campaign category.
func (p *Post) CategoryLabel() string {
	if strings.TrimSpace(p.CampaignCategory) == "" {
		return UncategorizedLabel
	}
	return p.CampaignCategory
}
