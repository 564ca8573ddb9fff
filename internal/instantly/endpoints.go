package instantly

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Lead is a prospect record pushed to a platform campaign. CustomFields are
// flattened into the upload payload alongside the named fields.
type Lead struct {
	Email        string         `json:"email"`
	FirstName    string         `json:"first_name,omitempty"`
	LastName     string         `json:"last_name,omitempty"`
	CompanyName  string         `json:"company_name,omitempty"`
	CustomFields map[string]any `json:"custom_variables,omitempty"`
}

// pageParams builds skip/limit query values.
func pageParams(skip, limit int) url.Values {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return url.Values{
		"skip":  {strconv.Itoa(skip)},
		"limit": {strconv.Itoa(limit)},
	}
}

// ListCampaigns returns a single page of campaigns.
func (c *Client) ListCampaigns(ctx context.Context, skip, limit int) ([]map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "campaign/list", pageParams(skip, limit), nil)
	if err != nil {
		return nil, err
	}
	return extractList(data, "campaigns"), nil
}

// IterCampaigns iterates over all campaigns with automatic pagination.
func (c *Client) IterCampaigns(ctx context.Context) *Iterator {
	return c.paginate(ctx, "campaign/list", url.Values{}, "campaigns")
}

// GetCampaign returns campaign details.
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "campaign/get", url.Values{"campaign_id": {campaignID}}, nil)
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// GetCampaignStatus returns the campaign sending status.
func (c *Client) GetCampaignStatus(ctx context.Context, campaignID string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "campaign/get/status", url.Values{"campaign_id": {campaignID}}, nil)
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// LaunchCampaign activates a campaign.
func (c *Client) LaunchCampaign(ctx context.Context, campaignID string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodPost, "campaign/launch", nil, map[string]any{"campaign_id": campaignID})
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// PauseCampaign pauses a campaign.
func (c *Client) PauseCampaign(ctx context.Context, campaignID string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodPost, "campaign/pause", nil, map[string]any{"campaign_id": campaignID})
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// AddLeads uploads leads to a campaign. With skipDuplicates set, leads
// already present in the workspace are left alone.
func (c *Client) AddLeads(ctx context.Context, campaignID string, leads []Lead, skipDuplicates bool) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodPost, "lead/add", nil, map[string]any{
		"campaign_id":          campaignID,
		"leads":                leads,
		"skip_if_in_workspace": skipDuplicates,
	})
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// GetLeadStatus returns the status of one lead in a campaign.
func (c *Client) GetLeadStatus(ctx context.Context, email, campaignID string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "lead/get", url.Values{
		"email":       {email},
		"campaign_id": {campaignID},
	}, nil)
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// ListLeads returns a single page of campaign leads.
func (c *Client) ListLeads(ctx context.Context, campaignID string, skip, limit int) ([]map[string]any, error) {
	params := pageParams(skip, limit)
	params.Set("campaign_id", campaignID)
	data, err := c.execute(ctx, http.MethodGet, "lead/list", params, nil)
	if err != nil {
		return nil, err
	}
	return extractList(data, "leads"), nil
}

// IterLeads iterates over all leads in a campaign.
func (c *Client) IterLeads(ctx context.Context, campaignID string) *Iterator {
	return c.paginate(ctx, "lead/list", url.Values{"campaign_id": {campaignID}}, "leads")
}

// GetCampaignAnalytics returns campaign-level aggregates (sends, opens,
// replies, bounces).
func (c *Client) GetCampaignAnalytics(ctx context.Context, campaignID string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "analytics/campaign/summary", url.Values{"campaign_id": {campaignID}}, nil)
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// GetLeadActivity returns engagement events for a campaign. Both filters
// are optional: email narrows to one lead, eventType to one of
// sent/opened/replied/bounced.
func (c *Client) GetLeadActivity(ctx context.Context, campaignID, email, eventType string) ([]map[string]any, error) {
	params := url.Values{"campaign_id": {campaignID}}
	if email != "" {
		params.Set("email", email)
	}
	if eventType != "" {
		params.Set("event_type", eventType)
	}
	data, err := c.execute(ctx, http.MethodGet, "lead/activity", params, nil)
	if err != nil {
		return nil, err
	}
	return extractList(data, "activities"), nil
}

// GetReplies returns a single page of campaign replies.
func (c *Client) GetReplies(ctx context.Context, campaignID string, skip, limit int) ([]map[string]any, error) {
	params := pageParams(skip, limit)
	params.Set("campaign_id", campaignID)
	data, err := c.execute(ctx, http.MethodGet, "campaign/replies", params, nil)
	if err != nil {
		return nil, err
	}
	return extractList(data, "replies"), nil
}

// IterReplies iterates over all replies for a campaign. Reply volume is
// unbounded, so callers should prefer this over GetReplies.
func (c *Client) IterReplies(ctx context.Context, campaignID string) *Iterator {
	return c.paginate(ctx, "campaign/replies", url.Values{"campaign_id": {campaignID}}, "replies")
}

// ListAccounts returns the connected email accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "account/list", nil, nil)
	if err != nil {
		return nil, err
	}
	return extractList(data, "accounts"), nil
}

// GetAccountStatus returns sending status and limits for an account.
func (c *Client) GetAccountStatus(ctx context.Context, email string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "account/status", url.Values{"email": {email}}, nil)
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}

// GetWarmupStatus returns warmup progress for an account.
func (c *Client) GetWarmupStatus(ctx context.Context, email string) (map[string]any, error) {
	data, err := c.execute(ctx, http.MethodGet, "account/warmup/status", url.Values{"email": {email}}, nil)
	if err != nil {
		return nil, err
	}
	return asObject(data), nil
}
