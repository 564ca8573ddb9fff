package analytics

import "fmt"

// AlertLevel grades a health finding.
type AlertLevel string

const (
	LevelOK       AlertLevel = "ok"
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// Alert is one health finding. Metric and Threshold are set for
// threshold-based checks only.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Metric    string     `json:"metric,omitempty"`
	Value     float64    `json:"value,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
	Message   string     `json:"message"`
}

// CampaignStats holds the deliverability counters of one campaign.
type CampaignStats struct {
	Sends       int `json:"sends"`
	Bounces     int `json:"bounces"`
	Opens       int `json:"opens"`
	Replies     int `json:"replies"`
	SpamReports int `json:"spam_reports"`
}

// AccountStats holds the sending-account signals the platform reports.
type AccountStats struct {
	Email      string `json:"email"`
	DailyLimit int    `json:"daily_limit"`
	SentToday  int    `json:"sent_today"`
	WarmupDay  int    `json:"warmup_day"`
	Reputation int    `json:"reputation"`
}

// Thresholds configures the health monitor. Zero values take defaults.
type Thresholds struct {
	BounceRate    float64 // percent, alert above (default 5.0)
	SpamRate      float64 // percent, alert above (default 0.1)
	OpenRateLow   float64 // percent, alert below (default 15.0)
	ReplyRateLow  float64 // percent, alert below (default 1.0)
	MinWarmupDays int     // days (default 14)
}

// HealthMonitor checks campaign and account signals against thresholds.
// Deliverability dies quietly; the monitor exists to make it loud.
type HealthMonitor struct {
	t Thresholds
}

// NewHealthMonitor creates a monitor. Unset thresholds get defaults.
func NewHealthMonitor(t Thresholds) *HealthMonitor {
	if t.BounceRate == 0 {
		t.BounceRate = 5.0
	}
	if t.SpamRate == 0 {
		t.SpamRate = 0.1
	}
	if t.OpenRateLow == 0 {
		t.OpenRateLow = 15.0
	}
	if t.ReplyRateLow == 0 {
		t.ReplyRateLow = 1.0
	}
	if t.MinWarmupDays == 0 {
		t.MinWarmupDays = 14
	}
	return &HealthMonitor{t: t}
}

// CheckCampaignHealth checks campaign counters against thresholds.
func (m *HealthMonitor) CheckCampaignHealth(stats CampaignStats) []Alert {
	if stats.Sends == 0 {
		return []Alert{{Level: LevelInfo, Message: "No sends yet"}}
	}

	var alerts []Alert
	sends := float64(stats.Sends)

	bounceRate := float64(stats.Bounces) / sends * 100
	if bounceRate > m.t.BounceRate {
		alerts = append(alerts, Alert{
			Level:     LevelCritical,
			Metric:    "bounce_rate",
			Value:     round2(bounceRate),
			Threshold: m.t.BounceRate,
			Message:   fmt.Sprintf("High bounce rate (%.1f%%) - check list quality", bounceRate),
		})
	}

	spamRate := float64(stats.SpamReports) / sends * 100
	if spamRate > m.t.SpamRate {
		alerts = append(alerts, Alert{
			Level:     LevelCritical,
			Metric:    "spam_rate",
			Value:     round2(spamRate),
			Threshold: m.t.SpamRate,
			Message:   fmt.Sprintf("Spam reports at %.2f%% - stop and review targeting", spamRate),
		})
	}

	openRate := float64(stats.Opens) / sends * 100
	if openRate < m.t.OpenRateLow && stats.Sends > 100 {
		alerts = append(alerts, Alert{
			Level:     LevelWarning,
			Metric:    "open_rate",
			Value:     round2(openRate),
			Threshold: m.t.OpenRateLow,
			Message:   fmt.Sprintf("Low open rate (%.1f%%) - possible deliverability issue", openRate),
		})
	}

	replyRate := float64(stats.Replies) / sends * 100
	if replyRate < m.t.ReplyRateLow && stats.Sends > 200 {
		alerts = append(alerts, Alert{
			Level:     LevelWarning,
			Metric:    "reply_rate",
			Value:     round2(replyRate),
			Threshold: m.t.ReplyRateLow,
			Message:   fmt.Sprintf("Low reply rate (%.1f%%) - review copy/targeting", replyRate),
		})
	}

	if len(alerts) == 0 {
		return []Alert{{Level: LevelOK, Message: "All metrics within healthy ranges"}}
	}
	return alerts
}

// CheckAccountHealth checks one sending account's signals.
func (m *HealthMonitor) CheckAccountHealth(stats AccountStats) []Alert {
	var alerts []Alert

	dailyLimit := stats.DailyLimit
	if dailyLimit == 0 {
		dailyLimit = 50
	}
	if float64(stats.SentToday) >= float64(dailyLimit)*0.9 {
		alerts = append(alerts, Alert{
			Level:   LevelWarning,
			Metric:  "daily_volume",
			Message: fmt.Sprintf("Near daily limit (%d/%d)", stats.SentToday, dailyLimit),
		})
	}

	if stats.WarmupDay < m.t.MinWarmupDays {
		alerts = append(alerts, Alert{
			Level:   LevelInfo,
			Metric:  "warmup",
			Message: fmt.Sprintf("Account still warming (day %d/%d minimum)", stats.WarmupDay, m.t.MinWarmupDays),
		})
	}

	switch {
	case stats.Reputation < 80:
		alerts = append(alerts, Alert{
			Level:   LevelCritical,
			Metric:  "reputation",
			Value:   float64(stats.Reputation),
			Message: fmt.Sprintf("Low sender reputation (%d%%) - pause and investigate", stats.Reputation),
		})
	case stats.Reputation < 95:
		alerts = append(alerts, Alert{
			Level:   LevelWarning,
			Metric:  "reputation",
			Value:   float64(stats.Reputation),
			Message: fmt.Sprintf("Sender reputation declining (%d%%)", stats.Reputation),
		})
	}

	if len(alerts) == 0 {
		return []Alert{{Level: LevelOK, Message: "Account healthy"}}
	}
	return alerts
}
