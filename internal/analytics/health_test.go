package analytics

import (
	"strings"
	"testing"
)

func TestCheckCampaignHealthNoSends(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})
	alerts := m.CheckCampaignHealth(CampaignStats{})
	if len(alerts) != 1 || alerts[0].Level != LevelInfo {
		t.Fatalf("alerts = %+v, want single info alert", alerts)
	}
}

func TestCheckCampaignHealthHealthy(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})
	alerts := m.CheckCampaignHealth(CampaignStats{Sends: 500, Bounces: 5, Opens: 200, Replies: 25})
	if len(alerts) != 1 || alerts[0].Level != LevelOK {
		t.Fatalf("alerts = %+v, want single ok alert", alerts)
	}
}

func TestCheckCampaignHealthHighBounce(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})
	alerts := m.CheckCampaignHealth(CampaignStats{Sends: 100, Bounces: 10, Opens: 50, Replies: 5})

	found := false
	for _, a := range alerts {
		if a.Metric == "bounce_rate" {
			found = true
			if a.Level != LevelCritical {
				t.Errorf("bounce alert level = %q, want critical", a.Level)
			}
			if a.Value != 10 {
				t.Errorf("bounce value = %v, want 10", a.Value)
			}
		}
	}
	if !found {
		t.Errorf("alerts = %+v, want bounce_rate alert", alerts)
	}
}

func TestCheckCampaignHealthLowRatesNeedVolume(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})

	// 100 sends or fewer: low open rate not yet alertable.
	alerts := m.CheckCampaignHealth(CampaignStats{Sends: 100, Opens: 5, Replies: 2})
	for _, a := range alerts {
		if a.Metric == "open_rate" {
			t.Errorf("open_rate alert at 100 sends, want none: %+v", a)
		}
	}

	// Past the volume floors both rate checks fire.
	alerts = m.CheckCampaignHealth(CampaignStats{Sends: 300, Opens: 20, Replies: 1})
	var metrics []string
	for _, a := range alerts {
		metrics = append(metrics, a.Metric)
	}
	got := strings.Join(metrics, ",")
	if !strings.Contains(got, "open_rate") || !strings.Contains(got, "reply_rate") {
		t.Errorf("alerts = %+v, want open_rate and reply_rate warnings", alerts)
	}
}

func TestCheckAccountHealthHealthy(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})
	alerts := m.CheckAccountHealth(AccountStats{DailyLimit: 50, SentToday: 10, WarmupDay: 20, Reputation: 100})
	if len(alerts) != 1 || alerts[0].Level != LevelOK {
		t.Fatalf("alerts = %+v, want single ok alert", alerts)
	}
}

func TestCheckAccountHealthNearDailyLimit(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})
	alerts := m.CheckAccountHealth(AccountStats{DailyLimit: 50, SentToday: 45, WarmupDay: 20, Reputation: 100})
	if len(alerts) != 1 || alerts[0].Metric != "daily_volume" || alerts[0].Level != LevelWarning {
		t.Fatalf("alerts = %+v, want daily_volume warning", alerts)
	}
}

func TestCheckAccountHealthWarming(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})
	alerts := m.CheckAccountHealth(AccountStats{DailyLimit: 50, SentToday: 0, WarmupDay: 3, Reputation: 100})
	if len(alerts) != 1 || alerts[0].Metric != "warmup" || alerts[0].Level != LevelInfo {
		t.Fatalf("alerts = %+v, want warmup info alert", alerts)
	}
	if !strings.Contains(alerts[0].Message, "day 3/14") {
		t.Errorf("message = %q, want day 3/14", alerts[0].Message)
	}
}

func TestCheckAccountHealthReputation(t *testing.T) {
	m := NewHealthMonitor(Thresholds{})

	alerts := m.CheckAccountHealth(AccountStats{DailyLimit: 50, WarmupDay: 20, Reputation: 75})
	if len(alerts) != 1 || alerts[0].Level != LevelCritical {
		t.Fatalf("alerts = %+v, want critical reputation alert", alerts)
	}

	alerts = m.CheckAccountHealth(AccountStats{DailyLimit: 50, WarmupDay: 20, Reputation: 90})
	if len(alerts) != 1 || alerts[0].Level != LevelWarning {
		t.Fatalf("alerts = %+v, want warning reputation alert", alerts)
	}
}
