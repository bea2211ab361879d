package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/internal/report"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSignificantChange  AlertType = "significant_change"
	AlertHighErrorRate      AlertType = "high_error_rate"
	AlertSustainedErrorRate AlertType = "sustained_error_rate"
)

// minURLsForRate is the smallest sample an error rate alert is raised on.
const minURLsForRate = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	EntityID  string         `json:"entity_id,omitempty"`
	URL       string         `json:"url,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns runs and health snapshots into alerts and posts them to a
// webhook. It is a report.Publisher.
type Alerter struct {
	cfg    config.AlertsConfig
	client *http.Client
	now    func() time.Time
}

var _ report.Publisher = (*Alerter)(nil)

// NewAlerter creates a new Alerter with the given alerts config.
func NewAlerter(cfg config.AlertsConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (a *Alerter) Name() string { return "webhook" }

// Publish sends an alert per significant change plus one per run whose
// error rate is over the threshold.
func (a *Alerter) Publish(ctx context.Context, runs []*model.Run) error {
	alerts := a.Evaluate(runs)
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return nil
	}
	if sent := a.SendAlerts(ctx, alerts); sent < len(alerts) {
		return eris.Errorf("monitoring: %d of %d alerts not delivered", len(alerts)-sent, len(alerts))
	}
	return nil
}

// Evaluate builds the alerts for a finished pass.
func (a *Alerter) Evaluate(runs []*model.Run) []Alert {
	var alerts []Alert
	now := a.now()

	for _, run := range runs {
		if run == nil {
			continue
		}
		for _, res := range run.SignificantResults() {
			alerts = append(alerts, changeAlert(run.EntityID, res, now))
		}

		s := run.Summary
		if s.TotalURLs >= minURLsForRate && s.ErrorRate() > a.cfg.ErrorRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertHighErrorRate,
				Severity: "high",
				EntityID: run.EntityID,
				Message: fmt.Sprintf(
					"%s: %d of %d pages failed (%.1f%%, threshold %.1f%%)",
					run.EntityID, s.Errors, s.TotalURLs, s.ErrorRate()*100, a.cfg.ErrorRateThreshold*100,
				),
				Details: map[string]any{
					"error_rate": s.ErrorRate(),
					"threshold":  a.cfg.ErrorRateThreshold,
					"errors":     s.Errors,
					"total_urls": s.TotalURLs,
					"run_id":     run.ID,
				},
				Timestamp: now,
			})
		}
	}
	return alerts
}

func changeAlert(entityID string, res model.URLResult, now time.Time) Alert {
	details := map[string]any{
		"threshold":   res.Threshold,
		"change_type": report.ChangeType(res.URL),
		"hash":        res.CurrentHash,
	}
	msg := fmt.Sprintf("%s: significant change at %s", entityID, res.URL)
	if res.ChangeMagnitude != nil {
		details["magnitude"] = *res.ChangeMagnitude
		msg += fmt.Sprintf(" (%.2f%%)", *res.ChangeMagnitude)
	}
	if res.Score != nil {
		details["score"] = res.Score.Score
		details["method"] = res.Score.Method
		details["reasoning"] = res.Score.Reasoning
	}
	if len(res.CriticalKeywords) > 0 {
		details["critical_keywords"] = res.CriticalKeywords
	}
	return Alert{
		Type:      AlertSignificantChange,
		Severity:  severity(res.Score),
		EntityID:  entityID,
		URL:       res.URL,
		Message:   msg,
		Details:   details,
		Timestamp: now,
	}
}

func severity(score *model.ScoreResult) string {
	switch report.AlertLevel(score) {
	case "High":
		return "high"
	case "Medium":
		return "medium"
	default:
		return "low"
	}
}

// EvaluateHealth checks a metrics snapshot for a sustained error rate.
func (a *Alerter) EvaluateHealth(snap *MetricsSnapshot) []Alert {
	if snap == nil || snap.TotalURLs < minURLsForRate || snap.ErrorRate <= a.cfg.ErrorRateThreshold {
		return nil
	}
	return []Alert{{
		Type:     AlertSustainedErrorRate,
		Severity: "high",
		Message: fmt.Sprintf(
			"Error rate %.1f%% exceeds threshold %.1f%% (%d failed / %d checks in last %dh)",
			snap.ErrorRate*100, a.cfg.ErrorRateThreshold*100,
			snap.Errors, snap.TotalURLs, snap.LookbackHours,
		),
		Details: map[string]any{
			"error_rate": snap.ErrorRate,
			"threshold":  a.cfg.ErrorRateThreshold,
			"errors":     snap.Errors,
			"checks":     snap.TotalURLs,
			"runs":       snap.Runs,
		},
		Timestamp: a.now(),
	}}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("url", alert.URL),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
