package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalyst-cli/internal/config"
	"github.com/sells-group/catalyst-cli/internal/model"
)

func alertTypes(alerts []Alert) []AlertType {
	var out []AlertType
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	alerts := a.Evaluate(&Snapshot{
		RunsComplete:  8,
		RunsFailed:    2,
		RunFailRate:   0.2,
		LookbackHours: 24,
		CollectedAt:   testNow,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "20.0%")
	assert.Equal(t, 10, alerts[0].Details["finished"])
	assert.Equal(t, testNow, alerts[0].Timestamp)
}

func TestAlerter_Evaluate_FailureRateNeedsEnoughRuns(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	alerts := a.Evaluate(&Snapshot{RunsComplete: 2, RunsFailed: 2, RunFailRate: 0.5})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_Invariant(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	alerts := a.Evaluate(&Snapshot{
		ErrorsByKind:  map[model.ErrorKind]int{model.KindInvariant: 2, model.KindRetrieval: 5},
		LookbackHours: 6,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertInvariantViolation, alerts[0].Type)
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "2 registry invariant violation(s) in last 6h")
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, CostThresholdUSD: 5})

	alerts := a.Evaluate(&Snapshot{CostUSD: 7.5, RunsTotal: 3, LookbackHours: 24})
	assert.Equal(t, []AlertType{AlertCostOverrun}, alertTypes(alerts))
	assert.Contains(t, alerts[0].Message, "$7.50")
}

func TestAlerter_Evaluate_ZeroCostThreshold(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{CostThresholdUSD: 0})

	alerts := a.Evaluate(&Snapshot{CostUSD: 999.0, LookbackHours: 24})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_All(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, CostThresholdUSD: 1})

	alerts := a.Evaluate(&Snapshot{
		RunsComplete: 3,
		RunsFailed:   3,
		RunFailRate:  0.5,
		ErrorsByKind: map[model.ErrorKind]int{model.KindInvariant: 1},
		CostUSD:      2,
	})
	assert.Equal(t, []AlertType{AlertRunFailureRate, AlertInvariantViolation, AlertCostOverrun}, alertTypes(alerts))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var alert Alert
		if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertInvariantViolation, Severity: "critical", Message: "test alert 2"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}
