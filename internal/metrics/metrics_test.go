package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getGaugeVecValue(gv *prometheus.GaugeVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := gv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func getHistogramCount(hv *prometheus.HistogramVec, labels ...string) uint64 {
	m := &dto.Metric{}
	observer := hv.WithLabelValues(labels...)
	if c, ok := observer.(prometheus.Metric); ok {
		if err := c.Write(m); err != nil {
			return 0
		}
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func TestRecordJobComplete(t *testing.T) {
	RecordJobComplete("execute_step_job", "succeeded", 42*time.Second)

	val := getCounterValue(JobsTotal, "execute_step_job", "succeeded")
	if val < 1 {
		t.Errorf("JobsTotal = %f, want >= 1", val)
	}

	count := getHistogramCount(JobDurationSeconds, "execute_step_job")
	if count < 1 {
		t.Errorf("JobDurationSeconds sample count = %d, want >= 1", count)
	}
}

func TestRecordStepTerminal(t *testing.T) {
	RecordStepTerminal("completed")
	RecordStepTerminal("completed")

	val := getCounterValue(StepsTotal, "completed")
	if val < 2 {
		t.Errorf("StepsTotal = %f, want >= 2", val)
	}
}

func TestRecordPolicyFindingAndBlock(t *testing.T) {
	RecordPolicyFinding("critical")
	RecordPolicyBlock("required_sections")

	if val := getCounterValue(PolicyFindingsTotal, "critical"); val < 1 {
		t.Errorf("PolicyFindingsTotal = %f, want >= 1", val)
	}
	if val := getCounterValue(PolicyBlocksTotal, "required_sections"); val < 1 {
		t.Errorf("PolicyBlocksTotal = %f, want >= 1", val)
	}
}

func TestRecordCodexRunCostIgnoresNonPositive(t *testing.T) {
	RecordCodexRunCost("plan_protocol_job", 0)
	before := getCounterValue(CodexRunCostCentsTotal, "plan_protocol_job")

	RecordCodexRunCost("plan_protocol_job", 150)
	after := getCounterValue(CodexRunCostCentsTotal, "plan_protocol_job")

	if after != before+150 {
		t.Errorf("CodexRunCostCentsTotal = %f, want %f", after, before+150)
	}
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth("queued", 7)
	val := getGaugeVecValue(QueueDepth, "queued")
	if val != 7 {
		t.Errorf("QueueDepth = %f, want 7", val)
	}

	SetQueueDepth("queued", 3)
	val = getGaugeVecValue(QueueDepth, "queued")
	if val != 3 {
		t.Errorf("QueueDepth after update = %f, want 3", val)
	}
}
