package observability

import (
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trainer_active_sessions",
		Help: "Number of open practice sessions",
	})

	prompts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainer_prompts_total",
		Help: "Total number of prompts played",
	})

	turnsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_turns_total",
		Help: "Total number of listening turns",
	}, []string{"mode"})

	sentencesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainer_sentences_completed_total",
		Help: "Total number of sentences reproduced in full",
	})

	drillOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_drill_outcomes_total",
		Help: "Total number of isolated word drills by outcome",
	}, []string{"outcome"}) // outcome: "success" or "wrong"

	nearMiss = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trainer_drill_near_miss_score",
		Help:    "Best similarity of a failed drill attempt",
		Buckets: []float64{0.2, 0.4, 0.6, 0.7, 0.8, 0.9, 0.95},
	})

	sessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_session_errors_total",
		Help: "Total number of user-visible session errors",
	}, []string{"kind"})

	transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_transcriptions_total",
		Help: "Total number of transcription requests",
	}, []string{"status"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trainer_transcription_latency_seconds",
		Help:    "Transcription latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	syntheses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_syntheses_total",
		Help: "Total number of prompt synthesis requests",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trainer_synthesis_latency_seconds",
		Help:    "Prompt synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	voiceBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainer_voice_bytes_total",
		Help: "Total voice note bytes received",
	})
)

// SessionMetrics records the observable transitions of one practice session
type SessionMetrics struct {
	last domain.Snapshot
}

// NewSessionMetrics creates a tracker and counts the session as active
func NewSessionMetrics(initial domain.Snapshot) *SessionMetrics {
	activeSessions.Inc()
	return &SessionMetrics{last: initial}
}

// Observe compares next with the previous snapshot and records every
// transition between them
func (m *SessionMetrics) Observe(next domain.Snapshot) {
	prev := m.last
	m.last = next

	if next.Speaking && !prev.Speaking {
		prompts.Inc()
	}
	if next.Listening && (!prev.Listening || next.Mode != prev.Mode) {
		turnsStarted.WithLabelValues(string(next.Mode)).Inc()
	}
	if next.Completed && !prev.Completed {
		sentencesCompleted.Inc()
	}
	if next.IsolatedSuccess != domain.NoIndex && next.IsolatedSuccess != prev.IsolatedSuccess {
		drillOutcomes.WithLabelValues("success").Inc()
	}
	if next.Wrong && !prev.Wrong {
		drillOutcomes.WithLabelValues("wrong").Inc()
		nearMiss.Observe(next.NearMiss)
	}
	if next.Error != nil && (prev.Error == nil || *prev.Error != *next.Error) {
		sessionErrors.WithLabelValues(string(next.Error.Kind)).Inc()
	}
}

// Close marks the session as ended
func (m *SessionMetrics) Close() {
	activeSessions.Dec()
}

// RecordTranscription records one transcription request
func RecordTranscription(start time.Time, err error) {
	transcriptionLatency.Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	transcriptions.WithLabelValues(status).Inc()
}

// RecordSynthesis records one prompt synthesis request
func RecordSynthesis(start time.Time, err error) {
	synthesisLatency.Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	syntheses.WithLabelValues(status).Inc()
}

// RecordVoiceBytes records the size of a received voice note
func RecordVoiceBytes(n int64) {
	voiceBytes.Add(float64(n))
}
