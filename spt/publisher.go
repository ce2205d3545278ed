package spt

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix when none is configured
const DefaultPublishPrefix = "sptrack"

// StatusMessage is published for every status line of a run
type StatusMessage struct {
	RunID     string `json:"runId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ProgressMessage reports per-track progress of a run
type ProgressMessage struct {
	RunID     string `json:"runId"`
	Stage     string `json:"stage"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher sends run status, progress and summaries to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a run publisher. MQTT_PUBLISH_PREFIX overrides the
// configured prefix. If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, cfg *MQTTConfig) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" && cfg != nil {
		prefix = cfg.PublishPrefix
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// PublishStatus publishes one status line to <prefix>/status
func (p *Publisher) PublishStatus(runID, message string) error {
	return p.publish("status", p.retain, StatusMessage{
		RunID:     runID,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

// PublishProgress publishes progress to <prefix>/progress. Progress is never
// retained.
func (p *Publisher) PublishProgress(runID, stage string, done, total int) error {
	return p.publish("progress", false, ProgressMessage{
		RunID:     runID,
		Stage:     stage,
		Done:      done,
		Total:     total,
		Timestamp: time.Now().Unix(),
	})
}

// PublishSummary publishes the run summary and diffusion fit to <prefix>/summary
func (p *Publisher) PublishSummary(res *Result) error {
	message := map[string]interface{}{
		"summary":   res.Summary,
		"rejected":  res.Rejected,
		"excluded":  res.Excluded,
		"fit":       res.Fit,
		"timestamp": time.Now().Unix(),
	}
	return p.publish("summary", p.retain, message)
}

// PublishResult publishes every status line followed by the summary
func (p *Publisher) PublishResult(res *Result) error {
	for _, msg := range res.Status {
		if err := p.PublishStatus(res.Summary.RunID, msg); err != nil {
			return err
		}
	}
	return p.PublishSummary(res)
}

// ProgressFunc returns a callback publishing progress for one stage. Publish
// failures are logged and otherwise ignored.
func (p *Publisher) ProgressFunc(runID, stage string) ProgressFunc {
	return func(done, total int) {
		if err := p.PublishProgress(runID, stage, done, total); err != nil {
			Logf("[mqtt] progress %s %d/%d: %v", stage, done, total, err)
		}
	}
}

func (p *Publisher) publish(suffix string, retain bool, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
