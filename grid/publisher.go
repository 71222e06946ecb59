package grid

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// sourceSummary is the per-source entry of the combined summaries message
type sourceSummary struct {
	Source  string       `json:"source"`
	BatchID string       `json:"batchId"`
	Summary BatchSummary `json:"summary"`
}

// Publisher publishes merge results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	summaries     map[string]sourceSummary
	mu            sync.RWMutex
}

// NewPublisher creates a new result publisher.
// If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "gridmerge"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true,
		summaries:     make(map[string]sourceSummary),
	}
}

// SetPrefix overrides the topic prefix (config publishPrefix)
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// PublishResult publishes the merged channels and summary of r, then the
// combined summaries of every source seen so far.
func (p *Publisher) PublishResult(r *MergeResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	src := sourceKey(r.Source)

	p.mu.Lock()
	p.summaries[src] = sourceSummary{Source: src, BatchID: r.BatchID, Summary: r.Summary}
	p.mu.Unlock()

	payload, err := EncodeResult(r)
	if err != nil {
		return err
	}
	if err := p.publish(fmt.Sprintf("%s/%s/merged", p.publishPrefix, src), payload); err != nil {
		return err
	}

	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if err := p.publish(fmt.Sprintf("%s/%s/summary", p.publishPrefix, src), summary); err != nil {
		return err
	}

	log.Printf("Published batch %s for %s: %d points, %d flagged",
		r.BatchID, src, r.Summary.Count, r.Summary.Flagged)

	return p.publishCombined()
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// publishCombined publishes every known source summary to {prefix}/summaries
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	entries := make([]sourceSummary, 0, len(p.summaries))
	for _, s := range p.summaries {
		entries = append(entries, s)
	}
	p.mu.RUnlock()

	if len(entries) == 0 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Source < entries[j].Source })

	message := map[string]interface{}{
		"sources":   entries,
		"timestamp": time.Now().Unix(),
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined summaries: %w", err)
	}
	return p.publish(fmt.Sprintf("%s/summaries", p.publishPrefix), payload)
}

// GetSummary returns the last published summary for a source
func (p *Publisher) GetSummary(source string) (BatchSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.summaries[sourceKey(source)]
	return s.Summary, ok
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
