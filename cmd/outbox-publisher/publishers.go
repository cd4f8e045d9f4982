package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers keeps one publisher per topic for the life of the process
// so Pub/Sub batching and flow control span rows.
type topicPublishers struct {
	create publisherFactory

	mu      sync.Mutex
	byTopic map[string]publisher
}

func newTopicPublishers(create publisherFactory) *topicPublishers {
	return &topicPublishers{create: create, byTopic: map[string]publisher{}}
}

// get returns nil when the factory cannot build a publisher for topic.
func (p *topicPublishers) get(topic string) publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.byTopic[topic]; ok {
		return pub
	}
	pub := p.create(topic)
	if pub != nil {
		p.byTopic[topic] = pub
	}
	return pub
}

// stopAll flushes and forgets every cached publisher.
func (p *topicPublishers) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, pub := range p.byTopic {
		if stopper, ok := pub.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(p.byTopic, topic)
	}
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{pub: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.pub.Publish(ctx, msg)
}

func (p gcpPublisher) Stop() { p.pub.Stop() }
