package msg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Topic names a class of published messages.
type Topic int

// Topics
const (
	Status Topic = iota
	Topology
)

func (t Topic) String() string {
	switch t {
	case Status:
		return "Status"
	case Topology:
		return "Topology"
	}
	return fmt.Sprintf("Topic(%d)", int(t))
}

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is the envelope for everything sent over a PubSub.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans out published messages to topic subscribers. Slow subscribers
// drop messages instead of blocking the publisher.
type PubSub struct {
	mux         *sync.Mutex
	pid         uuid.UUID
	depth       int
	subscribers map[Topic]map[uuid.UUID]chan Msg
}

// NewPublisher returns a PubSub sending on behalf of pid. depth is the buffer
// size of every subscription channel.
func NewPublisher(pid uuid.UUID, depth int) *PubSub {
	return &PubSub{
		mux:         &sync.Mutex{},
		pid:         pid,
		depth:       depth,
		subscribers: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// Subscribe returns a channel receiving every message published on topic.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	subs, ok := p.subscribers[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.subscribers[topic] = subs
	}
	if _, exists := subs[pid]; exists {
		return nil, errors.New(fmt.Sprintf("%v already subscribed to %v", pid, topic))
	}
	ch := make(chan Msg, p.depth)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe closes every subscription held by pid.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subscribers {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish sends payload on topic under the publisher's PID.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.Forward(New(p.pid, topic, payload))
}

// Forward relays m unchanged to the subscribers of its topic.
func (p *PubSub) Forward(m Msg) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, ch := range p.subscribers[m.Topic()] {
		select {
		case ch <- m:
		default:
		}
	}
}

// Close ends every subscription.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for topic, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, topic)
	}
}

// Inbox subscribes pid to every topic on system and merges the
// subscriptions onto one channel. The channel closes once every
// subscription has been closed.
func Inbox(system Publisher, pid uuid.UUID, depth int, topics ...Topic) (<-chan Msg, error) {
	chans := make([]<-chan Msg, 0, len(topics))
	for _, topic := range topics {
		ch, err := system.Subscribe(pid, topic)
		if err != nil {
			system.Unsubscribe(pid)
			return nil, err
		}
		chans = append(chans, ch)
	}

	inbox := make(chan Msg, depth)
	wg := &sync.WaitGroup{}
	wg.Add(len(chans))
	for _, ch := range chans {
		go redirectMsg(ch, inbox, wg)
	}
	go func() {
		wg.Wait()
		close(inbox)
	}()
	return inbox, nil
}

func redirectMsg(chIn <-chan Msg, chOut chan<- Msg, wg *sync.WaitGroup) {
	defer wg.Done()
	for m := range chIn {
		chOut <- m
	}
}
