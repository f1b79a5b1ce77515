// Package bridge forwards local bus traffic to an MQTT broker.
//
// It waits for a config.BridgeConfig on config/bridge, connects, and
// republishes every message matching the configured forward patterns as
// JSON on <prefix>/<local topic>. Link state is retained on bridge/state.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"wattmeter-go/bus"
	"wattmeter-go/services/config"
	"wattmeter-go/types"
	"wattmeter-go/x/strx"
	"wattmeter-go/x/timex"
)

var (
	topicConfig = bus.T("config", "bridge")
	topicState  = bus.T("bridge", "state")
)

type Service struct {
	conn *bus.Connection
	dial Dialer

	mu     sync.Mutex
	curRun context.CancelFunc
	state  types.State
}

// New returns a bridge using dial, or DialMQTT when dial is nil.
func New(conn *bus.Connection, dial Dialer) *Service {
	if dial == nil {
		dial = DialMQTT
	}
	return &Service{conn: conn, dial: dial}
}

func (s *Service) Start(ctx context.Context) { go s.Run(ctx) }

// Run supervises one link per received config until ctx ends.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState(types.LinkIdle, "awaiting_config", nil)
	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			s.publishState(types.LinkDown, "stopped", nil)
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState(types.LinkError, "config_subscription_closed", nil)
				return
			}
			cfg, ok := msg.Payload.(config.BridgeConfig)
			if !ok {
				s.publishState(types.LinkError, "config_decode_failed", fmt.Errorf("payload %T", msg.Payload))
				continue
			}
			if !cfg.Enabled {
				s.stopCurrent()
				s.publishState(types.LinkIdle, "disabled", nil)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg config.BridgeConfig) {
	s.stopCurrent()
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.curRun = cancel
	s.mu.Unlock()
	go s.runLink(ctx, cfg)
}

func (s *Service) runLink(ctx context.Context, cfg config.BridgeConfig) {
	opts, urlPrefix, err := ClientOptionsFromURL(cfg.Broker)
	if err != nil {
		s.publishState(types.LinkError, "broker_url_invalid", err)
		return
	}
	prefix := strx.Coalesce(urlPrefix, cfg.TopicPrefix)
	opts.SetClientID(strx.Coalesce(cfg.ClientID, opts.ClientID, "wattmeter"))
	opts.SetOnConnectHandler(func(paho.Client) {
		glog.Infof("bridge: connected to %s", cfg.Broker)
		s.publishState(types.LinkUp, "connected", nil)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		glog.Warningf("bridge: connection lost: %v", err)
		s.publishState(types.LinkDegraded, "connection_lost", err)
	})

	backoff := timex.Backoff(250*time.Millisecond, 30*time.Second)
	var cl Client
	for {
		if cl, err = s.dial(ctx, opts); err == nil {
			break
		}
		delay := backoff()
		s.publishState(types.LinkDegraded, "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !timex.Sleep(ctx, delay) {
			return
		}
	}
	defer cl.Close()

	subs := make([]*bus.Subscription, 0, len(cfg.Forward))
	for _, p := range cfg.Forward {
		subs = append(subs, s.conn.Subscribe(Pattern(p)))
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *bus.Subscription) {
			defer wg.Done()
			s.forward(ctx, cl, prefix, cfg.QoS, sub)
		}(sub)
	}
	wg.Wait()
}

func (s *Service) forward(ctx context.Context, cl Client, prefix string, qos byte, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			payload, err := encode(msg.Payload)
			if err != nil {
				glog.Warningf("bridge: encode %s: %v", msg.Topic, err)
				continue
			}
			topic := RemoteTopic(prefix, msg.Topic)
			glog.V(2).Infof("bridge: PUB %q (%d bytes)", topic, len(payload))
			if err := cl.Publish(topic, qos, msg.Retained, payload); err != nil {
				s.publishState(types.LinkDegraded, "publish_failed", err)
				continue
			}
			s.publishState(types.LinkUp, "connected", nil)
		}
	}
}

// Pattern converts a '/'-separated pattern to a bus topic.
func Pattern(p string) bus.Topic {
	parts := strx.Split(p, '/')
	toks := make([]any, len(parts))
	for i, s := range parts {
		toks[i] = s
	}
	return bus.T(toks...)
}

// RemoteTopic prefixes a local topic for the broker.
func RemoteTopic(prefix string, t bus.Topic) string {
	if prefix == "" {
		return t.String()
	}
	return prefix + "/" + t.String()
}

func encode(p any) ([]byte, error) {
	switch v := p.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return json.Marshal(p)
}

// publishState publishes only on a change of level or status. It is
// called from client callbacks as well as the link goroutines.
func (s *Service) publishState(level types.Link, status string, err error) {
	s.mu.Lock()
	if s.state.Level == level && s.state.Status == status {
		s.mu.Unlock()
		return
	}
	s.state = types.State{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		s.state.Error = err.Error()
	}
	st := s.state
	s.mu.Unlock()
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}
