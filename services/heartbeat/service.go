// Package heartbeat publishes a periodic liveness record on system/heartbeat.
package heartbeat

import (
	"context"
	"time"

	"github.com/golang/glog"

	"wattmeter-go/bus"
	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/services/config"
	"wattmeter-go/types"
	"wattmeter-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("system", "heartbeat")
)

// Engine is the engine view the heartbeat reports.
type Engine interface {
	State() i2cm.State
	MasterStatus() i2cm.Status
}

type Service struct {
	conn     *bus.Connection
	eng      Engine
	interval time.Duration
	started  time.Time
	seq      uint64
}

// New returns a heartbeat. eng may be nil.
func New(conn *bus.Connection, eng Engine, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{conn: conn, eng: eng, interval: interval}
}

func (s *Service) serviceLoop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigHeartbeat)
	defer s.conn.Unsubscribe(cfgSub)

	s.started = time.Now()
	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			glog.Info("heartbeat: stopping")
			return
		case <-tick.C:
			s.beat()
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			hc, ok := msg.Payload.(config.HeartbeatConfig)
			if !ok || hc.Interval <= 0 || hc.Interval == s.interval {
				continue
			}
			s.interval = hc.Interval
			tick.Reset(hc.Interval)
			glog.Infof("heartbeat: interval set to %s", hc.Interval)
		}
	}
}

func (s *Service) beat() {
	s.seq++
	hb := types.Heartbeat{
		Seq:      s.seq,
		Uptime_s: int64(time.Since(s.started) / time.Second),
		TS:       timex.NowMs(),
	}
	if s.eng != nil {
		hb.I2CState = s.eng.State().String()
		hb.I2CStatus = s.eng.MasterStatus().String()
	}
	glog.V(1).Infof("heartbeat: #%d i2c=%s", hb.Seq, hb.I2CState)
	s.conn.Publish(s.conn.NewMessage(topicHeartbeat, hb, false))
}

// Start runs the heartbeat in a goroutine.
func (s *Service) Start(ctx context.Context) { go s.serviceLoop(ctx) }
