// Package monitor polls an INA219 once per interval, publishes decoded
// samples on the bus and renders them on a character display.
//
// Topics (retained unless noted):
//
//	power/ina219/<name>/info
//	power/ina219/<name>/value
//	power/ina219/<name>/stats
//	power/ina219/<name>/error   (event)
//	monitor/state
package monitor

import (
	"context"
	"time"

	"github.com/golang/glog"

	"wattmeter-go/bus"
	"wattmeter-go/drivers/ina219"
	"wattmeter-go/errcode"
	"wattmeter-go/services/config"
	"wattmeter-go/types"
	"wattmeter-go/x/timex"
)

// Policy decides when the reset/config/calibration writes are sent.
type Policy uint8

const (
	ReconfigureAlways  Policy = iota // every cycle
	ReconfigureOnError               // first cycle and after a failed one
)

func ParsePolicy(s string) Policy {
	if s == "on_error" {
		return ReconfigureOnError
	}
	return ReconfigureAlways
}

type Options struct {
	Name         string
	Interval     time.Duration
	CycleTimeout time.Duration // per-cycle deadline; defaults to 1s
	Reconfigure  Policy
	StatsWindow  int
	Sensor       ina219.Config // for scaling and the info topic
}

type Service struct {
	conn  *bus.Connection
	rd    Reader
	opts  Options
	panel *Panel
	lsb   uint32

	win        *window
	seq        uint64
	configured bool
	state      types.State

	valueTopic, statsTopic, errTopic, infoTopic bus.Topic
}

var (
	topicConfigMonitor = bus.T("config", "monitor")
	topicState         = bus.T("monitor", "state")
)

// New builds the service. panel may be nil.
func New(conn *bus.Connection, rd Reader, opts Options, panel *Panel) *Service {
	if opts.Name == "" {
		opts.Name = "main"
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = time.Second
	}
	return &Service{
		conn:       conn,
		rd:         rd,
		opts:       opts,
		panel:      panel,
		lsb:        opts.Sensor.CurrentLSB_nA(),
		win:        newWindow(opts.StatsWindow),
		valueTopic: Topic(opts.Name, "value"),
		statsTopic: Topic(opts.Name, "stats"),
		errTopic:   Topic(opts.Name, "error"),
		infoTopic:  Topic(opts.Name, "info"),
	}
}

// Topic is power/ina219/<name>/<leaf>.
func Topic(name, leaf string) bus.Topic { return bus.T("power", "ina219", name, leaf) }

// Poll runs one cycle: read, decode, render, publish.
func (s *Service) Poll(ctx context.Context) (ina219.Sample, error) {
	configure := s.opts.Reconfigure == ReconfigureAlways || !s.configured

	cctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	raw, err := s.rd.Cycle(cctx, configure)
	cancel()
	if err != nil {
		s.configured = false
		s.win.errors++
		glog.Warningf("monitor: %s cycle: %v", s.rd.Name(), err)
		s.publishError(err)
		s.publishState(types.LinkDegraded, string(errcode.Of(err)), err)
		return ina219.Sample{}, err
	}
	if configure {
		s.configured = true
	}

	smp := ina219.Decode(raw, s.lsb)
	s.seq++
	s.win.add(smp)
	if smp.Overflow {
		glog.Warningf("monitor: math overflow (shunt %d µV)", smp.Shunt_uV)
		s.publishError(errcode.SensorOverflow)
	}
	glog.V(2).Infof("monitor: #%d Vs=%dµV Vb=%dmV I=%dµA P=%dµW",
		s.seq, smp.Shunt_uV, smp.Bus_mV, smp.Current_uA, smp.Power_uW)

	if s.panel != nil {
		s.panel.Render(smp)
	}
	s.conn.Publish(s.conn.NewMessage(s.valueTopic, s.value(smp), true))
	s.conn.Publish(s.conn.NewMessage(s.statsTopic, s.win.snapshot(), true))
	s.publishState(types.LinkUp, "polling", nil)
	return smp, nil
}

func (s *Service) value(smp ina219.Sample) types.PowerValue {
	return types.PowerValue{
		Seq:        s.seq,
		Shunt_uV:   smp.Shunt_uV,
		Bus_mV:     smp.Bus_mV,
		Current_uA: smp.Current_uA,
		Power_uW:   smp.Power_uW,
		Ready:      smp.Ready,
		Overflow:   smp.Overflow,
		TS:         timex.NowMs(),
		Raw: types.PowerRaw{
			Shunt:   smp.Raw.Shunt,
			Bus:     smp.Raw.Bus,
			Current: smp.Raw.Current,
			Power:   smp.Raw.Power,
		},
	}
}

// Run polls until ctx ends. Updates on config/monitor change the interval
// and reconfigure policy.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigMonitor)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishInfo()
	glog.Infof("monitor: %s reader, every %s", s.rd.Name(), s.opts.Interval)

	tick := time.NewTicker(s.opts.Interval)
	defer tick.Stop()
	_, _ = s.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.publishState(types.LinkDown, "stopped", nil)
			glog.Infof("monitor: stopping after %d samples", s.seq)
			return
		case <-tick.C:
			_, _ = s.Poll(ctx)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			if mc, ok := msg.Payload.(config.MonitorConfig); ok {
				s.apply(mc, tick)
			}
		}
	}
}

func (s *Service) apply(mc config.MonitorConfig, tick *time.Ticker) {
	if mc.Interval > 0 && mc.Interval != s.opts.Interval {
		s.opts.Interval = mc.Interval
		tick.Reset(mc.Interval)
		glog.Infof("monitor: interval set to %s", mc.Interval)
	}
	if mc.Reconfigure != "" {
		s.opts.Reconfigure = ParsePolicy(mc.Reconfigure)
	}
}

// Start runs the service in a goroutine.
func (s *Service) Start(ctx context.Context) {
	go s.Run(ctx)
}

func (s *Service) publishInfo() {
	cal, _ := s.opts.Sensor.Calibration()
	s.conn.Publish(s.conn.NewMessage(s.infoTopic, types.PowerInfo{
		Addr:          s.opts.Sensor.Address,
		Shunt_uOhm:    s.opts.Sensor.Shunt_uOhm,
		MaxCurrent_uA: s.opts.Sensor.MaxCurrent_uA,
		CurrentLSB_nA: s.lsb,
		Calibration:   cal,
		Config:        s.opts.Sensor.Word(),
		Reader:        s.rd.Name(),
	}, true))
}

func (s *Service) publishError(err error) {
	s.conn.Publish(s.conn.NewMessage(s.errTopic, types.PowerError{
		Code: string(errcode.Of(err)),
		Err:  err.Error(),
		TS:   timex.NowMs(),
	}, false))
}

// publishState publishes only on a change of level or status.
func (s *Service) publishState(level types.Link, status string, err error) {
	if s.state.Level == level && s.state.Status == status {
		return
	}
	s.state = types.State{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		s.state.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, s.state, true))
}

// Samples returns how many samples were decoded so far.
func (s *Service) Samples() uint64 { return s.seq }
