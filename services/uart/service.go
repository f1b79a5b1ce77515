// Package uart writes each published power sample to a serial line.
package uart

import (
	"context"
	"io"

	"github.com/golang/glog"

	"wattmeter-go/bus"
	"wattmeter-go/types"
	"wattmeter-go/x/timex"
)

var (
	topicValues = bus.T("power", "ina219", "+", "value")
	topicState  = bus.T("uart", "state")
)

type Service struct {
	w      io.Writer
	format Format
	conn   *bus.Connection
	buf    []byte
	state  types.State
}

func New(conn *bus.Connection, w io.Writer, f Format) *Service {
	return &Service{w: w, format: f, conn: conn, buf: make([]byte, 0, 160)}
}

// Run copies samples to the writer until ctx ends. A failed write is logged
// and the line dropped.
func (s *Service) Run(ctx context.Context) {
	sub := s.conn.Subscribe(topicValues)
	defer s.conn.Unsubscribe(sub)
	s.publishState(types.LinkUp, "writing", nil)

	for {
		select {
		case <-ctx.Done():
			s.publishState(types.LinkDown, "stopped", nil)
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			v, ok := msg.Payload.(types.PowerValue)
			if !ok {
				continue
			}
			name, _ := msg.Topic.At(2).(string)
			if err := s.write(name, v); err != nil {
				glog.Warningf("uart: write: %v", err)
				s.publishState(types.LinkDegraded, "write_failed", err)
				continue
			}
			s.publishState(types.LinkUp, "writing", nil)
		}
	}
}

func (s *Service) write(name string, v types.PowerValue) error {
	line, err := AppendLine(s.buf[:0], name, v, s.format)
	if err != nil {
		return err
	}
	s.buf = line[:0]
	_, err = s.w.Write(line)
	return err
}

func (s *Service) Start(ctx context.Context) { go s.Run(ctx) }

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
