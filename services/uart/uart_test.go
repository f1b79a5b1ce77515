package uart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wattmeter-go/bus"
	"wattmeter-go/types"
)

var sample = types.PowerValue{Seq: 7, Shunt_uV: -50, Bus_mV: 12_000, Current_uA: 499_884, Power_uW: 5_998_618}

func TestAppendLineText(t *testing.T) {
	line, err := AppendLine(nil, "main", sample, FormatText)
	require.NoError(t, err)
	assert.Equal(t, "main seq=7 vs_uV=-50 vb_mV=12000 i_uA=499884 p_uW=5998618\n", string(line))

	ovf := sample
	ovf.Overflow = true
	line, err = AppendLine(nil, "x", ovf, FormatText)
	require.NoError(t, err)
	assert.Contains(t, string(line), " ovf\n")
}

func TestAppendLineJSON(t *testing.T) {
	line, err := AppendLine(nil, "main", sample, FormatJSON)
	require.NoError(t, err)
	require.Equal(t, byte('\n'), line[len(line)-1])

	var m map[string]any
	require.NoError(t, json.Unmarshal(line, &m))
	assert.Equal(t, "main", m["name"])
	assert.Equal(t, 499884.0, m["current_uA"])
	assert.Equal(t, FormatJSON, ParseFormat("json"))
}

type syncBuf struct {
	mu  sync.Mutex
	b   bytes.Buffer
	err error
}

func (s *syncBuf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.b.Write(p)
}

func (s *syncBuf) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestServiceWritesPublishedValues(t *testing.T) {
	conn := bus.NewBus(8).NewConnection("uart_test")
	out := &syncBuf{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := conn.Subscribe(topicState)
	go New(conn, out, FormatText).Run(ctx)
	require.Eventually(t, func() bool {
		select {
		case m := <-state.Channel():
			return m.Payload.(types.State).Level == types.LinkUp
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	conn.Publish(conn.NewMessage(bus.T("power", "ina219", "aux", "value"), sample, true))
	require.Eventually(t, func() bool {
		return out.String() == "aux seq=7 vs_uV=-50 vb_mV=12000 i_uA=499884 p_uW=5998618\n"
	}, time.Second, 5*time.Millisecond)

	out.mu.Lock()
	out.err = errors.New("unplugged")
	out.mu.Unlock()
	conn.Publish(conn.NewMessage(bus.T("power", "ina219", "aux", "value"), sample, true))
	require.Eventually(t, func() bool {
		select {
		case m := <-state.Channel():
			return m.Payload.(types.State).Status == "write_failed"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestOpenNeedsPort(t *testing.T) {
	_, err := Open("", 115200)
	assert.ErrorIs(t, err, ErrNoPort)
}
