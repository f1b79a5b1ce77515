package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wattmeter-go/bus"
	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/drivers/i2cm/i2csim"
	"wattmeter-go/drivers/ina219"
	"wattmeter-go/drivers/lcd"
	"wattmeter-go/errcode"
	"wattmeter-go/services/config"
	"wattmeter-go/types"
)

type rig struct {
	eng  *i2cm.Engine
	blk  *i2csim.Block
	sim  *ina219.Simulated
	conn *bus.Connection
	disp *lcd.Buffer
}

func newRig(t *testing.T) rig {
	t.Helper()
	blk := i2csim.New()
	t.Cleanup(blk.Close)
	cfg := i2cm.DefaultConfig()
	cfg.ByteTimeout = 50 * time.Millisecond
	cfg.XferTimeout = 200 * time.Millisecond
	eng, err := i2cm.New(blk, cfg)
	require.NoError(t, err)
	eng.Start()

	sim := ina219.NewSimulated()
	sim.SetInputs(50_000, 12_000)
	blk.Attach(ina219.AddressDefault, sim)
	return rig{
		eng:  eng,
		blk:  blk,
		sim:  sim,
		conn: bus.NewBus(16).NewConnection("monitor_test"),
		disp: lcd.NewBuffer(16, 2),
	}
}

var fastAcquire = Acquire{Retries: 3, Backoff: time.Millisecond}

func (r rig) manual(t *testing.T) *ManualReader {
	t.Helper()
	rd, err := NewManualReader(r.eng, ina219.DefaultConfig(), fastAcquire)
	require.NoError(t, err)
	return rd
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var wantRaw = ina219.Raw{Shunt: 5000, Bus: 3000<<3 | 0x2, Current: 8190, Power: 4914}

// -----------------------------------------------------------------------------
// readers
// -----------------------------------------------------------------------------

func TestManualReader_ConfiguresThenReads(t *testing.T) {
	r := newRig(t)
	rd := r.manual(t)

	raw, err := rd.Cycle(ctxT(t), true)
	require.NoError(t, err)
	assert.Equal(t, wantRaw, raw)
	assert.Equal(t, i2cm.Idle, r.eng.State())

	tr := r.blk.Trace()
	require.GreaterOrEqual(t, len(tr), 18)
	assert.Equal(t, []string{
		"S 40W ack", "W 00 ack", "W 80 ack", "W 00 ack",
		"Sr 40W ack", "W 00 ack", "W 39 ack", "W 9F ack",
		"Sr 40W ack", "W 05 ack", "W 1A ack", "W 36 ack",
		"Sr 40W ack", "W 01 ack", "Sr 40R ack", "R 13", "R 88",
	}, tr[:17])
	assert.Equal(t, "P", tr[len(tr)-1])
}

func TestManualReader_SkipsSetupWhenNotAsked(t *testing.T) {
	r := newRig(t)
	rd := r.manual(t)
	_, err := rd.Cycle(ctxT(t), true)
	require.NoError(t, err)

	r.blk.ResetTrace()
	raw, err := rd.Cycle(ctxT(t), false)
	require.NoError(t, err)
	assert.Equal(t, uint16(5000), raw.Shunt)
	assert.Equal(t, []string{"S 40W ack", "W 01 ack", "Sr 40R ack", "R 13", "R 88"}, r.blk.Trace()[:5])
}

func TestManualReader_AcquireRetriesArbitrationLoss(t *testing.T) {
	r := newRig(t)
	rd := r.manual(t)
	r.blk.InjectArbitrationLoss(2)

	raw, err := rd.Cycle(ctxT(t), true)
	require.NoError(t, err)
	assert.Equal(t, wantRaw, raw)
	assert.Equal(t, []string{"arb_lost", "release", "arb_lost", "release", "S 40W ack"}, r.blk.Trace()[:5])
}

func TestManualReader_AcquireIsBounded(t *testing.T) {
	r := newRig(t)
	rd := r.manual(t)
	r.blk.SetBusBusy(true)

	start := time.Now()
	_, err := rd.Cycle(ctxT(t), true)
	assert.ErrorIs(t, err, errcode.BusBusy)
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rd.Cycle(ctx, true)
	assert.ErrorIs(t, err, errcode.Timeout)
}

func TestManualReader_MissingDevice(t *testing.T) {
	r := newRig(t)
	r.blk.Detach(ina219.AddressDefault)
	rd := r.manual(t)

	_, err := rd.Cycle(ctxT(t), true)
	assert.ErrorIs(t, err, errcode.AddrNAK)
	assert.Equal(t, i2cm.Idle, r.eng.State())
}

func TestBufferedReader(t *testing.T) {
	r := newRig(t)
	rd, err := NewBufferedReader(r.eng, ina219.DefaultConfig())
	require.NoError(t, err)

	raw, err := rd.Cycle(ctxT(t), true)
	require.NoError(t, err)
	assert.Equal(t, wantRaw, raw)
	assert.Equal(t, "buffered", rd.Name())
}

func TestReaderRejectsBadSensorConfig(t *testing.T) {
	r := newRig(t)
	cfg := ina219.DefaultConfig()
	cfg.Shunt_uOhm = 0
	_, err := NewManualReader(r.eng, cfg, Acquire{})
	assert.ErrorIs(t, err, ina219.ErrShuntUnset)
	_, err = NewBufferedReader(r.eng, cfg)
	assert.ErrorIs(t, err, ina219.ErrShuntUnset)
}

// -----------------------------------------------------------------------------
// service
// -----------------------------------------------------------------------------

func newService(r rig, rd Reader, p Policy, f Format) *Service {
	return New(r.conn, rd, Options{
		Name:        "main",
		Interval:    20 * time.Millisecond,
		Reconfigure: p,
		StatsWindow: 4,
		Sensor:      ina219.DefaultConfig(),
	}, NewPanel(r.disp, f))
}

func next(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatalf("no message on %s", sub.Topic())
		return nil
	}
}

func TestPoll_PublishesAndRendersHex(t *testing.T) {
	r := newRig(t)
	svc := newService(r, r.manual(t), ReconfigureAlways, FormatHex)

	smp, err := svc.Poll(ctxT(t))
	require.NoError(t, err)
	assert.Equal(t, int64(499_884), smp.Current_uA)

	assert.Equal(t, "Vs:1388  I:1FFE ", r.disp.Line(0))
	assert.Equal(t, "Vb:0BB8   P:1332", r.disp.Line(1))

	val := next(t, r.conn.Subscribe(Topic("main", "value")))
	pv, ok := val.Payload.(types.PowerValue)
	require.True(t, ok)
	assert.Equal(t, uint64(1), pv.Seq)
	assert.Equal(t, int32(12_000), pv.Bus_mV)
	assert.Equal(t, int64(5_998_618), pv.Power_uW)
	assert.Equal(t, uint16(8190), pv.Raw.Current)

	st := next(t, r.conn.Subscribe(topicState)).Payload.(types.State)
	assert.Equal(t, types.LinkUp, st.Level)
}

func TestPoll_RendersDecimal(t *testing.T) {
	r := newRig(t)
	svc := newService(r, r.manual(t), ReconfigureAlways, FormatDecimal)
	_, err := svc.Poll(ctxT(t))
	require.NoError(t, err)

	assert.Equal(t, "Vs:50.00 I:499  ", r.disp.Line(0))
	assert.Equal(t, "Vb:12.00  P:5998", r.disp.Line(1))
}

func TestPanel_DecimalWideValues(t *testing.T) {
	for _, tc := range []struct {
		name   string
		sample ina219.Sample
		line0  string
		line1  string
	}{
		{"12W", ina219.Sample{Bus_mV: 12_000, Current_uA: 1_000_000, Power_uW: 12_000_000},
			"Vs:0.00  I:1000 ", "Vb:12.00  P:12W "},
		{"64W", ina219.Sample{Bus_mV: 16_000, Current_uA: 4_000_000, Power_uW: 64_000_000},
			"Vs:0.00  I:4000 ", "Vb:16.00  P:64W "},
		{"negative shunt", ina219.Sample{Shunt_uV: -320_000, Bus_mV: 5_000, Current_uA: -32_000_000},
			"Vs:-320.0I:-32A ", "Vb:5.00   P:0   "},
		{"nothing fits", ina219.Sample{Shunt_uV: -3_200_000, Power_uW: 99_999_000_000},
			"Vs:-3200 I:0    ", "Vb:0.00   P:####"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := lcd.NewBuffer(16, 2)
			NewPanel(d, FormatDecimal).Render(tc.sample)
			assert.Equal(t, tc.line0, d.Line(0))
			assert.Equal(t, tc.line1, d.Line(1))
		})
	}
}

func TestPoll_ReconfigureOnError(t *testing.T) {
	r := newRig(t)
	svc := newService(r, r.manual(t), ReconfigureOnError, FormatHex)
	ctx := ctxT(t)

	_, err := svc.Poll(ctx)
	require.NoError(t, err)
	assert.Contains(t, r.blk.Trace(), "W 05 ack")

	r.blk.ResetTrace()
	_, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, r.blk.Trace(), "W 05 ack")

	// A failed cycle forces the setup writes on the next one.
	errSub := r.conn.Subscribe(Topic("main", "error"))
	r.blk.Detach(ina219.AddressDefault)
	_, err = svc.Poll(ctx)
	require.ErrorIs(t, err, errcode.AddrNAK)
	pe := next(t, errSub).Payload.(types.PowerError)
	assert.Equal(t, string(errcode.AddrNAK), pe.Code)

	r.blk.Attach(ina219.AddressDefault, r.sim)
	r.blk.ResetTrace()
	_, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.Contains(t, r.blk.Trace(), "W 05 ack")

	stats := next(t, r.conn.Subscribe(Topic("main", "stats"))).Payload.(types.PowerStats)
	assert.Equal(t, 3, stats.N)
	assert.Equal(t, uint64(1), stats.Errors)
	assert.InDelta(t, 12_000, stats.BusMean_mV, 0.001)
	assert.InDelta(t, 0, stats.BusStd_mV, 0.001)
}

func TestPoll_OverflowIsReported(t *testing.T) {
	r := newRig(t)
	r.sim.SetInputs(400_000, 12_000)
	svc := newService(r, r.manual(t), ReconfigureAlways, FormatHex)
	errSub := r.conn.Subscribe(Topic("main", "error"))

	smp, err := svc.Poll(ctxT(t))
	require.NoError(t, err)
	assert.True(t, smp.Overflow)
	assert.Equal(t, string(errcode.SensorOverflow), next(t, errSub).Payload.(types.PowerError).Code)
}

func TestRun_PollsAndFollowsConfig(t *testing.T) {
	r := newRig(t)
	rd, err := NewBufferedReader(r.eng, ina219.DefaultConfig())
	require.NoError(t, err)
	svc := newService(r, rd, ReconfigureOnError, FormatHex)

	sub := r.conn.Subscribe(Topic("main", "value"))
	info := r.conn.Subscribe(Topic("main", "info"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	pi := next(t, info).Payload.(types.PowerInfo)
	assert.Equal(t, uint16(6710), pi.Calibration)
	assert.Equal(t, "buffered", pi.Reader)

	r.conn.Publish(r.conn.NewMessage(topicConfigMonitor, config.MonitorConfig{Interval: 5 * time.Millisecond}, true))
	var last types.PowerValue
	for last.Seq < 3 {
		last = next(t, sub).Payload.(types.PowerValue)
	}
	assert.Equal(t, int32(50_000), last.Shunt_uV)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestWindowStats(t *testing.T) {
	w := newWindow(2)
	assert.Equal(t, 0, w.snapshot().N)
	w.add(ina219.Sample{Bus_mV: 10, Current_uA: 1, Power_uW: 5})
	s := w.snapshot()
	assert.Equal(t, 1, s.N)
	assert.Equal(t, 0.0, s.BusStd_mV)

	w.add(ina219.Sample{Bus_mV: 20, Current_uA: 3, Power_uW: 7})
	w.add(ina219.Sample{Bus_mV: 30, Current_uA: 5, Power_uW: 9}) // evicts the first
	s = w.snapshot()
	assert.Equal(t, 2, s.N)
	assert.InDelta(t, 25, s.BusMean_mV, 1e-9)
	assert.InDelta(t, 7.0710678, s.BusStd_mV, 1e-6)
	assert.Equal(t, 3.0, s.CurMin_uA)
	assert.Equal(t, 5.0, s.CurMax_uA)
	assert.Equal(t, 9.0, s.PowerMax_uW)
}

func TestParse(t *testing.T) {
	assert.Equal(t, ReconfigureOnError, ParsePolicy("on_error"))
	assert.Equal(t, ReconfigureAlways, ParsePolicy(""))
	assert.Equal(t, FormatDecimal, ParseFormat("decimal"))
	assert.Equal(t, FormatHex, ParseFormat("hex"))
}
