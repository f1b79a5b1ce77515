package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/errcode"
	"wattmeter-go/services/config"
)

func TestScanSkipsMissingDevices(t *testing.T) {
	present := map[uint16]bool{0x27: true, 0x40: true}
	found, err := scan(func(a uint16) error {
		if present[a] {
			return nil
		}
		return errcode.Wrap(errcode.AddrNAK, "probe", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x27, 0x40}, found)

	_, err = scan(func(a uint16) error { return errcode.ArbLost })
	assert.ErrorIs(t, err, errcode.ArbLost)
}

func TestParseHelpers(t *testing.T) {
	a, d, err := parseAddrDir([]string{"0x40", "r"})
	require.NoError(t, err)
	assert.Equal(t, uint8(0x40), a)
	assert.Equal(t, i2cm.Read, d)

	_, _, err = parseAddrDir([]string{"0x80"})
	assert.Error(t, err)
	_, _, err = parseAddrDir([]string{"0x40", "x"})
	assert.Error(t, err)

	bs, err := parseBytes([]string{"0", "0x9f", "255"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0x9F, 0xFF}, bs)
	_, err = parseBytes([]string{"256"})
	assert.Error(t, err)

	assert.Equal(t, "39 9F", hexBytes([]byte{0x39, 0x9F}))
}

func simSession(t *testing.T) *session {
	t.Helper()
	cfg := config.Default()
	cfg.LCD.Enabled = true
	be, err := openSim(cfg)
	require.NoError(t, err)
	t.Cleanup(be.close)
	return &session{be: be}
}

func TestSessionManualRegisterRead(t *testing.T) {
	s := simSession(t)
	ctx := context.Background()

	steps := []struct {
		fn   func(context.Context, []string) (string, error)
		args []string
		want string
	}{
		{s.start, []string{"0x40", "w"}, ""},
		{s.write, []string{"0x00"}, ""},
		{s.restart, []string{"0x40", "r"}, ""},
		{s.read, []string{"2"}, "39 9F"},
		{s.stop, nil, ""},
	}
	for _, st := range steps {
		out, err := st.fn(ctx, st.args)
		require.NoError(t, err)
		assert.Equal(t, st.want, out)
	}
	out, err := s.status(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "state="+i2cm.Idle.String())
}

func TestSessionTxAndScan(t *testing.T) {
	s := simSession(t)
	ctx := context.Background()

	out, err := s.tx(ctx, []string{"0x40", "2", "0x05"})
	require.NoError(t, err)
	assert.Equal(t, "00 00", out)

	out, err = s.scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "0x27 0x40", out)

	_, err = s.start(ctx, []string{"0x41"})
	assert.True(t, errors.Is(err, errcode.AddrNAK), "got %v", err)
}

func TestSessionSimInputs(t *testing.T) {
	s := simSession(t)
	_, err := s.simInputs(context.Background(), []string{"10000", "5000"})
	require.NoError(t, err)
	_, err = s.simInputs(context.Background(), []string{"1"})
	assert.Error(t, err)
}

func TestNewReaderFallsBackWithoutEngine(t *testing.T) {
	cfg := config.Default()
	be, err := openSim(cfg)
	require.NoError(t, err)
	defer be.close()

	rd, err := newReader(cfg, be)
	require.NoError(t, err)
	assert.Equal(t, "manual", rd.Name())

	rd, err = newReader(cfg, &backend{bus: be.bus})
	require.NoError(t, err)
	assert.Equal(t, "buffered", rd.Name())
}
