package i2csim

import (
	"context"
	"errors"

	"wattmeter-go/drivers/i2cm"
)

var (
	// ErrNoDevice is returned when the block does not answer the address.
	ErrNoDevice = errors.New("i2csim: address not acknowledged")
	// ErrBusy is returned when the block or another master owns the bus.
	ErrBusy = errors.New("i2csim: bus busy")
)

type response struct {
	cmd  i2cm.Command
	data byte
}

// session is a transfer by a remote master addressing the block as a slave.
type session struct {
	resp chan response
}

func (b *Block) begin(addr uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.owned || b.extBusy || b.ext != nil:
		return ErrBusy
	case !b.enabled || b.regs.Cfg&i2cm.CfgEnableSlave == 0 || b.regs.Addr != addr:
		return ErrNoDevice
	}
	b.ext = &session{resp: make(chan response, 1)}
	return nil
}

func (b *Block) end() {
	b.mu.Lock()
	b.ext = nil
	b.tracef("ext P")
	b.queueLocked(func() bool { return b.raiseLocked(i2cm.CSRStopStatus) })
	b.mu.Unlock()
}

// step presents one bus event to the slave and waits for its response.
func (b *Block) step(ctx context.Context, data byte, nak bool, bits i2cm.CSR) (response, error) {
	b.mu.Lock()
	ext := b.ext
	b.queueLocked(func() bool {
		b.data, b.nak = data, nak
		return b.raiseLocked(bits)
	})
	b.mu.Unlock()
	select {
	case r := <-ext.resp:
		return r, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// ExternalWrite plays a remote master writing data to the block at addr. It
// returns the number of data bytes the block acknowledged.
func (b *Block) ExternalWrite(ctx context.Context, addr uint8, data []byte) (int, error) {
	if err := b.begin(addr); err != nil {
		return 0, err
	}
	defer b.end()

	r, err := b.step(ctx, addr<<1, false, i2cm.CSRByteComplete|i2cm.CSRAddress)
	if err != nil {
		return 0, err
	}
	if r.cmd != i2cm.CmdAckReceive {
		return 0, ErrNoDevice
	}
	n := 0
	for _, v := range data {
		r, err := b.step(ctx, v, false, i2cm.CSRByteComplete)
		if err != nil {
			return n, err
		}
		if r.cmd != i2cm.CmdAckReceive {
			break
		}
		n++
	}
	return n, nil
}

// ExternalRead plays a remote master reading n bytes from the block at addr.
// The last byte is NAKed.
func (b *Block) ExternalRead(ctx context.Context, addr uint8, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if err := b.begin(addr); err != nil {
		return nil, err
	}
	defer b.end()

	r, err := b.step(ctx, addr<<1|1, false, i2cm.CSRByteComplete|i2cm.CSRAddress)
	if err != nil {
		return nil, err
	}
	if r.cmd != i2cm.CmdAckTransmit {
		return nil, ErrNoDevice
	}
	out := []byte{r.data}
	for len(out) < n {
		r, err := b.step(ctx, 0, false, i2cm.CSRByteComplete)
		if err != nil {
			return out, err
		}
		out = append(out, r.data)
	}
	// NAK the last byte; the slave answers with its release.
	if _, err := b.step(ctx, 0, true, i2cm.CSRByteComplete); err != nil {
		return out, err
	}
	return out, nil
}
