package i2cm

import "github.com/golang/glog"

type backup struct {
	enabled bool
	regs    Registers
}

// SaveConfig copies the configuration registers to the backup.
func (e *Engine) SaveConfig() { e.backup.regs = e.hw.Registers() }

// RestoreConfig writes the backup to the configuration registers.
func (e *Engine) RestoreConfig() { e.hw.SetRegisters(e.backup.regs) }

// Sleep stops the block if it is running and saves its configuration.
func (e *Engine) Sleep() {
	e.backup.enabled = e.hw.Enabled()
	if e.backup.enabled {
		e.Stop()
	}
	e.SaveConfig()
	glog.V(1).Infof("i2cm: sleep (was enabled=%t)", e.backup.enabled)
}

// Wakeup restores the configuration and re-enables the block if Sleep found
// it running.
func (e *Engine) Wakeup() {
	e.RestoreConfig()
	if e.backup.enabled {
		e.Enable()
		e.enableInt()
	}
	glog.V(1).Infof("i2cm: wakeup")
}
