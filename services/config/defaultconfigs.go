package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML for that device
// -----------------------------------------------------------------------------

const cfgPico = `
device: pico
backend: machine
i2c:
  data_rate_hz: 100000
ina219:
  name: main
  address: 0x40
  shunt_uohm: 100000
  max_current_ua: 2000000
monitor:
  interval: 500ms
  reader: manual
  reconfigure: always
  display: hex
lcd:
  enabled: true
  address: 0x27
uart:
  enabled: true
  port: uart0
  baud: 115200
  format: text
heartbeat:
  interval: 2s
`

const cfgSim = `
device: sim
backend: sim
monitor:
  interval: 200ms
  reader: buffered
  reconfigure: on_error
  display: decimal
lcd:
  enabled: true
sim:
  shunt_uv: 50000
  bus_mv: 12000
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"sim":  []byte(cfgSim),
}
