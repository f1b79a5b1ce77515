package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	InvalidParams Code = "invalid_params"
	Unsupported   Code = "unsupported"
	Timeout       Code = "timeout"

	// I2C master results.
	NotReady      Code = "not_ready"       // engine not in a state that permits the call
	BusBusy       Code = "bus_busy"        // another master owns the bus
	NAK           Code = "nak"             // last byte not acknowledged
	AddrNAK       Code = "addr_nak"        // address phase not acknowledged
	ArbLost       Code = "arb_lost"        // arbitration lost to another master
	ShortXfer     Code = "short_xfer"      // target NAKed before the buffer was sent
	StartGenAbort Code = "start_gen_abort" // start condition could not be generated

	// Sensor side.
	SensorOverflow Code = "sensor_overflow"

	Error Code = "error" // generic fallback
)

// E keeps an operation name, message and cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.NAK) match a wrapped code. An address NAK
// also matches NAK.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && (c == e.C || (c == NAK && e.C == AddrNAK))
}

// Wrap builds an *E for op. A nil cause is allowed.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return Of(inner)
		}
	}
	return Error
}

// Retryable reports whether a transfer that failed with err may succeed if
// simply attempted again.
func Retryable(err error) bool {
	switch Of(err) {
	case BusBusy, ArbLost, StartGenAbort, NotReady, AddrNAK, NAK:
		return true
	default:
		return false
	}
}
