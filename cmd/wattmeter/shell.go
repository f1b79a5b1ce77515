package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/x/conv"
)

var shellCmd = &cobra.Command{
	Use:   "shell [command...]",
	Short: "Drive the I2C engine byte by byte",
	Long: "Interactive manual-mode shell on the simulated engine. With arguments, " +
		"runs one command and exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		be, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer be.close()
		if be.eng == nil {
			return errNoEngine
		}

		sh := newShell(&session{be: be})
		if len(args) > 0 {
			return sh.Process(args...)
		}
		sh.Run()
		return nil
	},
}

var errNoEngine = errors.New("shell needs the engine; use the sim backend")

// session holds the engine between shell commands.
type session struct {
	be *backend
}

func (s *session) eng() *i2cm.Engine { return s.be.eng }

func newShell(s *session) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("i2cm> ")
	for _, c := range []*ishell.Cmd{
		{Name: "start", Help: "ADDR [r|w]  start condition and address", Func: s.wrap(s.start)},
		{Name: "restart", Help: "ADDR [r|w]  repeated start and address", Func: s.wrap(s.restart)},
		{Name: "write", Help: "BYTE...  write bytes in the current transfer", Func: s.wrap(s.write)},
		{Name: "read", Help: "[N]  read N bytes, ACKing all but the last", Func: s.wrap(s.read)},
		{Name: "stop", Help: "stop condition", Func: s.wrap(s.stop)},
		{Name: "status", Help: "engine state and status", Func: s.wrap(s.status)},
		{Name: "tx", Help: "ADDR NREAD [BYTE...]  buffered write-then-read", Func: s.wrap(s.tx)},
		{Name: "scan", Help: "list responding addresses", Func: s.wrap(s.scan)},
		{Name: "sim", Help: "SHUNT_uV BUS_mV  set the simulated sensor inputs", Func: s.wrap(s.simInputs)},
	} {
		sh.AddCmd(c)
	}
	return sh
}

func (s *session) wrap(fn func(ctx context.Context, args []string) (string, error)) func(*ishell.Context) {
	return func(c *ishell.Context) {
		out, err := fn(context.Background(), c.Args)
		if out != "" {
			c.Println(out)
		}
		if err != nil {
			c.Err(err)
		}
	}
}

func (s *session) start(ctx context.Context, args []string) (string, error) {
	addr, dir, err := parseAddrDir(args)
	if err != nil {
		return "", err
	}
	return "", s.eng().SendStart(ctx, addr, dir)
}

func (s *session) restart(ctx context.Context, args []string) (string, error) {
	addr, dir, err := parseAddrDir(args)
	if err != nil {
		return "", err
	}
	return "", s.eng().SendRestart(ctx, addr, dir)
}

func (s *session) write(ctx context.Context, args []string) (string, error) {
	bs, err := parseBytes(args)
	if err != nil {
		return "", err
	}
	for i, b := range bs {
		if err := s.eng().WriteByte(ctx, b); err != nil {
			return fmt.Sprintf("%d of %d written", i, len(bs)), err
		}
	}
	return "", nil
}

func (s *session) read(ctx context.Context, args []string) (string, error) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil || v == 0 {
			return "", fmt.Errorf("bad count %q", args[0])
		}
		n = int(v)
	}
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := s.eng().ReadByte(ctx, i < n-1)
		if err != nil {
			return hexBytes(out), err
		}
		out = append(out, b)
	}
	return hexBytes(out), nil
}

func (s *session) stop(ctx context.Context, _ []string) (string, error) {
	return "", s.eng().SendStop(ctx)
}

func (s *session) status(context.Context, []string) (string, error) {
	e := s.eng()
	return fmt.Sprintf("state=%s master=%s slave=%s", e.State(), e.MasterStatus(), e.SlaveStatus()), nil
}

func (s *session) tx(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return "", errors.New("usage: tx ADDR NREAD [BYTE...]")
	}
	addr, _, err := parseAddrDir(args[:1])
	if err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return "", fmt.Errorf("bad count %q", args[1])
	}
	w, err := parseBytes(args[2:])
	if err != nil {
		return "", err
	}
	r := make([]byte, n)
	if err := s.eng().TxContext(ctx, uint16(addr), w, r); err != nil {
		return "", err
	}
	return hexBytes(r), nil
}

func (s *session) scan(context.Context, []string) (string, error) {
	found, err := scan(s.be.probe)
	var sb strings.Builder
	for i, a := range found {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02x", a)
	}
	return sb.String(), err
}

func (s *session) simInputs(_ context.Context, args []string) (string, error) {
	if s.be.sim == nil {
		return "", errors.New("no simulated sensor")
	}
	if len(args) != 2 {
		return "", errors.New("usage: sim SHUNT_uV BUS_mV")
	}
	vs, err := strconv.ParseInt(args[0], 0, 32)
	if err != nil {
		return "", err
	}
	vb, err := strconv.ParseInt(args[1], 0, 32)
	if err != nil {
		return "", err
	}
	s.be.sim.SetInputs(int32(vs), int32(vb))
	return "", nil
}

func parseAddrDir(args []string) (uint8, i2cm.Direction, error) {
	if len(args) == 0 {
		return 0, 0, errors.New("address required")
	}
	a, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil || a > 0x7F {
		return 0, 0, fmt.Errorf("bad address %q", args[0])
	}
	dir := i2cm.Write
	if len(args) > 1 {
		switch args[1] {
		case "r", "read":
			dir = i2cm.Read
		case "w", "write":
		default:
			return 0, 0, fmt.Errorf("bad direction %q", args[1])
		}
	}
	return uint8(a), dir, nil
}

func parseBytes(args []string) ([]byte, error) {
	out := make([]byte, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("bad byte %q", a)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func hexBytes(p []byte) string {
	var sb strings.Builder
	var h [2]byte
	for i, b := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.Write(conv.U8Hex(h[:], b))
	}
	return sb.String()
}
