package uart

import (
	"encoding/json"

	"wattmeter-go/types"
	"wattmeter-go/x/conv"
)

// Format is the line encoding of a sample.
type Format uint8

const (
	FormatText Format = iota // key=value pairs
	FormatJSON
)

func ParseFormat(s string) Format {
	if s == "json" {
		return FormatJSON
	}
	return FormatText
}

// AppendLine appends one newline-terminated record for v to dst.
func AppendLine(dst []byte, name string, v types.PowerValue, f Format) ([]byte, error) {
	if f == FormatJSON {
		b, err := json.Marshal(struct {
			Name string `json:"name"`
			types.PowerValue
		}{name, v})
		if err != nil {
			return dst, err
		}
		return append(append(dst, b...), '\n'), nil
	}

	var num [24]byte
	dst = append(dst, name...)
	dst = append(dst, " seq="...)
	dst = append(dst, conv.Itoa(num[:], int64(v.Seq))...)
	dst = append(dst, " vs_uV="...)
	dst = append(dst, conv.Itoa(num[:], int64(v.Shunt_uV))...)
	dst = append(dst, " vb_mV="...)
	dst = append(dst, conv.Itoa(num[:], int64(v.Bus_mV))...)
	dst = append(dst, " i_uA="...)
	dst = append(dst, conv.Itoa(num[:], v.Current_uA)...)
	dst = append(dst, " p_uW="...)
	dst = append(dst, conv.Itoa(num[:], v.Power_uW)...)
	if v.Overflow {
		dst = append(dst, " ovf"...)
	}
	return append(dst, '\n'), nil
}
