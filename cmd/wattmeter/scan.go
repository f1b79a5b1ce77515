package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wattmeter-go/errcode"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe every 7-bit address and list the ones that acknowledge",
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

		found, err := scan(be.probe)
		for _, a := range found {
			fmt.Fprintf(cmd.OutOrStdout(), "0x%02x\n", a)
		}
		return err
	},
}

// scan probes 0x08..0x77. A missing device (address NAK) is not an error;
// anything else stops the scan.
func scan(probe func(addr uint16) error) ([]uint16, error) {
	var found []uint16
	for a := uint16(0x08); a <= 0x77; a++ {
		err := probe(a)
		switch {
		case err == nil:
			found = append(found, a)
		case errcode.Of(err) == errcode.AddrNAK || errcode.Of(err) == errcode.NAK:
		default:
			return found, fmt.Errorf("probe 0x%02x: %w", a, err)
		}
	}
	return found, nil
}
