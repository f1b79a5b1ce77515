// Command wattmeter polls an INA219 power monitor over I2C and publishes the
// samples to an LCD, a serial line and an MQTT broker.
package main

import (
	goflag "flag"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"wattmeter-go/services/config"
)

var (
	cfgPath  string
	deviceID string

	rootCmd = &cobra.Command{
		Use:           "wattmeter",
		Short:         "INA219 power monitor over a multi-master I2C engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&deviceID, "device", "d", "", "use the embedded configuration of this device (pico, sim)")
	// glog registers -v, -logtostderr ... on the standard flag set.
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)
	rootCmd.AddCommand(runCmd, shellCmd, scanCmd)
}

// loadConfig picks the file, then the embedded device config, then defaults.
func loadConfig() (*config.Config, error) {
	switch {
	case cfgPath != "":
		return config.Load(cfgPath)
	case deviceID != "":
		return config.Resolve(deviceID)
	}
	return config.Default(), nil
}

func main() {
	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}
