// Command autochess runs the chess-mover motion firmware or a host
// console talking to it.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/firmware"
	"github.com/MARCOVB5/autochess/hal"
	"github.com/MARCOVB5/autochess/host"
	"github.com/MARCOVB5/autochess/host/serial"
	"github.com/MARCOVB5/autochess/log"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	root := &cobra.Command{
		Use:          "autochess",
		Short:        "Motion control for a chess pick-and-place gantry",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "console", "console or json")

	root.AddCommand(newFirmwareCommand())
	root.AddCommand(newConsoleCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() log.Logger {
	opts := log.NewOptions()
	opts.Level = logLevel
	opts.Format = logFormat
	return log.New(opts)
}

// stdio presents the process streams as one transport so the firmware
// can be driven by a pseudo terminal or a test harness.
type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

func newFirmwareCommand() *cobra.Command {
	var device string
	var baud int

	cmd := &cobra.Command{
		Use:   "firmware",
		Short: "Run the motion controller (simulated drivers)",
		Long: `Runs the command interpreter and motion controller against
simulated pin drivers, serving the serial protocol on a device or on
stdio. Hardware deployments supply their own pin driver backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if device != "" {
				cfg.Serial.Device = device
			}
			if baud != 0 {
				cfg.Serial.Baud = baud
			}

			rig := hal.NewSimRig()
			ctrl, err := firmware.New(cfg, rig, rig, hal.WallClock{}, logger)
			if err != nil {
				return err
			}

			var transport io.ReadWriter = stdio{}
			if cfg.Serial.Device != "" {
				port, err := serial.Open(cfg.Serial)
				if err != nil {
					return err
				}
				defer port.Close()
				transport = port
			}

			logger.Info("firmware up",
				"device", cfg.Serial.Device, "board", fmt.Sprintf("%dx%d", cfg.Board.Rows, cfg.Board.Cols))
			return ctrl.Run(transport)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "serial device (empty serves stdio)")
	cmd.Flags().IntVar(&baud, "baud", 0, "serial baud rate")
	return cmd
}

func newConsoleCommand() *cobra.Command {
	var device string
	var baud int

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console against a running firmware",
		Long: `Connects to the firmware, runs the init sequence, and then
forwards protocol lines typed on stdin. A few shortcuts are provided:

  home                     reference all axes (G28)
  move R C R C [capture]   transfer a piece between cells (M700)
  status                   dump machine state (M114)
  stop / reset             emergency stop / recover`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if device != "" {
				cfg.Serial.Device = device
			}
			if baud != 0 {
				cfg.Serial.Baud = baud
			}

			client, err := host.Connect(cfg.Serial, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			banner, err := client.Ping()
			if err != nil {
				return err
			}
			fmt.Println(banner)

			return console(client)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "serial device")
	cmd.Flags().IntVar(&baud, "baud", 0, "serial baud rate")
	return cmd
}

func console(client *host.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := consoleLine(client, line); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func consoleLine(client *host.Client, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "home":
		return client.Home()
	case "status":
		status, err := client.Status()
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	case "stop":
		return client.EmergencyStop()
	case "reset":
		return client.Reset()
	case "move":
		if len(fields) < 5 {
			return fmt.Errorf("usage: move srcRow srcCol dstRow dstCol [capture]")
		}
		var cells [4]int
		for i := 0; i < 4; i++ {
			if _, err := fmt.Sscanf(fields[i+1], "%d", &cells[i]); err != nil {
				return fmt.Errorf("bad cell index %q", fields[i+1])
			}
		}
		capture := len(fields) > 5 && fields[5] == "capture"
		return client.MovePiece(cells[0], cells[1], cells[2], cells[3], capture)
	default:
		// Raw protocol passthrough.
		resp, err := client.Send(line)
		if err != nil {
			return err
		}
		for _, payload := range resp.Payload {
			fmt.Println(payload)
		}
		return nil
	}
}
