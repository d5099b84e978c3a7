package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/opd-ai/groundlink"
	"github.com/opd-ai/groundlink/command"
	"github.com/spf13/cobra"
)

var (
	useInt         bool
	intFrame       string
	intX, intY     int32
	intZ           float64
	commandRetries int
	commandWait    time.Duration
)

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Send MAVLink commands",
}

var commandSendCmd = &cobra.Command{
	Use:   "send <MAV_CMD> [param1 ... param7]",
	Short: "Send a command and wait for its acknowledgment",
	Long: `Send a COMMAND_LONG (or COMMAND_INT with --int) to the target and wait
for the COMMAND_ACK. The command is a MAV_CMD name, with or without the
MAV_CMD_ prefix, or its number. A parameter of "-" or "nan" is left unset.
Put negative parameters after "--".`,
	Example: `  groundlink command send COMPONENT_ARM_DISARM 1
  groundlink command send 400 1 21196
  groundlink command send DO_REPOSITION - - - - --int --x 473977418 --y 85455939 --z 500`,
	Args: cobra.RangeArgs(1, 8),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseMAVCmd(args[0])
		if err != nil {
			return err
		}
		c, err := buildCommand(id, args[1:])
		if err != nil {
			return err
		}

		return withSystem(cmd, func(ctx context.Context, sys *groundlink.System) error {
			ctx, cancel := context.WithTimeout(ctx, commandWait)
			defer cancel()

			result := sendCommand(ctx, sys.Commands(), c)
			fmt.Fprintln(cmd.OutOrStdout(), renderOutcome(id.String(), result == command.Success, result))
			return result.Err()
		})
	},
}

// sendCommand uses the per-call retry count when --retries was given.
func sendCommand(ctx context.Context, d *command.Dispatcher, c command.Command) command.Result {
	if commandRetries < 0 {
		return d.Send(ctx, c)
	}

	done := make(chan command.Result, 1)
	d.SendAsyncRetries(c, func(result command.Result, _ float32) {
		if result.Terminal() {
			done <- result
		}
	}, commandRetries)

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		d.Cancel(c.Identify())
		return <-done
	}
}

// parseMAVCmd accepts "COMPONENT_ARM_DISARM", "MAV_CMD_COMPONENT_ARM_DISARM"
// or "400".
func parseMAVCmd(s string) (common.MAV_CMD, error) {
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return common.MAV_CMD(n), nil
	}
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "MAV_CMD_") {
		name = "MAV_CMD_" + name
	}
	var id common.MAV_CMD
	if err := id.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return id, nil
}

// parseParams converts up to n positional parameters. Missing and "-"
// entries are unset.
func parseParams(args []string, n int) ([]float32, error) {
	if len(args) > n {
		return nil, fmt.Errorf("at most %d parameters, got %d", n, len(args))
	}
	params := make([]float32, n)
	for i := range params {
		params[i] = command.Unset
	}
	for i, a := range args {
		if a == "-" || strings.EqualFold(a, "nan") {
			continue
		}
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		params[i] = float32(v)
	}
	return params, nil
}

func buildCommand(id common.MAV_CMD, args []string) (command.Command, error) {
	if !useInt {
		params, err := parseParams(args, 7)
		if err != nil {
			return nil, err
		}
		c := command.NewLong(id, cfg.Target.SystemID, cfg.Target.ComponentID)
		copy(c.Params[:], params)
		return c, nil
	}

	params, err := parseParams(args, 4)
	if err != nil {
		return nil, err
	}
	c := command.NewInt(id, cfg.Target.SystemID, cfg.Target.ComponentID)
	copy(c.Params[:], params)
	if intFrame != "" {
		if err := c.Frame.UnmarshalText([]byte(strings.ToUpper(intFrame))); err != nil {
			return nil, fmt.Errorf("unknown frame %q", intFrame)
		}
	}
	c.X, c.Y = intX, intY
	if !math.IsNaN(intZ) {
		c.Z = float32(intZ)
	}
	return c, nil
}

func init() {
	commandSendCmd.Flags().BoolVar(&useInt, "int", false, "send COMMAND_INT instead of COMMAND_LONG")
	commandSendCmd.Flags().StringVar(&intFrame, "frame", "", "MAV_FRAME for --int (default MAV_FRAME_GLOBAL_RELATIVE_ALT)")
	commandSendCmd.Flags().Int32Var(&intX, "x", 0, "x / latitude*1e7 for --int")
	commandSendCmd.Flags().Int32Var(&intY, "y", 0, "y / longitude*1e7 for --int")
	commandSendCmd.Flags().Float64Var(&intZ, "z", math.NaN(), "z / altitude for --int")
	commandSendCmd.Flags().IntVar(&commandRetries, "retries", -1, "retransmissions after the first send (default from config)")
	commandSendCmd.Flags().DurationVar(&commandWait, "wait", 30*time.Second, "give up after this long")

	commandCmd.AddCommand(commandSendCmd)
}
