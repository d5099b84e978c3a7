// Package groundlink implements the reliable request/response layer of a
// MAVLink ground station: commands with acknowledgment and retry, and the
// MAVLink file transfer protocol as both client and server.
//
// # Getting Started
//
// A System opens the configured endpoints and wires the engines together:
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sys, err := groundlink.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Close()
//
//	go sys.Run(ctx)
//
//	cmd := command.NewLong(common.MAV_CMD_COMPONENT_ARM_DISARM, 1, 1)
//	cmd.Params[0] = 1
//	if err := sys.Commands().Send(ctx, cmd).Err(); err != nil {
//	    log.Println("arm:", err)
//	}
//
//	dirs, files, result := sys.Files().ListDirectory(ctx, "/fs/microsd")
//
// Callers that already run a loop call Iterate at IterationInterval instead
// of Run:
//
//	for sys.IsRunning() {
//	    sys.Iterate()
//	    time.Sleep(sys.IterationInterval())
//	}
//
// # Packages
//
//   - [timeout]: deadline scheduler and periodic callbacks
//   - [transport]: MAVLink message bus over gomavlib, plus an in-memory pipe
//   - [command]: COMMAND_LONG / COMMAND_INT dispatcher
//   - [ftp]: file transfer client and server
//   - [config]: YAML configuration
//
// Setting ftp.root in the configuration also starts a file server that
// answers requests from that directory.
package groundlink
