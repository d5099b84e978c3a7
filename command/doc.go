// Package command implements reliable delivery of MAVLink commands.
//
// A Dispatcher queues COMMAND_LONG and COMMAND_INT messages, sends at most
// one command of each command id at a time, matches COMMAND_ACK replies to
// the outstanding command and retries on silence. Every call with a callback
// receives exactly one terminal result, optionally preceded by InProgress
// updates.
//
// The dispatcher is cooperative. Something has to call DoWork to transmit
// queued commands and Scheduler.RunOnce to drive retries; the groundlink
// System does both from its Iterate loop.
//
//	d := command.NewDispatcher(tr, scheduler, tally.NoopScope)
//
//	cmd := command.NewLong(common.MAV_CMD_COMPONENT_ARM_DISARM, 1, 1)
//	cmd.Params[0] = 1
//	d.SendAsync(cmd, func(result command.Result, progress float32) {
//	    fmt.Println("arm:", result)
//	})
//
// Blocking callers use Send with a context:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	if err := d.Send(ctx, cmd).Err(); err != nil {
//	    log.Println(err)
//	}
//
// Send must not be called from inside a dispatcher callback.
package command
