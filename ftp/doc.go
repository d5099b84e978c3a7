// Package ftp implements the MAVLink file transfer protocol, both the
// client that drives transfers from the ground and a server that answers
// them from a local directory.
//
// Every request and reply travels as the 251 byte payload of a
// FILE_TRANSFER_PROTOCOL message; Packet packs and unpacks it. Requests carry
// an incrementing sequence number and the reply carries the request's number
// plus one. The client ignores a reply it has already consumed and the
// server answers a retransmitted request from its reply cache instead of
// executing it again.
//
// # Client
//
// A Client queues operations and runs them one at a time. Each async call
// returns an OperationID and takes one callback that receives zero or more
// Next progress updates followed by exactly one terminal result:
//
//	client := ftp.NewClient(tr, scheduler, tally.NoopScope, transport.Address{SystemID: 1, ComponentID: 1})
//	client.DownloadAsync("/fs/microsd/log/01.ulg", "/tmp", true, func(r ftp.ClientResult, p ftp.Progress) {
//	    if r == ftp.Next {
//	        fmt.Printf("%.0f%%\n", 100*p.Fraction())
//	        return
//	    }
//	    fmt.Println("download:", r)
//	})
//
// Like the command dispatcher, the client is cooperative: DoWork starts the
// next queued operation and the shared timeout.Scheduler drives retries.
// Blocking variants (Download, Upload, ListDirectory, ...) take a context and
// must not be called from a callback of the same client.
//
// Burst downloads let the server stream the file without a round trip per
// chunk. Chunks lost on the way are recorded as missing ranges and fetched
// with plain reads once the stream ends, so the result is byte-identical to
// the remote file.
//
// # Server
//
// A Server resolves every path below its root directory and keeps a single
// session. Server.DoWork emits the chunks of an active burst read.
package ftp
