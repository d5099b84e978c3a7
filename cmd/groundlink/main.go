// Command groundlink talks to a MAVLink vehicle from the command line:
// it sends commands, transfers files and can serve a directory over FTP.
package main

func main() {
	Execute()
}
