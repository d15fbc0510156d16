package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"dit/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Daemon socket path")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: dit-ctl [-s socket] listen|mute|toggle|stop|state|ask <question>|lang <tag>")
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() == 0 {
		cli.Usage()
		os.Exit(2)
	}

	cmd := cli.Arg(0)
	arg := strings.Join(cli.Args()[1:], " ")

	reply, err := ipc.SendCommand(*socket, cmd, arg)
	if err != nil {
		if reply.Error != "" {
			fmt.Println("error:", reply.Error)
		} else {
			fmt.Println("dit-daemon not running:", err)
		}
		os.Exit(1)
	}
	if reply.Data != "" {
		fmt.Println(reply.Data)
	}
}
