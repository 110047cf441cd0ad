package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/simchat/internal/daemon"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

func main() {
	flags := pflag.NewFlagSet("simd", pflag.ExitOnError)
	profileFlag := flags.StringP("profile", "p", "", "profile name (overrides config default)")
	socketFlag := flags.String("socket", "", "control socket path (default: inside the profile directory)")
	_ = flags.Parse(os.Args[1:])

	profile, err := session.Resolve(*profileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profile, SocketPath: *socketFlag}),
	)

	app.Run()
}
