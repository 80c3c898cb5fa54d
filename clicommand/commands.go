package clicommand

import "github.com/urfave/cli"

var KubegateCommands = []cli.Command{
	AcknowledgementsCommand,
	UpCommand,
	WaitCommand,
	StatusCommand,
	CaptureCommand,
}
