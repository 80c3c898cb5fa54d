package clicommand

import (
	"bytes"
	"compress/gzip"
	_ "embed"
	"fmt"
	"io"

	"github.com/urfave/cli"
)

const acknowledgementsHelpDescription = `Usage:

    kubegate acknowledgements

Description:

Prints the licenses and notices of the open source software kubegate is built
from.

Example:

    $ kubegate acknowledgements | less`

//go:embed ACKNOWLEDGEMENTS.md.gz
var acknowledgements []byte

type AcknowledgementsConfig struct{}

var AcknowledgementsCommand = cli.Command{
	Name:        "acknowledgements",
	Usage:       "Print the licenses and notices of the open source software kubegate is built from",
	Description: acknowledgementsHelpDescription,
	Action: func(c *cli.Context) error {
		return printAcknowledgements(c.App.Writer)
	},
}

func printAcknowledgements(w io.Writer) error {
	r, err := gzip.NewReader(bytes.NewReader(acknowledgements))
	if err != nil {
		return fmt.Errorf("decompressing acknowledgements: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("writing acknowledgements: %w", err)
	}
	return nil
}
