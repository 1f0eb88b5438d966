package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

// runBatch executes each line of the script as a subcommand against the
// already loaded store, so follower notifications raised by one line are
// visible to the next. Arguments are split on whitespace; blank lines and
// lines starting with '#' are skipped. A failing line is reported and the
// script continues.
func (e *env) runBatch(c *cli.Context) error {
	var in io.Reader = c.App.Reader
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	}

	session := &cli.App{
		Name:           c.App.Name,
		Writer:         c.App.Writer,
		ErrWriter:      c.App.ErrWriter,
		Commands:       commands(e),
		ExitErrHandler: func(*cli.Context, error) {},
	}

	var result *multierror.Error
	scanner := bufio.NewScanner(in)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args := strings.Fields(line)
		if args[0] == c.Command.Name {
			result = multierror.Append(result, fmt.Errorf("line %d: nested %s is not allowed", n, args[0]))
			continue
		}
		if err := session.RunContext(c.Context, append([]string{session.Name}, args...)); err != nil {
			e.logger.Warnf("batch line %d failed: %v", n, err)
			fmt.Fprintf(session.ErrWriter, "line %d: %v\n", n, err)
			result = multierror.Append(result, fmt.Errorf("line %d: %w", n, err))
		}
	}
	if err := scanner.Err(); err != nil {
		result = multierror.Append(result, fmt.Errorf("read script: %w", err))
	}
	return result.ErrorOrNil()
}
