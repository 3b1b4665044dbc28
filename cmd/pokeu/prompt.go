// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func newPrompter(cmd *cobra.Command) *prompter {
	p := &prompter{
		in:  bufio.NewReader(cmd.InOrStdin()),
		out: cmd.OutOrStdout(),
		fd:  -1,
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			return "", oops.Code("INPUT_CLOSED").Errorf("input closed")
		}
		return "", oops.Code("INPUT_FAILED").Wrap(err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (p *prompter) secret(label string) (string, error) {
	if p.fd < 0 {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", oops.Code("INPUT_FAILED").Wrap(err)
	}
	return string(b), nil
}
