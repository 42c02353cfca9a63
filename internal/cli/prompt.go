package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter reads line-oriented answers from the user.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a Prompter reading from in and echoing prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// ReadLine prints label and returns the trimmed input. io.EOF is returned
// once the input is exhausted and nothing was read.
func (p *Prompter) ReadLine(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Ask prompts with a default value shown in brackets, returning def when
// the user enters nothing.
func (p *Prompter) Ask(label, def string) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]", label, def)
	}
	input, err := p.ReadLine(label + ": ")
	if err != nil {
		return "", err
	}
	if input == "" {
		return def, nil
	}
	return input, nil
}

// Confirm asks a yes/no question. Anything other than y or yes is no.
func (p *Prompter) Confirm(label string) (bool, error) {
	input, err := p.ReadLine(label + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(input) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
