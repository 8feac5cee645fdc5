package protocol

// Command is a parsed request: a verb followed by its arguments
type Command struct {
	line [][]byte
}

// MakeCommand wraps a command line whose first element is the verb
func MakeCommand(cmdLine [][]byte) *Command {
	return &Command{line: cmdLine}
}

// Verb returns the command name as sent, matching is case-sensitive
func (c *Command) Verb() string {
	if len(c.line) == 0 {
		return ""
	}
	return string(c.line[0])
}

// Argc returns the number of arguments, the verb excluded
func (c *Command) Argc() int {
	if len(c.line) == 0 {
		return 0
	}
	return len(c.line) - 1
}

// Arg returns argument i counting from 0 after the verb, nil when out of range
func (c *Command) Arg(i int) []byte {
	if i < 0 || i >= c.Argc() {
		return nil
	}
	return c.line[i+1]
}

// Args returns every argument after the verb
func (c *Command) Args() [][]byte {
	if len(c.line) == 0 {
		return nil
	}
	return c.line[1:]
}

// CmdLine returns the raw line including the verb
func (c *Command) CmdLine() [][]byte {
	return c.line
}
