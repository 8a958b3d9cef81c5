package adminclient

import (
	"context"
	"fmt"
	"io"
)

// HelpCommand 帮助命令
type HelpCommand struct {
	registry *CommandRegistry
	out      io.Writer
}

// NewHelpCommand 创建帮助命令
func NewHelpCommand(registry *CommandRegistry, out io.Writer) *HelpCommand {
	return &HelpCommand{registry: registry, out: out}
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"h", "?"} }
func (c *HelpCommand) Description() string { return "显示帮助信息" }

func (c *HelpCommand) Usage() string {
	return "help [command]\n" +
		"  不提供 command 时显示所有命令，提供时显示该命令的详细帮助"
}

func (c *HelpCommand) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, c.registry.Help())
	} else {
		fmt.Fprintln(c.out, c.registry.HelpForCommand(args[0]))
	}
	return nil
}

// ExitCommand 退出命令
type ExitCommand struct{}

// NewExitCommand 创建退出命令
func NewExitCommand() *ExitCommand {
	return &ExitCommand{}
}

func (c *ExitCommand) Name() string        { return "exit" }
func (c *ExitCommand) Aliases() []string   { return []string{"quit", "q"} }
func (c *ExitCommand) Description() string { return "退出客户端" }
func (c *ExitCommand) Usage() string       { return "exit" }

func (c *ExitCommand) Execute(ctx context.Context, args []string) error {
	return ErrExit
}
