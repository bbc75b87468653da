package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command is a parsed slash command.
type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// Rest joins the arguments from i on, for commands that take free text.
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

type commandSpec struct {
	usage   string
	help    string
	minArgs int
	maxArgs int // -1 for free text
}

var commandSpecs = map[string]commandSpec{
	"new":        {"/new", "Start a new conversation", 0, 0},
	"list":       {"/list", "List conversations", 0, 0},
	"switch":     {"/switch <n>", "Switch to conversation n from /list", 1, 1},
	"rename":     {"/rename <title>", "Rename the current conversation", 1, -1},
	"delete":     {"/delete", "Delete the current conversation", 0, 0},
	"clear":      {"/clear", "Remove all messages from the current conversation", 0, 0},
	"search":     {"/search <query>", "Search conversations", 1, -1},
	"use":        {"/use <provider> <model>", "Use a model for the current conversation", 2, 2},
	"default":    {"/default <provider> <model>", "Set the model new conversations start with", 2, 2},
	"key":        {"/key <provider> <api-key> [base-url]", "Configure a provider", 2, 3},
	"activate":   {"/activate <provider>", "Switch a provider on", 1, 1},
	"deactivate": {"/deactivate <provider>", "Switch a provider off", 1, 1},
	"providers":  {"/providers", "List configured providers", 0, 0},
	"models":     {"/models <provider>", "List a provider's models", 1, 1},
	"test":       {"/test <provider>", "Test a provider's credentials", 1, 1},
	"system":     {"/system [prompt]", "Set or clear the conversation's system prompt", 0, -1},
	"turns":      {"/turns <n>", "Keep the last n turns of history (0 keeps all)", 1, 1},
	"stream":     {"/stream on|off", "Toggle streaming replies", 1, 1},
	"retry":      {"/retry", "Resend the last message", 0, 0},
	"copy":       {"/copy", "Copy the last reply to the clipboard", 0, 0},
	"sidebar":    {"/sidebar", "Toggle the conversation list", 0, 0},
	"help":       {"/help", "Show commands", 0, 0},
	"quit":       {"/quit", "Exit", 0, 0},
}

var errNotCommand = errors.New("not a command")

// ParseCommand parses input starting with "/". Inputs that are not commands
// return errNotCommand.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || len(input) == 1 {
		return Command{}, errNotCommand
	}

	fields := strings.Fields(input[1:])
	cmd := Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}

	spec, ok := commandSpecs[cmd.Name]
	if !ok {
		return Command{}, fmt.Errorf("unknown command /%s (try /help)", cmd.Name)
	}
	if len(cmd.Args) < spec.minArgs || (spec.maxArgs >= 0 && len(cmd.Args) > spec.maxArgs) {
		return Command{}, fmt.Errorf("usage: %s", spec.usage)
	}

	switch cmd.Name {
	case "switch", "turns":
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil || n < 0 {
			return Command{}, fmt.Errorf("usage: %s", spec.usage)
		}
	case "stream":
		if v := strings.ToLower(cmd.Args[0]); v != "on" && v != "off" {
			return Command{}, fmt.Errorf("usage: %s", spec.usage)
		}
	}
	return cmd, nil
}

// IntArg returns argument i as an int. ParseCommand has already validated
// numeric arguments.
func (c Command) IntArg(i int) int {
	n, _ := strconv.Atoi(c.Arg(i))
	return n
}
