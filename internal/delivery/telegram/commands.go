package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/telebot.v3"
)

type botCommand struct {
	name        string
	args        string
	description string
}

var botCommands = []botCommand{
	{name: "help", description: "display this text."},
	{name: "start", description: "show the welcome message."},
	{name: "username", args: "<name>", description: "handle a username."},
	{name: "usernameandage", args: "<name> <age>", description: "handle a username and an age."},
	{name: "general", args: "<message>", description: "chat with AI - send your message after the command."},
	{name: "price", args: "<symbol>", description: "get the latest stock quote."},
	{name: "news", args: "<symbol>", description: "get the latest stock news."},
	{name: "model", args: "[name]", description: "show or change the AI model for this chat."},
	{name: "subscribe", args: "<symbol>", description: "add a stock to this group's daily update."},
	{name: "unsubscribe", args: "<symbol>", description: "remove a stock from this group's daily update."},
	{name: "subscriptions", description: "list the stocks this group follows."},
	{name: "settime", args: "<HH:MM>", description: "set the group's daily update time (admins only)."},
	{name: "settimezone", args: "<zone>", description: "set the group's timezone, e.g. America/New_York (admins only)."},
}

func commandDescriptions() string {
	var sb strings.Builder
	sb.WriteString("These commands are supported:")
	for _, cmd := range botCommands {
		sb.WriteString("\n/" + cmd.name)
		if cmd.args != "" {
			sb.WriteString(" " + cmd.args)
		}
		sb.WriteString(" - " + cmd.description)
	}
	return sb.String()
}

func telebotCommands() []telebot.Command {
	commands := make([]telebot.Command, 0, len(botCommands))
	for _, cmd := range botCommands {
		commands = append(commands, telebot.Command{Text: cmd.name, Description: cmd.description})
	}
	return commands
}

func isKnownCommand(name string) bool {
	for _, cmd := range botCommands {
		if cmd.name == name {
			return true
		}
	}
	return false
}

type route int

const (
	routeIgnore route = iota
	routeHello
	routeCommand
	routeUnknown
	routeChat
)

// incoming is a text message after mention handling.
type incoming struct {
	route   route
	text    string
	command string
	args    string
}

// mentionPatterns holds one compiled pattern per bot username.
var mentionPatterns sync.Map

func mentionPattern(botUsername string) *regexp.Regexp {
	if p, ok := mentionPatterns.Load(botUsername); ok {
		return p.(*regexp.Regexp)
	}
	p, _ := mentionPatterns.LoadOrStore(botUsername, regexp.MustCompile(`(?i)@`+regexp.QuoteMeta(botUsername)+`\b`))
	return p.(*regexp.Regexp)
}

// parseIncoming decides what to do with a text message. Private chats are
// always answered. Group messages are answered only when they mention the
// bot, and the mention is removed before the text is interpreted.
func parseIncoming(text, botUsername string, private bool) incoming {
	mentioned := false
	if botUsername != "" {
		mention := mentionPattern(botUsername)
		if mention.MatchString(text) {
			mentioned = true
			text = mention.ReplaceAllString(text, "")
		}
	}
	if !private && !mentioned {
		return incoming{route: routeIgnore}
	}

	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return incoming{route: routeHello}
	case strings.HasPrefix(text, "/"):
		name, args := splitCommand(text)
		if !isKnownCommand(name) {
			return incoming{route: routeUnknown, text: text}
		}
		return incoming{route: routeCommand, text: text, command: name, args: args}
	default:
		return incoming{route: routeChat, text: text}
	}
}

// splitCommand turns "/Price@bot  aapl" into ("price", "aapl").
func splitCommand(text string) (string, string) {
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	name := strings.TrimPrefix(head, "/")
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), strings.TrimSpace(rest)
}

func helloText(botUsername string, private bool) string {
	if private || botUsername == "" {
		return "Hello! Send me a command or message.\n\n" + commandDescriptions()
	}
	return fmt.Sprintf("Hello! You mentioned me. Send a command or message after @%s.\n\n%s", botUsername, commandDescriptions())
}

func unknownCommandText(text string) string {
	return fmt.Sprintf("Unknown command: %s\n\nAvailable commands:\n%s", text, commandDescriptions())
}

// parseUsernameAndAge expects exactly a name and an age between 0 and 255.
func parseUsernameAndAge(args string) (string, uint8, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("expected a name and an age, got %d arguments", len(fields))
	}
	age, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return "", 0, fmt.Errorf("invalid age %q: %w", fields[1], err)
	}
	return fields[0], uint8(age), nil
}

// firstArg returns the first whitespace separated argument.
func firstArg(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
