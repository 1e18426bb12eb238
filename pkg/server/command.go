package server

import (
	"sort"
	"strings"

	"github.com/stonehall/stonehall/pkg/chat"
)

// Command is an in-game chat command. Implementations are registered by
// name on the server.
type Command interface {
	Name() string
	Summary() string
	Execute(p *Player, args []string)
}

// RegisterCommand adds a command to the server's registry.
func (s *Server) RegisterCommand(cmd Command) {
	s.commands[cmd.Name()] = cmd
}

// DispatchCommand routes a "/name args..." chat line to its command.
func (s *Server) DispatchCommand(p *Player, line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return
	}
	cmd, ok := s.commands[fields[0]]
	if !ok {
		p.Message(chat.Colored("Unknown command: "+fields[0], "red"))
		return
	}
	cmd.Execute(p, fields[1:])
}

func (s *Server) registerDefaultCommands() {
	s.RegisterCommand(helpCommand{s})
	s.RegisterCommand(sayCommand{s})
	s.RegisterCommand(gamemodeCommand{})
}

type helpCommand struct{ srv *Server }

func (helpCommand) Name() string    { return "help" }
func (helpCommand) Summary() string { return "lists available commands" }

func (c helpCommand) Execute(p *Player, args []string) {
	names := make([]string, 0, len(c.srv.commands))
	for name := range c.srv.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	b := p.MessageBuilder()
	b.Colored("Commands: ", "yellow")
	for i, name := range names {
		if i > 0 {
			b.Text(", ")
		}
		b.Text("/" + name)
	}
	b.Finish()
}

type sayCommand struct{ srv *Server }

func (sayCommand) Name() string    { return "say" }
func (sayCommand) Summary() string { return "broadcasts a message" }

func (c sayCommand) Execute(p *Player, args []string) {
	if len(args) == 0 {
		return
	}
	c.srv.BroadcastChat(chat.Colored("["+p.Username()+"] "+strings.Join(args, " "), "light_purple"))
}

type gamemodeCommand struct{}

func (gamemodeCommand) Name() string    { return "gamemode" }
func (gamemodeCommand) Summary() string { return "changes your game mode" }

func (gamemodeCommand) Execute(p *Player, args []string) {
	if len(args) != 1 {
		p.Message(chat.Colored("Usage: /gamemode <survival|creative|adventure|spectator>", "red"))
		return
	}
	mode, ok := ParseGameMode(args[0])
	if !ok {
		p.Message(chat.Colored("Unknown game mode: "+args[0], "red"))
		return
	}
	p.SetGameMode(mode)
	p.Message(chat.Colored("Game mode updated", "yellow"))
}

// ParseGameMode maps a game mode name to its protocol value.
func ParseGameMode(name string) (byte, bool) {
	switch strings.ToLower(name) {
	case "survival", "0":
		return GameModeSurvival, true
	case "creative", "1":
		return GameModeCreative, true
	case "adventure", "2":
		return GameModeAdventure, true
	case "spectator", "3":
		return GameModeSpectator, true
	}
	return 0, false
}
