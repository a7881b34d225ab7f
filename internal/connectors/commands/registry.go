// Package commands routes chat commands to their handlers. It is shared by
// the Slack and Telegram connectors.
package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// Outcomes reported to the CommandObserver.
const (
	OutcomeOK      = "ok"
	OutcomeUnknown = "unknown"
	OutcomeError   = "error"
)

// MsgCommandError is sent when a handler returns an error.
const MsgCommandError = "An error occurred while processing your command."

// Request is one command invocation.
type Request struct {
	Command   string // with the leading slash, e.g. "/top10"
	Args      string
	UserID    string
	ChannelID string
	Platform  string
}

// Handler answers a command with the text to post back.
type Handler func(ctx context.Context, req Request) (string, error)

// Command describes a registered command.
type Command struct {
	Name        string
	Description string
}

// CommandObserver counts handled commands, typically into Prometheus.
type CommandObserver interface {
	IncCommand(command, outcome string)
}

type entry struct {
	description string
	handler     Handler
}

// Registry manages command handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]entry
	order    []string
	logger   logger.Logger
	observer CommandObserver
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithObserver reports every handled command to o.
func WithObserver(o CommandObserver) Option {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]entry),
		logger:   logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a command handler to the registry. Registering a name twice
// replaces the handler.
func (r *Registry) Register(command, description string, handler Handler) {
	command = normalize(command)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[command]; !exists {
		r.order = append(r.order, command)
	}
	r.handlers[command] = entry{description: description, handler: handler}
}

// Commands lists the registered commands in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Command{Name: name, Description: r.handlers[name].description})
	}
	return out
}

// Help renders the list of commands.
func (r *Registry) Help() string {
	var b strings.Builder
	b.WriteString("**Available Commands:**\n")
	for _, c := range r.Commands() {
		fmt.Fprintf(&b, "\n• **%s** - %s", c.Name, c.Description)
	}
	return b.String()
}

// Handle runs the handler for req.Command and always returns text to post.
// Each invocation gets its own correlation ID.
func (r *Registry) Handle(ctx context.Context, req Request) (reply string) {
	ctx, correlationID := logger.EnsureCorrelationID(ctx)
	command := normalize(req.Command)
	log := r.logger.WithCorrelationID(correlationID).WithFields(
		logger.CommandField(command),
		logger.StringField("user_id", req.UserID),
		logger.StringField("channel_id", req.ChannelID),
	)

	r.mu.RLock()
	e, exists := r.handlers[command]
	r.mu.RUnlock()
	if !exists {
		log.Debug("Unknown command")
		r.observe(command, OutcomeUnknown)
		return "Unknown command: " + req.Command
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Command handler panicked", logger.StringField("panic", fmt.Sprintf("%v", rec)))
			r.observe(command, OutcomeError)
			reply = MsgCommandError
		}
	}()

	text, err := e.handler(ctx, req)
	if err != nil {
		log.Error("Error handling command", logger.ErrorField(err))
		r.observe(command, OutcomeError)
		return MsgCommandError
	}

	log.Info("Command handled", logger.DurationField("duration", time.Since(start)))
	r.observe(command, OutcomeOK)
	return text
}

func (r *Registry) observe(command, outcome string) {
	if r.observer == nil {
		return
	}
	// unknown commands share one label value to bound cardinality
	if outcome == OutcomeUnknown {
		command = "unknown"
	}
	r.observer.IncCommand(command, outcome)
}

// Parse splits chat text such as "/top10@ctf_bot extra" into the command
// and its arguments. ok is false when text is not a command.
func Parse(text string) (command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	command, args, _ = strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	if command == "/" {
		return "", "", false
	}
	return command, strings.TrimSpace(args), true
}

func normalize(command string) string {
	command = strings.ToLower(strings.TrimSpace(command))
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	return command
}
