// Package browse implements the menu-driven browser over the JMX namespace:
// server, then domain, then mbean, then attribute or operation.
package browse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/joeycumines/jmxsh/internal/marshal"
	"github.com/joeycumines/jmxsh/internal/navctx"
	"github.com/joeycumines/jmxsh/internal/typename"
	"github.com/rivo/uniseg"
)

// Level is the current menu.
type Level int

const (
	LevelServer Level = iota
	LevelDomain
	LevelMBean
	LevelAttrOp
	// LevelAttribute and LevelOperation are only held while a leaf action
	// runs.
	LevelAttribute
	LevelOperation
)

func (l Level) String() string {
	switch l {
	case LevelServer:
		return "server"
	case LevelDomain:
		return "domain"
	case LevelMBean:
		return "mbean"
	case LevelAttrOp:
		return "attrop"
	case LevelAttribute:
		return "attribute"
	case LevelOperation:
		return "operation"
	default:
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
}

// Backend is the subset of [jmx.Registry] the browser reads and writes
// through.
type Backend interface {
	Servers() []string
	Domains(ctx context.Context, server string) ([]string, error)
	MBeans(ctx context.Context, server, domain string) ([]string, error)
	MBeanInfo(ctx context.Context, server, mbean string) (*jmx.MBeanInfo, error)
	GetAttribute(ctx context.Context, server, mbean, attribute string) (any, error)
	SetAttribute(ctx context.Context, server, mbean, attribute, value string) error
	InvokeTyped(ctx context.Context, server, mbean, opName string, args []any, paramTypes []string) (any, error)
}

// Prompter reads one line of input. It returns io.EOF when input is
// exhausted.
type Prompter interface {
	Prompt(text string) (string, error)
}

const (
	rule     = "===================================================="
	leafRule = "====================================================="

	promptNoOptions = "(no options available):"
	promptContinue  = "Press enter to continue."
)

// Machine is the browse state. It is driven by a single foreground loop and
// is not safe for concurrent use.
type Machine struct {
	backend  Backend
	nav      *navctx.Accessor
	marshal  *marshal.Marshaller
	prompter Prompter
	out      io.Writer
	logger   *slog.Logger

	level  Level
	filter *Filter
	prompt string

	// selection lists from the last render, indexed by choice-1
	items      []string
	attributes []jmx.AttributeInfo
	operations []jmx.OperationInfo
	maxChoice  int
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// New returns a Machine at the server level.
func New(backend Backend, nav *navctx.Accessor, mr *marshal.Marshaller, prompter Prompter, out io.Writer, opts ...Option) *Machine {
	m := &Machine{
		backend:  backend,
		nav:      nav,
		marshal:  mr,
		prompter: prompter,
		out:      out,
		logger:   slog.Default(),
		prompt:   "Select a server:",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Level returns the current menu level.
func (m *Machine) Level() Level { return m.level }

// MaxChoice returns the number of entries in the last rendered menu.
func (m *Machine) MaxChoice() int { return m.maxChoice }

// Filter returns the active filter, or nil.
func (m *Machine) Filter() *Filter { return m.filter }

// Prompt returns the prompt for the last rendered menu.
func (m *Machine) Prompt() string { return m.prompt }

// AdvanceToDomain moves to the domain menu. Called when a connection
// becomes the current server.
func (m *Machine) AdvanceToDomain() {
	m.setLevel(LevelDomain)
}

// ResetToServer moves to the server menu. Called when the current server is
// closed.
func (m *Machine) ResetToServer() {
	m.setLevel(LevelServer)
}

func (m *Machine) setLevel(l Level) {
	if l != m.level {
		m.logger.Debug("browse level", slog.String("from", m.level.String()), slog.String("to", l.String()))
	}
	// selections from the previous menu must not be reused before a render
	m.clearSelection()
	m.level = l
}

func (m *Machine) clearSelection() {
	m.items, m.attributes, m.operations = nil, nil, nil
	m.maxChoice = 0
}

// Render builds the menu for the current level, refreshing the selection
// lists and the prompt.
func (m *Machine) Render(ctx context.Context) (string, error) {
	var body strings.Builder
	var err error
	switch m.level {
	case LevelServer:
		m.renderList(&body, " Available Servers:", "Select a server:", m.backend.Servers())
	case LevelDomain:
		err = m.renderDomains(ctx, &body)
	case LevelMBean:
		err = m.renderMBeans(ctx, &body)
	case LevelAttrOp, LevelAttribute, LevelOperation:
		err = m.renderAttrOp(ctx, &body)
	default:
		err = fmt.Errorf("unsupported menu level %s", m.level)
	}
	if err != nil {
		m.clearSelection()
		m.prompt = promptNoOptions
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(rule)
	sb.WriteString("\n\n")
	sb.WriteString(body.String())
	sb.WriteString(m.footer())
	return sb.String(), nil
}

// Display renders the menu. Failures render as a single line in place of the
// menu, with no options available.
func (m *Machine) Display(ctx context.Context) string {
	s, err := m.Render(ctx)
	if err == nil {
		return s
	}
	m.logger.Debug("browse render failed", slog.String("level", m.level.String()), slog.Any("error", err))
	return rule + "\n\n " + errorLine(err) + "\n" + m.footer()
}

func (m *Machine) renderDomains(ctx context.Context, sb *strings.Builder) error {
	c := m.nav.Load()
	if err := c.Require("browse", navctx.FieldServer); err != nil {
		return err
	}
	domains, err := m.backend.Domains(ctx, c.Server)
	if err != nil {
		return err
	}
	m.renderList(sb, " Available Domains:", "Select a domain:", domains)
	return nil
}

func (m *Machine) renderMBeans(ctx context.Context, sb *strings.Builder) error {
	c := m.nav.Load()
	if err := c.Require("browse", navctx.FieldServer, navctx.FieldDomain); err != nil {
		return err
	}
	mbeans, err := m.backend.MBeans(ctx, c.Server, c.Domain)
	if err != nil {
		return err
	}
	m.renderList(sb, " Available MBeans:", "Select an mbean:", mbeans)
	return nil
}

func (m *Machine) renderList(sb *strings.Builder, title, prompt string, all []string) {
	m.clearSelection()
	for _, s := range all {
		if m.filter.Match(s) {
			m.items = append(m.items, s)
		}
	}
	m.maxChoice = len(m.items)

	sb.WriteString(title)
	sb.WriteString("\n\n")
	for i, s := range m.items {
		fmt.Fprintf(sb, "     %3d. %s\n", i+1, s)
	}
	if len(m.items) == 0 {
		sb.WriteString("\n     (((((     No options available.\n\n")
		m.prompt = promptNoOptions
	} else {
		m.prompt = prompt
	}
}

func (m *Machine) renderAttrOp(ctx context.Context, sb *strings.Builder) error {
	c := m.nav.Load()
	if err := c.Require("browse", navctx.FieldServer, navctx.FieldMBean); err != nil {
		return err
	}
	info, err := m.backend.MBeanInfo(ctx, c.Server, c.MBean)
	if err != nil {
		return err
	}

	m.clearSelection()
	for _, a := range info.Attributes {
		if m.filter.Match(a.Name) {
			m.attributes = append(m.attributes, a)
		}
	}
	for _, o := range info.Operations {
		if m.filter.Match(o.Name) {
			m.operations = append(m.operations, o)
		}
	}
	m.maxChoice = len(m.attributes) + len(m.operations)

	n := 0
	sb.WriteString(" Attribute List:\n\n")
	for _, a := range m.attributes {
		n++
		fmt.Fprintf(sb, "     %3d. %s %s  %s\n", n, attrFlags(a), padType(a.TypeName()), a.Name)
	}
	if len(info.Operations) > 0 {
		sb.WriteString("\n Operation List:\n\n")
		for _, o := range m.operations {
			n++
			fmt.Fprintf(sb, "     %3d. %s  %s\n", n, padType(typename.Translate(o.ReturnType)), formatOperation(o))
		}
	}

	if m.maxChoice == 0 {
		sb.WriteString("\n     (((((     No options available.\n\n")
		m.prompt = promptNoOptions
	} else {
		m.prompt = "Select an attribute or operation:"
	}
	return nil
}

func attrFlags(a jmx.AttributeInfo) string {
	flags := []byte("---")
	if a.IsGetter {
		flags[0] = 'i'
	}
	if a.Readable {
		flags[1] = 'r'
	}
	if a.Writable {
		flags[2] = 'w'
	}
	return string(flags)
}

// padType pads s so columns line up on multiples of five cells, with at
// least five cells of padding for short names.
func padType(s string) string {
	w := uniseg.StringWidth(s)
	pad := 5 - w%5
	if w < 5 {
		pad += 5
	}
	return s + strings.Repeat(" ", pad)
}

func formatOperation(o jmx.OperationInfo) string {
	var sb strings.Builder
	sb.WriteString(o.Name)
	sb.WriteByte('(')
	for i, p := range o.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(typename.Translate(p.Type))
		sb.WriteString("  ")
		sb.WriteString(p.Name)
	}
	sb.WriteByte(')')
	return sb.String()
}

func (m *Machine) footer() string {
	c := m.nav.Load()
	var sb strings.Builder
	sb.WriteString("\n  SERVER: ")
	sb.WriteString(c.Server)
	sb.WriteString("\n  DOMAIN: ")
	sb.WriteString(c.Domain)
	sb.WriteString("\n  MBEAN:  ")
	sb.WriteString(c.MBean)
	sb.WriteString("\n  ATTROP: ")
	sb.WriteString(c.AttrOp)
	if m.filter != nil {
		sb.WriteString("\n  GLOB:   ")
		sb.WriteString(m.filter.String())
		sb.WriteString(" (space to clear)")
	}
	sb.WriteString("\n\n")
	sb.WriteString(rule)
	sb.WriteString("\n")
	return sb.String()
}

// HandleInput applies one line of input to the last rendered menu.
//
// "up"/"u" and "down"/"d" move between levels. A line of only whitespace
// clears the filter. Any other non-numeric input becomes the filter. A
// number selects from the last rendered menu; at the attribute/operation
// level that runs the leaf action.
func (m *Machine) HandleInput(ctx context.Context, input string) error {
	if input != "" && strings.TrimSpace(input) == "" {
		m.filter = nil
		return nil
	}
	input = strings.TrimSpace(input)

	switch input {
	case "up", "u":
		switch m.level {
		case LevelDomain:
			m.setLevel(LevelServer)
		case LevelMBean:
			m.setLevel(LevelDomain)
		case LevelAttrOp, LevelAttribute, LevelOperation:
			m.setLevel(LevelMBean)
		}
		return nil
	case "down", "d":
		switch m.level {
		case LevelServer:
			m.setLevel(LevelDomain)
		case LevelDomain:
			m.setLevel(LevelMBean)
		case LevelMBean, LevelAttribute, LevelOperation:
			m.setLevel(LevelAttrOp)
		}
		return nil
	}

	choice, err := strconv.Atoi(input)
	if err != nil {
		f, err := CompileGlob(input)
		if err != nil {
			m.filter = nil
			return err
		}
		m.filter = f
		return nil
	}

	if choice < 1 || choice > m.maxChoice {
		return jmxerr.New(jmxerr.KindOutOfRange, "", "Please make a choice between %d and %d.", 1, m.maxChoice)
	}

	switch m.level {
	case LevelServer:
		m.nav.SelectServer(m.items[choice-1])
		m.setLevel(LevelDomain)
	case LevelDomain:
		m.nav.SelectDomain(m.items[choice-1])
		m.setLevel(LevelMBean)
	case LevelMBean:
		m.nav.SelectMBean(m.items[choice-1])
		m.setLevel(LevelAttrOp)
	case LevelAttrOp:
		if choice > len(m.attributes) {
			op := m.operations[choice-len(m.attributes)-1]
			m.nav.SelectAttrOp(op.Name)
			return m.InvokeOperation(ctx, op)
		}
		attr := m.attributes[choice-1]
		m.nav.SelectAttrOp(attr.Name)
		return m.AccessAttribute(ctx, attr)
	default:
		return fmt.Errorf("unsupported menu action at level %s", m.level)
	}
	return nil
}

// Step runs HandleInput, reporting any failure as a single line followed by
// a pause. The menu re-renders from the same state afterwards.
func (m *Machine) Step(ctx context.Context, input string) {
	err := m.HandleInput(ctx, input)
	if err == nil {
		return
	}
	m.logger.Debug("browse input failed", slog.String("input", input), slog.Any("error", err))
	fmt.Fprintln(m.out, errorLine(err))
	m.pause()
}

func errorLine(err error) string {
	var je *jmxerr.Error
	if errors.As(err, &je) && je.Kind.Class() == jmxerr.ClassConnection {
		return je.Msg
	}
	line := err.Error()
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return line
}

func (m *Machine) pause() {
	_, _ = m.prompter.Prompt(promptContinue)
}

// enter holds a leaf level until the returned function is called.
func (m *Machine) enter(l Level) func() {
	m.level = l
	return func() { m.level = LevelAttrOp }
}

// AccessAttribute shows the value of attr and, if it is writable, offers to
// replace it. An empty reply leaves the value unchanged.
func (m *Machine) AccessAttribute(ctx context.Context, attr jmx.AttributeInfo) error {
	defer m.enter(LevelAttribute)()
	c := m.nav.Load()
	if err := c.Require("get", navctx.FieldServer, navctx.FieldMBean); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "%s\n\n   Accessing Attribute %s\n\n", leafRule, attr.Name)
	v, err := m.backend.GetAttribute(ctx, c.Server, c.MBean, attr.Name)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s = %s\n\n", attr.Name, marshal.Format(v))

	if attr.Writable {
		fmt.Fprintln(m.out, "Enter a new value for this attribute, or hit enter to leave it unchanged.")
		value, err := m.prompter.Prompt(fmt.Sprintf("New value (%s): ", attr.TypeName()))
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if value != "" {
			if err := m.backend.SetAttribute(ctx, c.Server, c.MBean, attr.Name, value); err != nil {
				return err
			}
			fmt.Fprintln(m.out, "Value changed.")
		} else {
			fmt.Fprintln(m.out, "Value not changed.")
		}
	}
	m.pause()
	return nil
}

// InvokeOperation prompts for each parameter and invokes op. It aborts
// without calling the server on the first value that cannot be converted.
func (m *Machine) InvokeOperation(ctx context.Context, op jmx.OperationInfo) error {
	defer m.enter(LevelOperation)()
	c := m.nav.Load()
	if err := c.Require("invoke", navctx.FieldServer, navctx.FieldMBean); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "%s\n\n   Invoking Operation %s\n\n", leafRule, op.Name)
	if n := len(op.Params); n > 0 {
		fmt.Fprintf(m.out, "Please enter values for %d parameters.\n", n)
	}

	args := make([]any, len(op.Params))
	for i, p := range op.Params {
		value, err := m.prompter.Prompt(fmt.Sprintf(" %s (%s): ", p.Name, typename.Translate(p.Type)))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		v, err := m.marshal.ToTypedValue(value, p.Type)
		if err != nil {
			m.logger.Debug("parameter conversion failed", slog.String("param", p.Name), slog.Any("error", err))
			fmt.Fprintln(m.out, "Unable to convert parameter value, aborting.")
			m.pause()
			return nil
		}
		args[i] = v
	}

	result, err := m.backend.InvokeTyped(ctx, c.Server, c.MBean, op.Name, args, op.Signature())
	if err != nil {
		return err
	}
	if op.IsVoid() {
		fmt.Fprintln(m.out, "Invoked.")
	} else {
		fmt.Fprintf(m.out, "Result: %s\n", marshal.Format(result))
	}
	m.pause()
	return nil
}

// Help returns the browse mode help text.
func (m *Machine) Help() string {
	return helpText
}

const helpText = leafRule + `
   Browse Mode Help

This mode is a tree browser of the JMX namespace.  It
is menu-driven, so there are no commands to memorize.

At most times, you will be presented with a list of
JMX objects.  You can select one by number and that
will result in descending the tree, and opening a new
menu of choices.

Besides entering a number, you can enter the words 'up'
or 'down' (or 'u' or 'd') to move a level up or down in
the browsing hierarchy.

If you enter some other non-numerical string,
that string will be treated as a glob pattern (case-
insensitive, with *'s prefixed and suffixed) and applied
to the current listing of JMX items.

To clear a glob currently in effect, enter a single space
and hit enter.

As you browse, the current SERVER, DOMAIN, MBEAN, and
ATTROP (attribute or operation) values will be shown.
These are global variables in the JavaScript shell, and
remain set when you leave browse mode.

To leave browse mode, press enter at an empty line.
You will know you have left when you see the shell
prompt, '%'.
` + leafRule + "\n"
