package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/messages"
)

const pausePrompt = "Paused. Press p to continue and q to exit... "

const pauseHelp = `commands:
  p | resume                    continue collecting
  q | quit                      stop the session
  weather <name>                change the weather
  time <hour> <minute>          change the time of day
  vehicle <model>               change the ego vehicle
  commands <thr> <brk> <steer>  drive the ego vehicle directly`

// Prompter asks the operator what to do while the session is paused.
type Prompter interface {
	Prompt(label string) (string, error)
	Notify(msg string)
}

// LinePrompter reads one line per prompt.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter prompts on out and reads answers from in.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *LinePrompter) Notify(msg string) {
	fmt.Fprintln(p.out, msg)
}

// pause prompts until the operator resumes or quits. Without a prompter the
// session quits.
func (c *Controller) pause() (quit bool, err error) {
	p := c.opts.Prompter
	if p == nil {
		return true, nil
	}
	c.log.Info("Session paused", "tick", c.tick.Load())
	for {
		line, err := p.Prompt(pausePrompt)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("pause prompt: %w", err)
		}
		args, err := shellquote.Split(line)
		if err != nil {
			p.Notify(err.Error())
			continue
		}
		done, quit, err := c.command(args)
		if err != nil {
			if errors.Is(err, core.ErrTransportClosed) {
				return false, err
			}
			p.Notify(err.Error())
			continue
		}
		if done {
			if !quit {
				c.log.Info("Session resumed", "tick", c.tick.Load())
			}
			return quit, nil
		}
	}
}

// command runs one prompt command. done reports that the prompt is over.
func (c *Controller) command(args []string) (done, quit bool, err error) {
	if len(args) == 0 {
		return false, false, nil
	}
	switch strings.ToLower(args[0]) {
	case "p", "resume":
		return true, false, nil
	case "q", "quit":
		return true, true, nil
	case "help", "?":
		c.opts.Prompter.Notify(pauseHelp)
		return false, false, nil
	case "weather":
		if len(args) != 2 {
			return false, false, errors.New("usage: weather <name>")
		}
		err = c.Reconfigure(&messages.Scenario{Weather: core.Some(args[1])}, nil)
	case "vehicle":
		if len(args) != 2 {
			return false, false, errors.New("usage: vehicle <model>")
		}
		err = c.Reconfigure(&messages.Scenario{Vehicle: core.Some(args[1])}, nil)
	case "time":
		nums, perr := parseNumbers(args[1:], 2)
		if perr != nil {
			return false, false, fmt.Errorf("usage: time <hour> <minute>: %w", perr)
		}
		hour, minute := int(nums[0]), int(nums[1])
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return false, false, fmt.Errorf("time out of range: %02d:%02d", hour, minute)
		}
		err = c.Reconfigure(&messages.Scenario{Time: core.Some(messages.ClockTime{Hour: hour, Minute: minute})}, nil)
	case "commands":
		nums, perr := parseNumbers(args[1:], 3)
		if perr != nil {
			return false, false, fmt.Errorf("usage: commands <throttle> <brake> <steering>: %w", perr)
		}
		err = c.SendCommands(nums[0], nums[1], nums[2])
	default:
		return false, false, fmt.Errorf("unknown command %q, try help", args[0])
	}
	if err != nil {
		return false, false, err
	}
	c.log.Info("Sent pause command", "command", args[0], "args", args[1:])
	return false, false, nil
}

func parseNumbers(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
