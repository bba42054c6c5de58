package player

import (
	"fmt"
	"sort"
	"strings"
)

const defaultSkip = "10"

// Commands maps controller slash-commands onto an engine.
func Commands(e *Engine) map[string]func([]string) error {
	slashPlay := func(args []string) error {
		if len(args) > 0 {
			if err := seekOffset(e, args[0]); err != nil {
				return err
			}
		}
		return e.Play()
	}
	slashSeek := func(args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("seek: missing time")
		}
		return seekOffset(e, args[0])
	}
	skip := func(sign int64) func([]string) error {
		return func(args []string) error {
			amount := defaultSkip
			if len(args) > 0 {
				amount = args[0]
			}
			us, err := ParseOffset(amount)
			if err != nil {
				return err
			}
			return e.Seek(e.Status().Position + sign*us)
		}
	}
	return map[string]func([]string) error{
		"/play":  slashPlay,
		"/seek":  slashSeek,
		"/back":  skip(-1),
		"/fwd":   skip(+1),
		"/pause": func([]string) error { e.Pause(); return nil },
		"/stop":  func([]string) error { e.Stop(); return nil },
		"/faster": func([]string) error {
			e.SpeedUp()
			return nil
		},
		"/slower": func([]string) error {
			e.SpeedDown()
			return nil
		},
		"/reverse": func([]string) error {
			e.SetDirection(true)
			return nil
		},
		"/forward": func([]string) error {
			e.SetDirection(false)
			return nil
		},
	}
}

// Exec runs a single command line such as "/seek 01:30" against e.
func Exec(e *Engine, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return fmt.Errorf("empty command")
	}
	name := args[0]
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	c := Commands(e)[name]
	if c == nil {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return c(args[1:])
}

// CommandNames lists the supported commands, sorted.
func CommandNames() []string {
	var names []string
	for name := range Commands(nil) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// seekOffset seeks to an offset measured from the start of the recording.
func seekOffset(e *Engine, offset string) error {
	us, err := ParseOffset(offset)
	if err != nil {
		return err
	}
	min, _, ok := e.Bounds()
	if !ok {
		return ErrNoBounds
	}
	return e.Seek(min + us)
}
