package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownAction = errors.New("unknown action")

// Action names an operator control.
type Action string

const (
	ActionConnect            Action = "connect"
	ActionSetIntegrationTime Action = "set_integration_time"
	ActionSetScansToAverage  Action = "set_scans_to_average"
	ActionStart              Action = "start"
	ActionStop               Action = "stop"
	ActionExport             Action = "export"
	ActionStatus             Action = "status"
)

// Command is one operator action as sent by a UI shell.
type Command struct {
	Action Action `json:"action"`
	Value  string `json:"value,omitempty"` // numeric fields, as typed
	Path   string `json:"path,omitempty"`  // export destination
}

// Result is the session snapshot returned after every command.
type Result struct {
	State             State  `json:"state"`
	Status            string `json:"status"`
	Model             string `json:"model,omitempty"`
	IntegrationMicros int    `json:"integration_time_us"`
	ScansToAverage    int    `json:"scans_to_average"`
	Path              string `json:"path,omitempty"`
}

type handler func(s *Session, cmd Command, res *Result) error

var handlers = map[Action]handler{
	ActionConnect: func(s *Session, _ Command, _ *Result) error {
		return s.Connect()
	},
	ActionSetIntegrationTime: func(s *Session, cmd Command, _ *Result) error {
		n, err := parsePositive("integration time", cmd.Value)
		if err != nil {
			return s.reportError(err)
		}
		return s.SetIntegrationTime(n)
	},
	ActionSetScansToAverage: func(s *Session, cmd Command, _ *Result) error {
		n, err := parsePositive("scans to average", cmd.Value)
		if err != nil {
			return s.reportError(err)
		}
		return s.SetScansToAverage(n)
	},
	ActionStart: func(s *Session, _ Command, _ *Result) error {
		return s.StartCapture()
	},
	ActionStop: func(s *Session, _ Command, _ *Result) error {
		return s.StopCapture()
	},
	ActionExport: func(s *Session, cmd Command, res *Result) error {
		path, err := s.Export(cmd.Path)
		res.Path = path
		return err
	},
	ActionStatus: func(*Session, Command, *Result) error {
		return nil
	},
}

// Dispatch runs cmd against s and returns the resulting snapshot. It must be
// called from the goroutine that owns s.
func Dispatch(s *Session, cmd Command) (Result, error) {
	var res Result

	h, ok := handlers[cmd.Action]
	if !ok {
		fillResult(s, &res)
		return res, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}

	err := h(s, cmd, &res)
	fillResult(s, &res)
	return res, err
}

func fillResult(s *Session, res *Result) {
	res.State = s.State()
	res.Status = s.Status()
	res.Model = s.Device().Model
	res.IntegrationMicros = s.IntegrationTime()
	res.ScansToAverage = s.ScansToAverage()
}

// parsePositive accepts only a positive decimal integer.
func parsePositive(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidValue, field, value)
	}
	return n, nil
}
