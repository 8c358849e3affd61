package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionKind identifies an on_press variant
type ActionKind string

const (
	ActionKindHTTP     ActionKind = "http"
	ActionKindShell    ActionKind = "shell"
	ActionKindNavigate ActionKind = "navigate"
	ActionKindBack     ActionKind = "back"
	ActionKindHome     ActionKind = "home"
)

// Action is the closed set of things a button press can do.
// The unexported method keeps implementations inside this package.
type Action interface {
	Kind() ActionKind
	isAction()
}

// HTTPAction issues a single HTTP request
type HTTPAction struct {
	Method  string            `yaml:"method"` // GET, POST, PUT, DELETE or PATCH (default: GET)
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
}

// ShellAction runs a command through /bin/sh -c
type ShellAction struct {
	Command string `yaml:"command"`
}

// NavigateAction pushes a page onto the navigation stack
type NavigateAction struct {
	Page string `yaml:"page"`
}

// BackAction pops the navigation stack
type BackAction struct{}

// HomeAction resets navigation to the home page
type HomeAction struct{}

func (HTTPAction) Kind() ActionKind     { return ActionKindHTTP }
func (ShellAction) Kind() ActionKind    { return ActionKindShell }
func (NavigateAction) Kind() ActionKind { return ActionKindNavigate }
func (BackAction) Kind() ActionKind     { return ActionKindBack }
func (HomeAction) Kind() ActionKind     { return ActionKindHome }

func (HTTPAction) isAction()     {}
func (ShellAction) isAction()    {}
func (NavigateAction) isAction() {}
func (BackAction) isAction()     {}
func (HomeAction) isAction()     {}

// decodeAction decodes an on_press mapping using its "action" tag.
func decodeAction(node *yaml.Node) (Action, error) {
	var tag struct {
		Action string `yaml:"action"`
	}
	if err := node.Decode(&tag); err != nil {
		return nil, err
	}

	switch ActionKind(tag.Action) {
	case ActionKindHTTP:
		var a HTTPAction
		if err := node.Decode(&a); err != nil {
			return nil, err
		}
		if a.URL == "" {
			return nil, fmt.Errorf("line %d: http action requires url", node.Line)
		}
		if a.Method == "" {
			a.Method = "GET"
		}
		a.Method = strings.ToUpper(a.Method)
		return a, nil
	case ActionKindShell:
		var a ShellAction
		if err := node.Decode(&a); err != nil {
			return nil, err
		}
		if a.Command == "" {
			return nil, fmt.Errorf("line %d: shell action requires command", node.Line)
		}
		return a, nil
	case ActionKindNavigate:
		var a NavigateAction
		if err := node.Decode(&a); err != nil {
			return nil, err
		}
		if a.Page == "" {
			return nil, fmt.Errorf("line %d: navigate action requires page", node.Line)
		}
		return a, nil
	case ActionKindBack:
		return BackAction{}, nil
	case ActionKindHome:
		return HomeAction{}, nil
	case "":
		return nil, fmt.Errorf("line %d: on_press requires an action field", node.Line)
	default:
		return nil, fmt.Errorf("line %d: unknown action %q", node.Line, tag.Action)
	}
}
