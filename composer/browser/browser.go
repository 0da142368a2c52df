// Package browser opens URLs in a web browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Open opens the URL in the platform default browser.
func Open(url string) error {
	switch runtime.GOOS {
	case `darwin`:
		return start(exec.Command(`open`, url))
	case `windows`:
		return start(exec.Command(`rundll32`, `url.dll,FileProtocolHandler`, url))
	default:
		return start(exec.Command(`xdg-open`, url))
	}
}

// OpenWith opens the URL with the given browser command.  The command is split on whitespace so
// callers can pass arguments, such as "firefox --private-window".
func OpenWith(command, url string) error {
	name, args, err := Split(command)
	if err != nil {
		return err
	}
	return start(exec.Command(name, append(args, url)...))
}

// Split breaks a browser command into its executable and arguments.
func Split(command string) (string, []string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ``, nil, fmt.Errorf(`empty browser command`)
	}
	return fields[0], fields[1:], nil
}

func start(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return fmt.Errorf(`%w while starting %q`, err, cmd.Path)
	}
	// The browser outlives us; reap it in the background so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}
