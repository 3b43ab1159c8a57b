package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn(ctx context.Context) bool
	LoginEmail(ctx context.Context) error
	LoginPhone(ctx context.Context) error
	SetPin(ctx context.Context) error
	Unlock(ctx context.Context) error
	Status(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Forget(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the authbridge CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. The same reader is used by the commands'
// prompts, so piped input is consumed in order. The loop exits on EOF or
// when the user types "exit" or "quit".
//
//	Signed out:
//	  - help           show available commands
//	  - login-email    sign in with a code sent by email
//	  - login-phone    sign in with a code sent by SMS
//	  - unlock         sign in with this device's PIN
//	  - status         show session state
//	  - forget         sign out and remove this device's PIN
//	  - exit | quit    leave the program
//
//	Signed in, additionally:
//	  - set-pin        set or replace this device's PIN
//	  - whoami         show the server's view of the user
//	  - refresh        refresh the session tokens
//	  - logout         end the session
//
// Errors returned by command handlers are already reported to the user and
// are ignored here.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("ab (%s)> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn(ctx) {
				printlnFn("Available commands: status, whoami, set-pin, refresh, logout, forget, exit")
			} else {
				printlnFn("Available commands: login-email, login-phone, unlock, status, forget, exit")
			}

		case "login-email":
			_ = a.LoginEmail(ctx)

		case "login-phone":
			_ = a.LoginPhone(ctx)

		case "set-pin":
			_ = a.SetPin(ctx)

		case "unlock":
			_ = a.Unlock(ctx)

		case "status":
			_ = a.Status(ctx)

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "forget":
			_ = a.Forget(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
