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
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Server(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Full(ctx context.Context, args []string) error
	Media(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the ankisync CLI.
//
// It reads a line from the provided reader, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on EOF, when ctx is done, or when the
// user types "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help                     show available commands
//	  - login                    authenticate and store the host key
//	  - server [url]             use a custom sync server, or the default without url
//	  - status                   show login and server state
//	  - exit | quit              leave the program
//
//	Logged in, additionally:
//	  - sync                     collection sync, then media
//	  - full download|upload     replace one side with the other
//	  - media                    media sync only
//	  - logout                   forget the host key
//
// Command handlers print their own results; the loop only prints
// errors they return.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("anki %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: sync, full download|upload, media, status, server [url], logout, exit")
			} else {
				printlnFn("Available commands: login, server [url], status, exit")
			}

		case "login":
			cmdErr = a.Login(ctx)

		case "server":
			cmdErr = a.Server(ctx, args)

		case "status":
			cmdErr = a.Status(ctx)

		case "sync", "full", "media", "logout":
			if !a.isLoggedIn() {
				printlnFn("Not logged in; use 'login' first")
				continue
			}
			switch cmd {
			case "sync":
				cmdErr = a.Sync(ctx)
			case "full":
				cmdErr = a.Full(ctx, args)
			case "media":
				cmdErr = a.Media(ctx)
			case "logout":
				cmdErr = a.Logout(ctx)
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn(describe(cmdErr))
		}
	}
}
