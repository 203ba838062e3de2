package cli

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  [][]string
	err   error
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Login(ctx context.Context) error {
	f.calls = append(f.calls, "login")
	f.loggedIn = true
	return nil
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.calls = append(f.calls, "logout")
	f.loggedIn = false
	return nil
}
func (f *fakeExec) Server(ctx context.Context, args []string) error {
	f.calls = append(f.calls, "server")
	f.args = append(f.args, args)
	return nil
}
func (f *fakeExec) Sync(ctx context.Context) error { f.calls = append(f.calls, "sync"); return f.err }
func (f *fakeExec) Full(ctx context.Context, args []string) error {
	f.calls = append(f.calls, "full")
	f.args = append(f.args, args)
	return nil
}
func (f *fakeExec) Media(ctx context.Context) error  { f.calls = append(f.calls, "media"); return nil }
func (f *fakeExec) Status(ctx context.Context) error { f.calls = append(f.calls, "status"); return nil }

func capturePrints(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		parts := make([]string, len(a))
		for i, v := range a {
			parts[i], _ = v.(string)
		}
		lines = append(lines, strings.Join(parts, " "))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &lines
}

func reader(lines ...string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(strings.Join(lines, "\n")))
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	capturePrints(t)

	exec := &fakeExec{loggedIn: false}
	runREPL(context.Background(), exec, func() string { return "status" }, reader(
		"help",
		"sync",
		"login",
		"help",
		"server https://sync.example.com/",
		"sync",
		"full download",
		"media",
		"status",
		"logout",
		"foobar",
		"exit",
		"sync",
	))

	assert.Equal(t, []string{"login", "server", "sync", "full", "media", "status", "logout"}, exec.calls)
	assert.Equal(t, [][]string{{"https://sync.example.com/"}, {"download"}}, exec.args)
}

func TestRunREPL_NotLoggedInGuards(t *testing.T) {
	lines := capturePrints(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, reader("media", "full upload", "quit"))

	assert.Empty(t, exec.calls)
	assert.Contains(t, *lines, "Not logged in; use 'login' first")
}

func TestRunREPL_PrintsCommandErrors(t *testing.T) {
	lines := capturePrints(t)

	exec := &fakeExec{loggedIn: true, err: common.ErrBadAuth}
	runREPL(context.Background(), exec, func() string { return "" }, reader("sync"))

	assert.Equal(t, []string{"sync"}, exec.calls)
	assert.Contains(t, *lines, describe(common.ErrBadAuth))
}

func TestRunREPL_StopsWhenContextDone(t *testing.T) {
	capturePrints(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{loggedIn: true, err: errors.New("unused")}
	runREPL(ctx, exec, func() string { return "" }, reader("sync", "sync"))

	assert.Empty(t, exec.calls)
}
