package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/arcflow/conductor/pkg/guard"
	"github.com/arcflow/conductor/pkg/logger"
	"github.com/arcflow/conductor/pkg/storage"
	"github.com/arcflow/conductor/pkg/task"
)

// ChatCmd runs a single orchestrator against an interactive REPL instead
// of the HTTP surface — one line in, one Orchestrator.Execute, the result printed
// before the next prompt.
type ChatCmd struct {
	Storage   string `help:"Durable storage dialect: sqlite, postgres, mysql (default: in-memory)." placeholder:"DIALECT"`
	StorageDB string `name:"storage-db" help:"Storage DSN/path (required with --storage)." placeholder:"DSN"`
	Strict    bool   `help:"Start the guard in strict mode, prompting for approval before every side-effecting tool call."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Strict {
		cfg.ExecutionMode = "strict"
	}

	sc := storage.Config{}
	if c.Storage != "" {
		sc.Durable.Dialect = dialectFor(c.Storage)
		sc.Durable.DSN = c.StorageDB
	}

	comps, err := buildComponents(ctx, cfg, sc, nil, logger.GetLogger(), terminalApprove(reader))
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}

	return runChatLoop(ctx, reader, comps)
}

// terminalApprove asks the operator at the keyboard before a strict-mode
// side-effecting call proceeds, the chat-mode counterpart to serve's
// default deny-everything policy. If stdin isn't an actual terminal
// (piped input, a script, a CI job), there is no one to prompt, so every
// call is denied instead of blocking forever on a read that will never
// resolve the way a human answer would.
func terminalApprove(reader *bufio.Reader) guard.ApprovalFunc {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	return func(ctx context.Context, req guard.ApprovalRequest) (bool, string) {
		if !interactive {
			return false, "denied: stdin is not a terminal, cannot prompt for approval"
		}
		fmt.Printf("approve call to %q (category %s)? [y/N] ", req.ToolName, req.Category)
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(strings.ToLower(line))
		if line == "y" || line == "yes" {
			return true, "approved at terminal"
		}
		return false, "denied at terminal"
	}
}

func runChatLoop(ctx context.Context, reader *bufio.Reader, comps *components) error {
	fmt.Println("orchestrator chat — type a task prompt, /quit to exit.")
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		t := task.New("orchestrator", line)
		t.Enqueue()
		if err := comps.Storage.SaveTask(ctx, t.ToRecord()); err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}

		result, err := comps.Orchestrator.Execute(ctx, t)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		t.Complete(result)
		if err := comps.Storage.UpdateTask(ctx, t.ToRecord()); err != nil {
			fmt.Printf("warning: failed to persist task: %v\n", err)
		}

		printResult(result)
	}
}

func printResult(result task.Result) {
	if result.Success {
		fmt.Println(result.Output)
		return
	}
	fmt.Println("task failed:")
	for _, e := range result.Errors {
		fmt.Printf("  [%s] %s\n", e.Code, e.Message)
	}
}
