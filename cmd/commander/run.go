package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <predicate> <cmd...>",
		Short: "Run a command on every executor matching predicate",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return launch(cfg, args[0], &funtonicpb.LaunchTaskRequestPayload{
				Task: &funtonicpb.LaunchTaskRequestPayload_ExecuteCommand{
					ExecuteCommand: &funtonicpb.ExecuteCommand{Command: args[1:]},
				},
			})
		},
	}
	return cmd
}

func interactiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "int <predicate>",
		Short: "Interactive REPL against matching executors (not implemented)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("interactive mode is not implemented")
		},
	}
}

// launch signs payload, parses predicate client-side to fail fast, calls
// LaunchTask, and renders the fan-out and per-executor events as they
// arrive. It returns a non-nil error (and commander exits 1 per §6) if any
// executor rejected, aborted, or disconnected.
func launch(cfg *commanderConfig, query string, payload *funtonicpb.LaunchTaskRequestPayload) error {
	if _, err := predicate.Parse(query); err != nil {
		return fmt.Errorf("invalid predicate %q: %w", query, err)
	}

	signed, err := signPayload(cfg, payload)
	if err != nil {
		return err
	}

	conn, err := dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	client := funtonicpb.NewCommanderServiceClient(conn)

	stream, err := client.LaunchTask(context.Background(), &funtonicpb.LaunchTaskRequest{
		Payload:   signed,
		Predicate: query,
	})
	if err != nil {
		return fmt.Errorf("launch task: %w", err)
	}

	uniform := true
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("receive task response: %w", err)
		}

		switch r := resp.GetTaskResponse().(type) {
		case *funtonicpb.LaunchTaskResponse_MatchingExecutors:
			ids := append([]string(nil), r.MatchingExecutors.GetClientId()...)
			sort.Strings(ids)
			fmt.Printf("matching executors: %v\n", ids)
			if len(ids) == 0 {
				// A zero matches is itself a failure (§7): no TaskExecutionResult
				// events will follow, so uniform must be forced false here.
				uniform = false
			}
		case *funtonicpb.LaunchTaskResponse_TaskExecutionResult:
			if !renderExecutionResult(r.TaskExecutionResult) {
				uniform = false
			}
		}
	}

	if !uniform {
		return fmt.Errorf("one or more executors did not complete successfully")
	}
	return nil
}

// renderExecutionResult prints one executor's event and reports whether it
// counts as success for §6's exit-code rule.
func renderExecutionResult(r *funtonicpb.TaskExecutionResult) bool {
	clientID := r.GetClientId()
	switch e := r.GetExecutionResult().GetExecutionResult().(type) {
	case *funtonicpb.TaskExecutionEvent_TaskSubmitted:
		fmt.Printf("[%s] submitted (task %s)\n", clientID, r.GetTaskId())
		return true
	case *funtonicpb.TaskExecutionEvent_Ping:
		return true
	case *funtonicpb.TaskExecutionEvent_TaskOutput:
		if out := e.TaskOutput.GetStdout(); out != nil {
			fmt.Printf("[%s] %s", clientID, out)
		}
		if out := e.TaskOutput.GetStderr(); out != nil {
			fmt.Printf("[%s] (stderr) %s", clientID, out)
		}
		return true
	case *funtonicpb.TaskExecutionEvent_TaskRejected:
		fmt.Printf("[%s] rejected: %s\n", clientID, e.TaskRejected)
		return false
	case *funtonicpb.TaskExecutionEvent_TaskAborted:
		fmt.Printf("[%s] aborted\n", clientID)
		return false
	case *funtonicpb.TaskExecutionEvent_TaskCompleted:
		fmt.Printf("[%s] completed, exit code %d\n", clientID, e.TaskCompleted)
		return e.TaskCompleted == 0
	case *funtonicpb.TaskExecutionEvent_Disconnected:
		fmt.Printf("[%s] disconnected\n", clientID)
		return false
	default:
		return true
	}
}
