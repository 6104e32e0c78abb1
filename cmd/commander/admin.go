package main

import (
	"context"
	"fmt"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/spf13/cobra"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer the task server (§4.7 operations)",
	}

	cmd.AddCommand(
		adminQueryCmd("list-connected-executors", "[query]", func(q string) *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_ListConnectedExecutors{ListConnectedExecutors: orWildcard(q)}}
		}),
		adminQueryCmd("list-known-executors", "[query]", func(q string) *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_ListKnownExecutors{ListKnownExecutors: orWildcard(q)}}
		}),
		adminNoArgCmd("list-running-tasks", func() *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_ListRunningTasks{ListRunningTasks: &funtonicpb.Empty{}}}
		}),
		adminRequiredQueryCmd("drop-executor", "<query>", func(q string) *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_DropExecutor{DropExecutor: q}}
		}),
		adminNoArgCmd("list-executor-keys", func() *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_ListExecutorKeys{ListExecutorKeys: &funtonicpb.Empty{}}}
		}),
		adminRequiredQueryCmd("approve-executor-key", "<client_id|*>", func(clientID string) *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_ApproveExecutorKey{ApproveExecutorKey: clientID}}
		}),
		adminNoArgCmd("list-authorized-keys", func() *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_ListAuthorizedKeys{ListAuthorizedKeys: &funtonicpb.Empty{}}}
		}),
		adminNoArgCmd("list-admin-authorized-keys", func() *funtonicpb.AdminRequest {
			return &funtonicpb.AdminRequest{Operation: &funtonicpb.AdminRequest_ListAdminAuthorizedKeys{ListAdminAuthorizedKeys: &funtonicpb.Empty{}}}
		}),
	)
	return cmd
}

func orWildcard(q string) string {
	if q == "" {
		return "*"
	}
	return q
}

func adminQueryCmd(name, argHint string, build func(query string) *funtonicpb.AdminRequest) *cobra.Command {
	return &cobra.Command{
		Use:   name + " " + argHint,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runAdmin(build(query))
		},
	}
}

func adminRequiredQueryCmd(name, argHint string, build func(query string) *funtonicpb.AdminRequest) *cobra.Command {
	return &cobra.Command{
		Use:   name + " " + argHint,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(build(args[0]))
		},
	}
}

func adminNoArgCmd(name string, build func() *funtonicpb.AdminRequest) *cobra.Command {
	return &cobra.Command{
		Use:  name,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(build())
		},
	}
}

func runAdmin(req *funtonicpb.AdminRequest) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	signed, err := signPayload(cfg, req)
	if err != nil {
		return err
	}

	conn, err := dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	client := funtonicpb.NewCommanderServiceClient(conn)

	resp, err := client.Admin(context.Background(), signed)
	if err != nil {
		return fmt.Errorf("admin request: %w", err)
	}
	fmt.Println(resp.GetResultJson())
	return nil
}
