package main

import (
	"encoding/base64"
	"fmt"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys <predicate>",
		Short: "Manage authorized keys on matching executors",
	}

	authorize := &cobra.Command{
		Use:   "authorize <predicate> <key_id> <base64-pubkey>",
		Short: "Install an authorized key on every matching executor",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			keyBytes, err := base64.StdEncoding.DecodeString(args[2])
			if err != nil {
				return fmt.Errorf("decode public key: %w", err)
			}
			return launch(cfg, args[0], &funtonicpb.LaunchTaskRequestPayload{
				Task: &funtonicpb.LaunchTaskRequestPayload_AuthorizeKey{
					AuthorizeKey: &funtonicpb.PublicKey{KeyId: args[1], Bytes: keyBytes},
				},
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <predicate> <key_id>",
		Short: "Revoke an authorized key on every matching executor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return launch(cfg, args[0], &funtonicpb.LaunchTaskRequestPayload{
				Task: &funtonicpb.LaunchTaskRequestPayload_RevokeKey{RevokeKey: args[1]},
			})
		},
	}

	cmd.AddCommand(authorize, revoke)
	return cmd
}
