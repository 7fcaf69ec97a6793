// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielhkuo/quickly-tally/auth"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/queue"
)

// operatorCommand runs body against a fully wired app and releases it
// afterwards. want is the number of positional arguments, -1 for any.
func operatorCommand(use, short string, want int, body func(ctx context.Context, a *app, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:                use,
		Short:              short,
		DisableFlagParsing: true,
		RunE: withConfig(func(ctx context.Context, cfg cliparse.Config) error {
			if want >= 0 && len(cfg.Args) != want {
				return fmt.Errorf("%s: expected %d argument(s), got %d", strings.Fields(use)[0], want, len(cfg.Args))
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			return body(ctx, a, cfg.Args)
		}),
	}
}

func recomputeCommand() *cobra.Command {
	return operatorCommand("recompute [id] [flags]", "Rebuild a subtree from its village documents, everything without id", -1,
		func(ctx context.Context, a *app, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("recompute: expected at most one id, got %d", len(args))
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			rollup, err := a.driver.Rebuild(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%q: pas1=%d pas2=%d pas3=%d completed=%d/%d\n",
				id, rollup.Pas1, rollup.Pas2, rollup.Pas3, rollup.Completed, rollup.TotalStations)
			return nil
		})
}

func replayCommand() *cobra.Command {
	return operatorCommand("replay [flags]", "Deliver every dead-lettered task again", 0,
		func(ctx context.Context, a *app, _ []string) error {
			im := queue.NewImmediate(a.store, a.svc.HandleTask, a.queueOptions()...)
			n, err := queue.Replay(ctx, a.store, im)
			fmt.Fprintf(os.Stdout, "replayed %d task(s)\n", n)
			return err
		})
}

func actorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage contributors",
	}
	cmd.AddCommand(
		operatorCommand("register <name> [email] [flags]", "Register an actor and print its uid and token", -1,
			func(ctx context.Context, a *app, args []string) error {
				if len(args) < 1 || len(args) > 2 {
					return fmt.Errorf("register: expected a name and an optional email")
				}
				email := ""
				if len(args) == 2 {
					email = args[1]
				}
				uid, err := auth.GenerateID(16)
				if err != nil {
					return err
				}
				if _, err := a.svc.Register(ctx, uid, args[0], email); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "uid=%s token=%s\n", uid, auth.GenerateActorToken(uid, a.cfg.ActorSalt))
				return nil
			}),
		operatorCommand("set-role <uid> <role> [flags]", "Change the role of an actor", 2,
			func(ctx context.Context, a *app, args []string) error {
				role, ok := models.ParseRole(args[1])
				if !ok {
					return fmt.Errorf("unknown role %q", args[1])
				}
				return a.svc.GrantRole(ctx, args[0], role)
			}),
		operatorCommand("reset <uid> [flags]", "Back up and clear the statistics of an actor", 1,
			func(ctx context.Context, a *app, args []string) error {
				p, err := a.svc.ResetStats(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "reset %s (%s)\n", p.UID, p.Name)
				return nil
			}),
	)
	return cmd
}
