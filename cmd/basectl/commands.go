package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/eventbase/pkg/base"
	"github.com/cuemby/eventbase/pkg/manager"
	"github.com/cuemby/eventbase/pkg/predicate"
	"github.com/cuemby/eventbase/pkg/types"
	"github.com/spf13/cobra"
)

// withBase opens a Manager scoped to this command's flags, resolves the
// --stream base, runs fn, then tears the Manager down. Every one-shot
// subcommand (get/put/delete/keys/query) shares this shape.
func withBase(cmd *cobra.Command, fn func(ctx context.Context, b *base.Base) error) error {
	stream, err := requiredStream(cmd)
	if err != nil {
		return err
	}
	cfg, err := managerConfig(cmd)
	if err != nil {
		return err
	}

	mgr := manager.New(cfg)
	defer mgr.CloseAll()

	ctx := context.Background()
	b, err := mgr.GetStream(ctx, stream)
	if err != nil {
		return fmt.Errorf("open stream %q: %w", stream, err)
	}

	return fn(ctx, b)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a document by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBase(cmd, func(ctx context.Context, b *base.Base) error {
			rec, ok, err := b.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(not found)")
				return nil
			}
			return printJSON(rec)
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <id> <json>",
	Short: "Put a document under id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBase(cmd, func(ctx context.Context, b *base.Base) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("payload is not valid JSON")
			}
			rec, err := b.Put(ctx, args[0], json.RawMessage(args[1]))
			if err != nil {
				return err
			}
			return printJSON(rec)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBase(cmd, func(ctx context.Context, b *base.Base) error {
			result, err := b.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("deleted %s (%d log entries purged)\n", args[0], result.Purged)
			return nil
		})
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys [pattern]",
	Short: "List keys, optionally filtered by a regular expression",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}
		return withBase(cmd, func(ctx context.Context, b *base.Base) error {
			keys, err := b.Keys(ctx, pattern)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <predicate-json>",
	Short: `Run a predicate query, e.g. '{"age":{"$gte":18}}'`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		var pred predicate.Predicate
		if err := json.Unmarshal([]byte(args[0]), &pred); err != nil {
			return fmt.Errorf("parse predicate: %w", err)
		}

		return withBase(cmd, func(ctx context.Context, b *base.Base) error {
			records, err := b.Query(ctx, pred, types.QueryOptions{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			return printJSON(records)
		})
	},
}

func init() {
	queryCmd.Flags().Int("limit", 0, "Maximum number of results (0 = unlimited)")
	queryCmd.Flags().Int("offset", 0, "Number of results to skip")
}

var watchCmd = &cobra.Command{
	Use:   "watch [predicate-json]",
	Short: "Subscribe to matching events and print them until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pred predicate.Predicate
		if len(args) == 1 {
			if err := json.Unmarshal([]byte(args[0]), &pred); err != nil {
				return fmt.Errorf("parse predicate: %w", err)
			}
		}

		return withBase(cmd, func(ctx context.Context, b *base.Base) error {
			unsub, err := b.Subscribe(ctx, pred, func(id string, payload []byte, meta *types.MetaData, event *types.Event) {
				fmt.Printf("%s %s %s\n", event.Type, id, string(payload))
			})
			if err != nil {
				return err
			}
			defer unsub()

			fmt.Println("watching, press Ctrl+C to stop...")
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh
			fmt.Println("\nstopped")
			return nil
		})
	},
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
