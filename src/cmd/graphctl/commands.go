package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"relgraph/src/domain"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// command é a operação pedida na linha de comando, já parseada.
type command struct {
	name    string
	caller  domain.Caller
	request domain.TraversalRequest
	path    domain.ShortestPathRequest
	typeID  int64
	payload []byte
}

type runner func(cmd command) error

var (
	callerID   int64
	callerType string
)

// newRootCommand monta a árvore de subcomandos. run recebe o comando já
// validado; os testes trocam run por um spy.
//
//	graphctl traverse --seed 1:10 --types works_at,manages --depth 2 --direction both
//	graphctl path --source 1:10 --target 1:42 --depth 4
//	graphctl create-type type.json
//	graphctl delete-type --id 12
//	graphctl upsert-policy < policy.json
//	graphctl purge-paths
func newRootCommand(run runner) *cobra.Command {
	root := &cobra.Command{
		Use:          "graphctl",
		Short:        "Operate the relationship graph: queries, edge type catalog and permission policies",
		SilenceUsage: true,
	}

	root.PersistentFlags().Int64Var(&callerID, "caller", 0, "caller id")
	root.PersistentFlags().StringVar(&callerType, "caller-type", "", "caller type; resolved from the caller id when empty")

	root.AddCommand(
		newTraverseCommand(run),
		newPathCommand(run),
		newCreateTypeCommand(run),
		newDeleteTypeCommand(run),
		newUpsertPolicyCommand(run),
		newPurgePathsCommand(run),
	)

	return root
}

func currentCaller() domain.Caller {
	return domain.Caller{ID: callerID, Type: callerType}
}

func newTraverseCommand(run runner) *cobra.Command {
	var (
		seed         string
		types        []string
		depth        int
		direction    string
		includePaths bool
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "traverse",
		Short: "Walk the graph from a seed record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seedRef, err := parseNodeRef(seed)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			return run(command{
				name:   "traverse",
				caller: currentCaller(),
				request: domain.TraversalRequest{
					Seed:         seedRef,
					EdgeTypes:    types,
					MaxDepth:     depth,
					Direction:    domain.Direction(direction),
					IncludePaths: includePaths,
					Limit:        limit,
				},
			})
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "seed record as collection:record")
	cmd.Flags().StringSliceVar(&types, "types", nil, "edge type slugs (comma separated)")
	cmd.Flags().IntVar(&depth, "depth", 0, "max depth")
	cmd.Flags().StringVar(&direction, "direction", string(domain.DirectionForward), "forward, reverse or both")
	cmd.Flags().BoolVar(&includePaths, "paths", false, "include the edge id path of every row")
	cmd.Flags().IntVar(&limit, "limit", 0, "max records and edges in the result")
	_ = cmd.MarkFlagRequired("seed")

	return cmd
}

func newPathCommand(run runner) *cobra.Command {
	var (
		source string
		target string
		depth  int
	)

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Find the shortest forward path between two records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceRef, err := parseNodeRef(source)
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			targetRef, err := parseNodeRef(target)
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}

			return run(command{
				name:   "path",
				caller: currentCaller(),
				path:   domain.ShortestPathRequest{Source: sourceRef, Target: targetRef, MaxDepth: depth},
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source record as collection:record")
	cmd.Flags().StringVar(&target, "target", "", "target record as collection:record")
	cmd.Flags().IntVar(&depth, "depth", 0, "max depth")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func newCreateTypeCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "create-type [file]",
		Short: "Create a custom edge type from a JSON config (file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return run(command{name: "create-type", payload: payload})
		},
	}
}

func newDeleteTypeCommand(run runner) *cobra.Command {
	var typeID int64

	cmd := &cobra.Command{
		Use:   "delete-type",
		Short: "Soft delete a custom edge type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if typeID <= 0 {
				return fmt.Errorf("--id must be positive")
			}
			return run(command{name: "delete-type", typeID: typeID})
		},
	}

	cmd.Flags().Int64Var(&typeID, "id", 0, "edge type id")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newUpsertPolicyCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "upsert-policy [file]",
		Short: "Create or replace the permission policy of a (caller type, edge type) pair",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return run(command{name: "upsert-policy", payload: payload})
		},
	}
}

func newPurgePathsCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-paths",
		Short: "Delete expired cached paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(command{name: "purge-paths"})
		},
	}
}

func parseNodeRef(raw string) (domain.NodeRef, error) {
	collection, record, ok := strings.Cut(raw, ":")
	if !ok {
		return domain.NodeRef{}, fmt.Errorf("expected collection:record, got %q", raw)
	}

	collectionID, err := strconv.ParseInt(collection, 10, 64)
	if err != nil {
		return domain.NodeRef{}, fmt.Errorf("invalid collection id %q", collection)
	}
	recordID, err := strconv.ParseInt(record, 10, 64)
	if err != nil {
		return domain.NodeRef{}, fmt.Errorf("invalid record id %q", record)
	}

	return domain.NodeRef{CollectionID: collectionID, RecordID: recordID}, nil
}

// O payload vem de um arquivo passado como argumento ou do stdin.
func readPayload(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) > 0 {
		return os.ReadFile(args[0])
	}

	var raw json.RawMessage
	if err := json.NewDecoder(stdin).Decode(&raw); err != nil {
		return nil, fmt.Errorf("reading json payload from stdin: %w", err)
	}
	return raw, nil
}
