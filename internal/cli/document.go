// Package cli implements the golem command line.
// This file defines the document commands, which run through a collection
// and its document pool.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/leandroluk/golem/core"
	"github.com/spf13/cobra"
)

// documentCommand builds a command editing one document: it loads the
// document, applies edit and saves it.
func documentCommand(opts *RootOptions, use string, short string, long string, nArgs int, edit func(doc *core.Document, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(nArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			collection, err := opts.collection(ctx, args[0])
			if err != nil {
				return err
			}
			doc, err := collection.GetDocument(ctx, ParseID(args[1]))
			if err != nil {
				return fmt.Errorf("get %s %s: %w", args[0], args[1], err)
			}
			if err := edit(doc, args[2:]); err != nil {
				return err
			}
			if err := doc.Save(ctx); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc.ToMap(), opts.Pretty)
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a document",
		Long: `Print the document with the given id as JSON.

Ids that are 24 hex characters are read as ObjectIDs.

Example:
  golem get users 6530e3a1f1d2c3b4a5968778`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			collection, err := opts.collection(ctx, args[0])
			if err != nil {
				return err
			}
			doc, err := collection.GetDocument(ctx, ParseID(args[1]))
			if err != nil {
				return fmt.Errorf("get %s %s: %w", args[0], args[1], err)
			}
			return writeJSON(cmd.OutOrStdout(), doc.ToMap(), opts.Pretty)
		},
	}
}

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Equal []string
	Sort  string
	Limit int
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "Print matching documents",
		Long: `Print the documents of a collection matching every --eq filter,
one JSON document per line.

Example:
  golem find users --eq status='"active"' --sort -createdAt --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			collection, err := opts.collection(ctx, args[0])
			if err != nil {
				return err
			}
			query, err := buildQuery(opts)
			if err != nil {
				return err
			}
			docList, err := collection.Find(ctx, query)
			if err != nil {
				return err
			}
			for _, doc := range docList {
				if err := writeJSON(cmd.OutOrStdout(), doc.ToMap(), opts.Pretty); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&opts.Equal, "eq", nil, "path=json equality filter (repeatable)")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort field, prefixed with - for descending")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of documents")

	return cmd
}

func buildQuery(opts *FindOptions) (*core.Query, error) {
	query := core.NewQuery()
	var conditionList []*core.Condition
	for _, filter := range opts.Equal {
		path, raw, ok := strings.Cut(filter, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --eq %q: want path=json", filter)
		}
		value, err := ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --eq %q: %w", filter, err)
		}
		if path == core.IDField {
			if s, isString := value.(string); isString {
				value = ParseID(s)
			}
		}
		conditionList = append(conditionList, query.Where(path).Eq(value))
	}
	query.Filter(func(core.Filter) []*core.Condition { return conditionList })
	if opts.Sort != "" {
		field, order := opts.Sort, 1
		if strings.HasPrefix(field, "-") {
			field, order = field[1:], -1
		}
		query.OrderBy(field, order)
	}
	if opts.Limit > 0 {
		query.Limit(opts.Limit)
	}
	return query, nil
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <collection> <json>",
		Short: "Insert a document",
		Long: `Insert a JSON object as a new document and print it with its id.

Example:
  golem insert users '{"name":"Ada","tags":["admin"]}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			value, err := ParseValue(args[1])
			if err != nil {
				return fmt.Errorf("invalid document: %w", err)
			}
			data, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("invalid document: want a JSON object")
			}
			collection, err := opts.collection(ctx, args[0])
			if err != nil {
				return err
			}
			doc := collection.CreateDocument(data)
			if err := doc.Save(ctx); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc.ToMap(), opts.Pretty)
		},
	}
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return documentCommand(opts, "set <collection> <id> <path> <json>", "Set a field",
		`Set the field at a dot path to a JSON value and save the document.

Example:
  golem set users 6530e3a1f1d2c3b4a5968778 profile.name '"Grace"'`,
		4, func(doc *core.Document, args []string) error {
			value, err := ParseValue(args[1])
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			return doc.Set(args[0], value)
		})
}

// NewUnsetCommand creates the unset command.
func NewUnsetCommand(opts *RootOptions) *cobra.Command {
	return documentCommand(opts, "unset <collection> <id> <path>", "Remove a field",
		`Remove the field at a dot path and save the document.

Example:
  golem unset users 6530e3a1f1d2c3b4a5968778 profile.nickname`,
		3, func(doc *core.Document, args []string) error {
			return doc.UnsetField(args[0])
		})
}

// NewIncCommand creates the inc command.
func NewIncCommand(opts *RootOptions) *cobra.Command {
	return documentCommand(opts, "inc <collection> <id> <path> <n>", "Increment a field",
		`Add an integer (negative to decrement) to a field and save the document.
The printed value is the one computed by the store.

Example:
  golem inc users 6530e3a1f1d2c3b4a5968778 logins 1`,
		4, func(doc *core.Document, args []string) error {
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid increment %q: %w", args[1], err)
			}
			return doc.Increment(args[0], n)
		})
}

// NewPushCommand creates the push command.
func NewPushCommand(opts *RootOptions) *cobra.Command {
	return documentCommand(opts, "push <collection> <id> <path> <json>", "Append to an array",
		`Append a JSON value to the array at a dot path and save the document.
A scalar field is turned into an array.

Example:
  golem push users 6530e3a1f1d2c3b4a5968778 tags '"editor"'`,
		4, func(doc *core.Document, args []string) error {
			value, err := ParseValue(args[1])
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			return doc.Push(args[0], value)
		})
}

// NewPullCommand creates the pull command.
func NewPullCommand(opts *RootOptions) *cobra.Command {
	return documentCommand(opts, "pull <collection> <id> <path> <json>", "Remove from an array",
		`Remove the elements of an array equal to a JSON value, or matching a
JSON condition such as {"$gt": 3}, and save the document.

Example:
  golem pull users 6530e3a1f1d2c3b4a5968778 tags '"editor"'`,
		4, func(doc *core.Document, args []string) error {
			value, err := ParseValue(args[1])
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			return doc.Pull(args[0], value)
		})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a document",
		Long: `Delete the document with the given id.

Example:
  golem delete users 6530e3a1f1d2c3b4a5968778`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			collection, err := opts.collection(ctx, args[0])
			if err != nil {
				return err
			}
			doc, err := collection.GetDocument(ctx, ParseID(args[1]))
			if err != nil {
				return fmt.Errorf("get %s %s: %w", args[0], args[1], err)
			}
			if err := doc.Delete(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[1])
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
