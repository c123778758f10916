package cli

import (
	"bytes"
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/jsonkv/pkg/jsonkv"
)

// DumpCmd returns the dump command.
func DumpCmd(a *app) *Command {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	asYAML := fs.Bool("yaml", false, "print as YAML instead of JSON")

	return &Command{
		Flags: fs,
		Usage:  "dump [--yaml]",
		NoArgs: true,
		Short: "Print the whole document",
		Long:  "Print the whole document in stored field order, as JSON (default) or YAML.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			return writeDocument(o, s.Snapshot(), *asYAML)
		},
	}
}

func writeDocument(o *IO, doc *jsonkv.Document, asYAML bool) error {
	var (
		data []byte
		err  error
	)

	if asYAML {
		data, err = encodeYAML(doc)
	} else {
		data, err = doc.Encode()
	}

	if err != nil {
		return err
	}

	o.Printf("%s", data)

	return nil
}

// encodeYAML keeps top-level field order by building the mapping node by
// hand; yaml.Marshal on a map would sort the keys.
func encodeYAML(doc *jsonkv.Document) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)

		var value yaml.Node

		err := value.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("encode %q as yaml: %w", k, err)
		}

		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&value,
		)
	}

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	err := enc.Encode(root)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}

	return buf.Bytes(), nil
}
