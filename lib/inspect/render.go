// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"gopkg.in/yaml.v3"

	"github.com/keel-rpc/keel/lib/codec"
)

// Format is an output format for decoded messages.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	// FormatCBOR prints the deterministic CBOR encoding as hex.
	FormatCBOR Format = "cbor"
	// FormatDiag prints the CBOR encoding in diagnostic notation.
	FormatDiag Format = "diag"
	FormatTree Format = "tree"
)

// Formats lists every format in the order help text shows them.
var Formats = []Format{FormatTree, FormatJSON, FormatYAML, FormatCBOR, FormatDiag}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	for _, format := range Formats {
		if string(format) == name {
			return format, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (valid: %v)", name, Formats)
}

// Render writes messages to w in the given format.
func Render(w io.Writer, messages []Message, format Format) error {
	if messages == nil {
		messages = []Message{}
	}
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(messages)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(messages); err != nil {
			return err
		}
		return encoder.Close()
	case FormatCBOR:
		encoded, err := codec.MarshalHex(messages)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, encoded)
		return err
	case FormatDiag:
		data, err := codec.Marshal(messages)
		if err != nil {
			return err
		}
		notation, err := codec.Diagnose(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, notation)
		return err
	case FormatTree:
		_, err := fmt.Fprintln(w, Tree(messages))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	typeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	branchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Tree renders messages as a styled tree, one root per message.
func Tree(messages []Message) string {
	root := tree.New().
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(branchStyle)
	for _, message := range messages {
		header := headerStyle.Render(fmt.Sprintf("%s %s", message.Type, message.Name)) +
			typeStyle.Render(fmt.Sprintf(" seq=%d", message.SeqID))
		root.Child(fieldsNode(header, message.Body))
	}
	return root.String()
}

func fieldsNode(label string, fields []Field) *tree.Tree {
	node := tree.Root(label).Enumerator(tree.RoundedEnumerator).EnumeratorStyle(branchStyle)
	for _, field := range fields {
		prefix := idStyle.Render(strconv.Itoa(int(field.ID))) + " " + typeStyle.Render(field.Type)
		node.Child(valueNode(prefix, field.Value))
	}
	return node
}

// valueNode returns a leaf label for scalars and a subtree for
// structs and containers.
func valueNode(prefix string, value any) any {
	switch value := value.(type) {
	case []Field:
		return fieldsNode(prefix, value)
	case *List:
		node := tree.Root(prefix + typeStyle.Render(fmt.Sprintf("<%s> (%d)", value.ElementType, len(value.Elements)))).
			Enumerator(tree.RoundedEnumerator).EnumeratorStyle(branchStyle)
		for i, element := range value.Elements {
			node.Child(valueNode(idStyle.Render(fmt.Sprintf("[%d]", i)), element))
		}
		return node
	case *Map:
		node := tree.Root(prefix + typeStyle.Render(fmt.Sprintf("<%s, %s> (%d)", value.KeyType, value.ValueType, len(value.Entries)))).
			Enumerator(tree.RoundedEnumerator).EnumeratorStyle(branchStyle)
		for _, entry := range value.Entries {
			node.Child(valueNode(scalar(entry.Key)+" →", entry.Value))
		}
		return node
	default:
		return prefix + " " + scalar(value)
	}
}

func scalar(value any) string {
	switch value := value.(type) {
	case string:
		return strconv.Quote(value)
	case []Field:
		return fmt.Sprintf("struct(%d fields)", len(value))
	case *List:
		return fmt.Sprintf("%s list(%d)", value.ElementType, len(value.Elements))
	case *Map:
		return fmt.Sprintf("map(%d)", len(value.Entries))
	default:
		return fmt.Sprint(value)
	}
}
