package extensions

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// AttributeRewrite replaces the From prefix of an attribute value with To on
// every matching element of an embedded XML definition.
type AttributeRewrite struct {
	Element   string
	Attribute string
	From      string
	To        string
}

func (r AttributeRewrite) apply(el *xml.StartElement) bool {
	if el.Name.Local != r.Element {
		return false
	}
	changed := false
	for i, a := range el.Attr {
		if a.Name.Local == r.Attribute && strings.HasPrefix(a.Value, r.From) {
			el.Attr[i].Value = r.To + strings.TrimPrefix(a.Value, r.From)
			changed = true
		}
	}
	return changed
}

// DefinitionRewriter rewrites attribute values inside the item's XML
// definition (for example data source connection references inside a
// workbook). Items without a definition pass through unchanged.
func DefinitionRewriter(rules ...AttributeRewrite) hooks.Hook[migration.TransformItem] {
	return hooks.HookFunc[migration.TransformItem](func(ctx context.Context, in migration.TransformItem) (*migration.TransformItem, error) {
		if len(rules) == 0 || len(in.Item.Definition) == 0 {
			return nil, nil
		}
		out, changed, err := rewriteXML(ctx, in.Item.Definition, rules)
		if err != nil {
			return nil, merrors.TransformFailed(in.Item.Reference.ID, err)
		}
		if !changed {
			return nil, nil
		}
		in.Item.Definition = out
		return &in, nil
	})
}

func rewriteXML(ctx context.Context, src []byte, rules []AttributeRewrite) ([]byte, bool, error) {
	dec := xml.NewDecoder(bytes.NewReader(src))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	changed := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("parse definition: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			se = se.Copy()
			for _, r := range rules {
				if r.apply(&se) {
					changed = true
				}
			}
			tok = se
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, false, fmt.Errorf("encode definition: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, false, fmt.Errorf("encode definition: %w", err)
	}
	return buf.Bytes(), changed, nil
}
