// Package ticket encodes the opaque Flight ticket payload. A ticket either
// fetches a whole table or runs a raw command.
package ticket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ruddy/internal/domain"
)

// Kind is the wire tag of a ticket.
type Kind string

const (
	KindTable   Kind = "table"
	KindCommand Kind = "command"
)

// Ticket is either TableFetch or Command.
type Ticket interface {
	Kind() Kind
	sealed()
}

// TableFetch selects every row of a table.
type TableFetch struct {
	Table domain.TableIdentity
}

// Command runs the text verbatim against the engine.
type Command struct {
	Text string
}

func (TableFetch) Kind() Kind { return KindTable }
func (TableFetch) sealed()    {}
func (Command) Kind() Kind    { return KindCommand }
func (Command) sealed()       {}

type envelope struct {
	DataType Kind            `json:"data_type"`
	Data     json.RawMessage `json:"data"`
}

// tableBody always carries all four fields; database and schema hold the
// default when the identity leaves them empty.
type tableBody struct {
	Database    *string `json:"database"`
	CatalogName *string `json:"catalog_name"`
	Schema      *string `json:"schema"`
	Name        *string `json:"name"`
}

// Encode serializes a ticket. Table tickets always carry a database and a
// schema, so Decode returns the identity in its Resolved form.
func Encode(t Ticket) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	switch v := t.(type) {
	case TableFetch:
		database, catalog, schema := v.Table.DatabaseOrDefault(), v.Table.CatalogName, v.Table.SchemaOrDefault()
		body, err = json.Marshal(tableBody{
			Database:    &database,
			CatalogName: &catalog,
			Schema:      &schema,
			Name:        &v.Table.Name,
		})
	case Command:
		if v.Text == "" {
			return nil, fmt.Errorf("encode ticket: empty command")
		}
		body, err = json.Marshal(v.Text)
	case nil:
		return nil, fmt.Errorf("encode ticket: nil ticket")
	default:
		return nil, fmt.Errorf("encode ticket: unsupported ticket type %T", t)
	}
	if err != nil {
		return nil, fmt.Errorf("encode ticket body: %w", err)
	}
	return json.Marshal(envelope{DataType: t.Kind(), Data: body})
}

// Decode parses ticket bytes. Any unknown tag or malformed body yields a
// domain.InvalidTicketError.
func Decode(raw []byte) (Ticket, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.ErrInvalidTicket("invalid ticket payload: %v", err)
	}
	if len(bytes.TrimSpace(env.Data)) == 0 {
		return nil, domain.ErrInvalidTicket("ticket has no data")
	}

	switch env.DataType {
	case KindTable:
		var body tableBody
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, domain.ErrInvalidTicket("invalid table ticket body: %v", err)
		}
		if body.Database == nil || body.CatalogName == nil || body.Schema == nil || body.Name == nil {
			return nil, domain.ErrInvalidTicket("table ticket requires database, catalog_name, schema and name")
		}
		tbl, err := domain.NewTableIdentity(*body.Name, *body.Database, *body.Schema, *body.CatalogName)
		if err != nil {
			return nil, domain.ErrInvalidTicket("invalid table ticket: %v", err)
		}
		return TableFetch{Table: tbl}, nil
	case KindCommand:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return nil, domain.ErrInvalidTicket("command ticket body must be a string: %v", err)
		}
		if text == "" {
			return nil, domain.ErrInvalidTicket("command ticket is empty")
		}
		return Command{Text: text}, nil
	default:
		return nil, domain.ErrInvalidTicket("invalid ticket data type %q", env.DataType)
	}
}

// ForTable encodes a TableFetch ticket.
func ForTable(t domain.TableIdentity) ([]byte, error) {
	return Encode(TableFetch{Table: t})
}

// ForCommand encodes a Command ticket.
func ForCommand(text string) ([]byte, error) {
	return Encode(Command{Text: text})
}
