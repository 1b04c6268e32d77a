// Package cloudvm_db stores JSON documents grouped into named collections. Handlers use it
// through the DocumentStore interface: find, insert, update and delete by collection name
// and a filter of field/value pairs.
//
// Two implementations are provided. PostgresStore keeps every collection in one JSONB table
// on a pgx connection pool; MemoryStore keeps documents in process for tests and local runs.
//
// Queries against Postgres are assembled with DocumentQuery, a small fluent builder that
// numbers "$" placeholders in the order the arguments were added:
//
//	query, args, err := cloudvm_db.Select("vms").
//	    WhereEq("userId", userID).
//	    SortDesc("createdAt").
//	    Limit(10).
//	    Build()
package cloudvm_db

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// DocumentsTable is the single table backing every collection.
const DocumentsTable = "documents"

type WhereComponent interface {
	Build(query *string, args *[]any)
}

type ConditionWhereComponent struct {
	value string
}

func (j ConditionWhereComponent) Build(query *string, args *[]any) {
	*query += j.value
}

type StringWhereComponent struct {
	value string
}

func (s StringWhereComponent) Build(query *string, args *[]any) {
	*query += s.value
}

type QueryWhere struct {
	where string
	arg   any
}

func (q QueryWhere) Build(query *string, args *[]any) {
	*query += q.where
	if q.arg != nil {
		*args = append(*args, q.arg)
	}
}

type QuerySort struct {
	field string
	order string
}

// DocumentQuery builds one SQL statement against DocumentsTable, scoped to a collection.
//
// Fields:
//   - operation: "SELECT", "INSERT", "UPDATE" or "DELETE"
//   - collection: Collection every statement is restricted to
//   - where: Conditions joined with AND unless Or is used
//   - id, body: Row written by an insert
//   - set: Fields merged into the body by an update
//   - sort: ORDER BY entries
//   - limit: Maximum rows returned by a select (-1 for no limit)
//   - warn: Refuse updates and deletes without conditions unless Force was called
//   - err: First invalid input seen while building, reported by Build
type DocumentQuery struct {
	operation  string
	collection string
	where      []WhereComponent
	id         string
	body       Document
	set        Document
	sort       []QuerySort
	limit      int
	warn       bool
	debug      bool
	err        error
}

func newQuery(operation string, collection string) *DocumentQuery {
	return &DocumentQuery{
		operation:  operation,
		collection: collection,
		where:      []WhereComponent{},
		set:        Document{},
		sort:       []QuerySort{},
		limit:      -1,
		warn:       true,
	}
}

// Select creates a query returning the id and body of matching documents.
func Select(collection string) *DocumentQuery {
	return newQuery("SELECT", collection)
}

// Insert creates a query writing one document under id.
func Insert(collection string, id string, body Document) *DocumentQuery {
	qb := newQuery("INSERT", collection)
	qb.id = id
	qb.body = body
	return qb
}

// Update creates a query merging the fields given to Set into matching documents.
func Update(collection string) *DocumentQuery {
	return newQuery("UPDATE", collection)
}

// Delete creates a query removing matching documents.
func Delete(collection string) *DocumentQuery {
	return newQuery("DELETE", collection)
}

// Debug logs the final statement when it is built.
func (qb *DocumentQuery) Debug() *DocumentQuery {
	qb.debug = true
	return qb
}

// Force allows an update or delete without conditions.
func (qb *DocumentQuery) Force() *DocumentQuery {
	qb.warn = false
	return qb
}

func (qb *DocumentQuery) fail(err error) {
	if qb.err == nil {
		qb.err = err
	}
}

// Set adds a field to the update. Setting "id" is rejected.
func (qb *DocumentQuery) Set(field string, value any) *DocumentQuery {
	if qb.operation != "UPDATE" {
		qb.fail(fmt.Errorf("set %q on a %s query", field, qb.operation))
		return qb
	}
	if field == "id" {
		qb.fail(fmt.Errorf("the id of a document cannot be updated"))
		return qb
	}
	if err := validField(field); err != nil {
		qb.fail(err)
		return qb
	}
	qb.set[field] = value
	return qb
}

func (qb *DocumentQuery) addWhere(where string, arg any) *DocumentQuery {
	if len(qb.where) > 0 {
		switch qb.where[len(qb.where)-1].(type) {
		case QueryWhere:
			qb.where = append(qb.where, ConditionWhereComponent{value: " AND "})
		default:
			break
		}
	}
	qb.where = append(qb.where, QueryWhere{where: where, arg: arg})
	return qb
}

// WhereId matches the document id.
func (qb *DocumentQuery) WhereId(id string) *DocumentQuery {
	return qb.addWhere("id = $", id)
}

// WhereEq matches documents whose field equals value. The comparison uses JSONB
// containment, so numbers, booleans and strings keep their JSON types.
func (qb *DocumentQuery) WhereEq(field string, value any) *DocumentQuery {
	if field == "id" {
		return qb.WhereId(fmt.Sprint(value))
	}
	arg, err := containment(field, value)
	if err != nil {
		qb.fail(err)
		return qb
	}
	return qb.addWhere("body @> $::jsonb", arg)
}

// WhereNe matches documents whose field is absent or differs from value.
func (qb *DocumentQuery) WhereNe(field string, value any) *DocumentQuery {
	if field == "id" {
		return qb.addWhere("id <> $", fmt.Sprint(value))
	}
	arg, err := containment(field, value)
	if err != nil {
		qb.fail(err)
		return qb
	}
	return qb.addWhere("NOT (body @> $::jsonb)", arg)
}

// WhereExists matches documents that have the field at all.
func (qb *DocumentQuery) WhereExists(field string) *DocumentQuery {
	if err := validField(field); err != nil {
		qb.fail(err)
		return qb
	}
	return qb.addWhere("body ? $", field)
}

// WhereMatches adds one WhereEq per filter entry, in key order.
func (qb *DocumentQuery) WhereMatches(filter Filter) *DocumentQuery {
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		qb.WhereEq(key, filter[key])
	}
	return qb
}

func (qb *DocumentQuery) Or() *DocumentQuery {
	if len(qb.where) > 0 {
		qb.where = append(qb.where, StringWhereComponent{value: " OR "})
	} else {
		qb.fail(fmt.Errorf("Or() called without any previous Where-style call"))
	}
	return qb
}

func (qb *DocumentQuery) StartGroup() *DocumentQuery {
	if len(qb.where) > 0 {
		if _, ok := qb.where[len(qb.where)-1].(QueryWhere); ok {
			qb.where = append(qb.where, ConditionWhereComponent{value: " AND "})
		}
	}
	qb.where = append(qb.where, StringWhereComponent{value: "("})
	return qb
}

func (qb *DocumentQuery) EndGroup() *DocumentQuery {
	qb.where = append(qb.where, StringWhereComponent{value: ")"})
	return qb
}

// SortAsc orders by a body field. "createdAt" style fields compare as text, which orders
// RFC 3339 timestamps correctly.
func (qb *DocumentQuery) SortAsc(field string) *DocumentQuery {
	return qb.addSort(field, "ASC")
}

func (qb *DocumentQuery) SortDesc(field string) *DocumentQuery {
	return qb.addSort(field, "DESC")
}

func (qb *DocumentQuery) addSort(field string, order string) *DocumentQuery {
	if err := validField(field); err != nil {
		qb.fail(err)
		return qb
	}
	qb.sort = append(qb.sort, QuerySort{field: "body->>'" + field + "'", order: order})
	return qb
}

// SortInserted orders by insertion time, oldest first.
func (qb *DocumentQuery) SortInserted() *DocumentQuery {
	qb.sort = append(qb.sort, QuerySort{field: "created_at", order: "ASC"}, QuerySort{field: "id", order: "ASC"})
	return qb
}

func (qb *DocumentQuery) Limit(num int) *DocumentQuery {
	qb.limit = num
	return qb
}

func (qb *DocumentQuery) whereToString() (string, []any) {
	query := "WHERE collection = $"
	args := []any{qb.collection}
	if len(qb.where) == 0 {
		return query, args
	}
	query += " AND ("
	for whereIdx := range qb.where {
		qb.where[whereIdx].Build(&query, &args)
	}
	query += ")"
	return query, args
}

func (qb *DocumentQuery) sortToString() string {
	if len(qb.sort) == 0 {
		return ""
	}
	parts := make([]string, len(qb.sort))
	for i, by := range qb.sort {
		parts[i] = by.field + " " + by.order
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (qb *DocumentQuery) limitString() string {
	query := ""
	if qb.limit > 0 {
		query = fmt.Sprintf(" LIMIT %v", qb.limit)
	}
	return query
}

// Build renders the statement with numbered placeholders and its arguments.
func (qb *DocumentQuery) Build() (string, []any, error) {
	return qb.BuildOffset(0)
}

// BuildOffset renders the statement numbering placeholders after idx existing arguments.
func (qb *DocumentQuery) BuildOffset(idx int) (string, []any, error) {
	if qb.err != nil {
		return "", nil, PostgresError(qb.collection, qb.err)
	}
	if qb.warn && len(qb.where) == 0 && (qb.operation == "UPDATE" || qb.operation == "DELETE") {
		return "", nil, PostgresError(qb.collection, ErrUnfilteredWrite)
	}

	args := []any{}
	var query string
	switch qb.operation {
	case "SELECT":
		whereQuery, whereArgs := qb.whereToString()
		args = append(args, whereArgs...)
		query = fmt.Sprintf("SELECT id, body FROM %s %s%s%s", DocumentsTable, whereQuery, qb.sortToString(), qb.limitString())
	case "INSERT":
		body, err := json.Marshal(qb.body)
		if err != nil {
			return "", nil, PostgresError(qb.collection, err)
		}
		args = append(args, qb.collection, qb.id, string(body))
		query = fmt.Sprintf("INSERT INTO %s (collection, id, body) VALUES ($, $, $::jsonb)", DocumentsTable)
	case "UPDATE":
		if len(qb.set) == 0 {
			return "", nil, PostgresError(qb.collection, fmt.Errorf("update without fields"))
		}
		set, err := json.Marshal(qb.set)
		if err != nil {
			return "", nil, PostgresError(qb.collection, err)
		}
		whereQuery, whereArgs := qb.whereToString()
		args = append(args, string(set))
		args = append(args, whereArgs...)
		query = fmt.Sprintf("UPDATE %s SET body = body || $::jsonb %s", DocumentsTable, whereQuery)
	case "DELETE":
		whereQuery, whereArgs := qb.whereToString()
		args = append(args, whereArgs...)
		query = fmt.Sprintf("DELETE FROM %s %s", DocumentsTable, whereQuery)
	default:
		return "", nil, PostgresError(qb.collection, fmt.Errorf("unknown operation %q", qb.operation))
	}

	var final strings.Builder
	argCt := 1 + idx
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			fmt.Fprintf(&final, "$%v", argCt)
			argCt++
		} else {
			final.WriteByte(query[i])
		}
	}
	if qb.debug {
		slog.Debug("document query", "collection", qb.collection, "query", final.String())
	}
	return final.String(), args, nil
}

// validField accepts letters, digits and underscores so a field can be embedded in a JSON
// path literal.
func validField(field string) error {
	if field == "" {
		return fmt.Errorf("empty field name")
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("invalid field name %q", field)
		}
	}
	return nil
}

func containment(field string, value any) (string, error) {
	if err := validField(field); err != nil {
		return "", err
	}
	encoded, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
