/*
Copyright 2025 Memris Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Thejuampi/memris-sub010/internal/query"
	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
	"github.com/Thejuampi/memris-sub010/pkg/memris"
)

var errExit = errors.New("exit requested")

// Shell is the interactive command loop over one engine
type Shell struct {
	eng *memris.Engine
	rl  *readline.Instance
}

// NewShell creates a shell with line editing and history
func NewShell(eng *memris.Engine) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "memris> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &Shell{eng: eng, rl: rl}, nil
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.memris_history"
}

// Close releases the readline instance
func (s *Shell) Close() error { return s.rl.Close() }

// Run reads and evaluates commands until exit or EOF
func (s *Shell) Run() error {
	fmt.Println("Type 'help' for available commands.")
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.Eval(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// Eval executes one command line
func (s *Shell) Eval(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "help", "\\h", "\\?":
		printHelp()
		return nil
	case "exit", "quit", "\\q":
		return errExit
	case "tables":
		return s.cmdTables()
	case "create":
		return s.cmdCreate(args)
	case "index":
		return s.cmdIndex(args)
	case "insert":
		return s.cmdInsert(args)
	case "get":
		return s.cmdGet(args)
	case "delete":
		return s.cmdDelete(args)
	case "find":
		return s.cmdFind(args, false)
	case "explain":
		return s.cmdFind(args, true)
	case "stats":
		return s.cmdStats(args)
	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
}

func (s *Shell) cmdTables() error {
	names := s.eng.Tables()
	if len(names) == 0 {
		fmt.Println("No tables.")
		return nil
	}
	w := newTableWriter()
	w.AppendHeader(table.Row{"table", "rows", "columns"})
	for _, n := range names {
		tb, err := s.eng.Table(n)
		if err != nil {
			return err
		}
		var cols []string
		for _, c := range tb.Schema().Columns {
			cols = append(cols, c.Name)
		}
		w.AppendRow(table.Row{n, tb.Stats().Rows, strings.Join(cols, ", ")})
	}
	w.Render()
	return nil
}

// create <table> <col:kind[:null]> ...
func (s *Shell) cmdCreate(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: create <table> <col:kind[:null]> ...")
	}
	schema := storage.Schema{TableName: args[0]}
	for _, spec := range args[1:] {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return fmt.Errorf("column spec %q: want name:kind", spec)
		}
		kind, err := parseKind(parts[1])
		if err != nil {
			return err
		}
		col := storage.SchemaColumn{Name: parts[0], Kind: kind}
		if len(parts) > 2 && parts[2] == "null" {
			col.Nullable = true
		}
		schema.Columns = append(schema.Columns, col)
	}
	if _, err := s.eng.CreateTable(schema); err != nil {
		return err
	}
	fmt.Printf("Table %s created.\n", args[0])
	return nil
}

// index <eq|range|adj> <table> <col>
func (s *Shell) cmdIndex(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: index <eq|range|adj> <table> <col>")
	}
	tb, err := s.eng.Table(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "eq":
		err = tb.CreateEqualityIndex(args[2])
	case "range":
		err = tb.CreateRangeIndex(args[2])
	case "adj":
		err = tb.CreateAdjacencyIndex(args[2])
	default:
		return fmt.Errorf("unknown index kind %q", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("Index created on %s.%s.\n", args[1], args[2])
	return nil
}

// insert <table> <v1> <v2> ...
func (s *Shell) cmdInsert(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: insert <table> <v1> <v2> ...")
	}
	tb, err := s.eng.Table(args[0])
	if err != nil {
		return err
	}
	vals := make([]any, len(args)-1)
	for i, a := range args[1:] {
		vals[i] = parseValue(a)
	}
	id, err := tb.Insert(vals...)
	if err != nil {
		return err
	}
	fmt.Printf("Inserted id %d.\n", id)
	return nil
}

func (s *Shell) cmdGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get <table> <id>")
	}
	tb, err := s.eng.Table(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad id %q", args[1])
	}
	row, err := tb.Get(id)
	if err != nil {
		return err
	}
	var cols []string
	for _, c := range tb.Schema().Columns {
		cols = append(cols, c.Name)
	}
	renderRows(cols, []storage.Row{row})
	return nil
}

func (s *Shell) cmdDelete(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delete <table> <id>")
	}
	tb, err := s.eng.Table(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad id %q", args[1])
	}
	if err := tb.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Deleted id %d.\n", id)
	return nil
}

// find <table> [<col> <op> <value>] [limit <n>]
func (s *Shell) cmdFind(args []string, explainOnly bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <table> [<col> <op> <value>] [limit <n>]",
			map[bool]string{false: "find", true: "explain"}[explainOnly])
	}
	tb, err := s.eng.Table(args[0])
	if err != nil {
		return err
	}
	schema := tb.Schema()

	q := query.NewQuery(args[0])
	rest := args[1:]
	if len(rest) >= 3 && rest[0] != "limit" {
		ci := schema.ColumnIndex(rest[0])
		if ci < 0 {
			return fmt.Errorf("unknown column %q", rest[0])
		}
		op, err := parseOperator(rest[1])
		if err != nil {
			return err
		}
		val, err := s.eng.Codecs().Encode(parseValue(rest[2]))
		if err != nil {
			return err
		}
		q.Filter = expression.NewComparison(ci, op, val)
		rest = rest[3:]
	}
	if len(rest) == 2 && rest[0] == "limit" {
		n, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("bad limit %q", rest[1])
		}
		q.Limit = n
	} else if len(rest) != 0 {
		return fmt.Errorf("trailing arguments %v", rest)
	}

	if explainOnly {
		out, err := s.eng.Explain(q)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	start := time.Now()
	res, err := s.eng.Query(context.Background(), q)
	if err != nil {
		return err
	}
	renderRows(res.Columns, res.Rows)
	fmt.Printf("%d rows in %v\n", len(res.Rows), time.Since(start))
	return nil
}

func (s *Shell) cmdStats(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: stats <table>")
	}
	tb, err := s.eng.Table(args[0])
	if err != nil {
		return err
	}
	st := tb.Stats()
	w := newTableWriter()
	w.AppendHeader(table.Row{"metric", "value"})
	w.AppendRow(table.Row{"live rows", st.Rows})
	w.AppendRow(table.Row{"appended rows", st.Appended})
	for col, keys := range st.EqualityKeys {
		name := tb.Schema().Columns[col].Name
		w.AppendRow(table.Row{fmt.Sprintf("eq index %s distinct keys", name), keys})
	}
	for col, keys := range st.RangeKeys {
		name := tb.Schema().Columns[col].Name
		w.AppendRow(table.Row{fmt.Sprintf("range index %s distinct keys", name), keys})
	}
	w.Render()
	return nil
}

func newTableWriter() table.Writer {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetStyle(table.StyleLight)
	return w
}

func renderRows(cols []string, rows []storage.Row) {
	w := newTableWriter()
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	w.AppendHeader(header)
	for _, r := range rows {
		out := make(table.Row, len(r))
		for i, v := range r {
			out[i] = formatValue(v)
		}
		w.AppendRow(out)
	}
	w.Render()
}

func formatValue(v storage.Value) string {
	if v.Null {
		return "NULL"
	}
	switch v.K {
	case storage.KindInt32, storage.KindInt64:
		n, _ := v.AsInt64()
		return strconv.FormatInt(n, 10)
	case storage.KindFloat64:
		f, _ := v.AsFloat64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case storage.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case storage.KindString:
		s, _ := v.AsString()
		return s
	}
	return fmt.Sprintf("%v", v)
}

// parseValue guesses the value type the way a SQL shell would
func parseValue(s string) any {
	if strings.EqualFold(s, "null") {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.Contains(s, ".") {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return strings.Trim(s, `'"`)
}

func parseKind(s string) (storage.Kind, error) {
	switch strings.ToLower(s) {
	case "int32":
		return storage.KindInt32, nil
	case "int", "int64":
		return storage.KindInt64, nil
	case "float", "float64":
		return storage.KindFloat64, nil
	case "bool":
		return storage.KindBool, nil
	case "string":
		return storage.KindString, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

func parseOperator(s string) (storage.Operator, error) {
	switch s {
	case "=", "==", "eq":
		return storage.EQ, nil
	case "!=", "<>", "ne":
		return storage.NE, nil
	case ">", "gt":
		return storage.GT, nil
	case ">=", "gte":
		return storage.GTE, nil
	case "<", "lt":
		return storage.LT, nil
	case "<=", "lte":
		return storage.LTE, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

func printHelp() {
	fmt.Println("Memris shell")
	fmt.Println("")
	fmt.Println("  Commands:")
	fmt.Println("    tables                                  List tables")
	fmt.Println("    create <table> <col:kind[:null]> ...    Create a table (first column is the int64 id)")
	fmt.Println("    index <eq|range|adj> <table> <col>      Create an index")
	fmt.Println("    insert <table> <v1> <v2> ...            Insert a row (0 for auto id)")
	fmt.Println("    get <table> <id>                        Fetch a row by id")
	fmt.Println("    delete <table> <id>                     Delete a row by id")
	fmt.Println("    find <table> [col op val] [limit n]     Query rows")
	fmt.Println("    explain <table> [col op val] [limit n]  Show the query plan")
	fmt.Println("    stats <table>                           Show table statistics")
	fmt.Println("    help, \\h, \\?                            Show this help message")
	fmt.Println("    exit, quit, \\q                          Leave the shell")
	fmt.Println("")
}
