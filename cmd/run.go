package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/hashicorp/hcl"
	"github.com/spf13/cobra"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/execute"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/rowstore/boltstore"
	"github.com/leftmike/quill/rowstore/btreestore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
	"github.com/leftmike/quill/strutil"
)

// run parses a tiny scripted list of DELETE/UPDATE/INSERT operations
// (HCL, grounded on the same library the teacher uses for its own config
// file) against a table it creates and seeds itself, and prints the
// affected row count plus any RETURNING/generated-keys/delta-table result
// each operation asked for — exercising delta, execute, rowstore, and
// session end to end (SPEC_FULL.md §10 CLI).
var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a scripted list of DML operations",
		RunE:  runRun,
	}

	scriptFile = ""
	storeKind  = "btree"
	dataFile   = "quill.db"
)

func init() {
	fs := runCmd.Flags()
	fs.StringVar(&scriptFile, "script", scriptFile, "`file` of DML operations, in HCL")
	fs.StringVar(&storeKind, "store", storeKind, "row store backend: btree or bolt")
	fs.StringVar(&dataFile, "data", dataFile, "`file` for the bolt row store backend")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if scriptFile == "" {
		return fmt.Errorf("quill: run: --script is required")
	}

	b, err := os.ReadFile(scriptFile)
	if err != nil {
		return fmt.Errorf("quill: run: %s", err)
	}
	sc, err := parseScript(b)
	if err != nil {
		return fmt.Errorf("quill: run: %s", err)
	}

	d, closeStore, err := sc.openTable()
	if err != nil {
		return fmt.Errorf("quill: run: %s", err)
	}
	defer closeStore()

	ses := session.New(1, "quill", session.AllowAll{})
	ses.Mode = sesMode
	ses.SetTimeout(lockWait)

	eng := execute.DefaultExpressionEngine()
	ctx := context.Background()

	var idgen *seqGenerator
	if d.HasIdentity() {
		idgen = sc.newIdentityGenerator(d)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	for i, op := range sc.Operations {
		if err := runOperation(ctx, ses, eng, d, idgen, i, op, w); err != nil {
			return fmt.Errorf("quill: run: operation %d (%s): %s", i, op.Kind, err)
		}
	}
	return nil
}

func runOperation(ctx context.Context, ses *session.Session, eng execute.ExpressionEngine,
	d *execute.Descriptor, idgen *seqGenerator, idx int, op operation,
	w *tabwriter.Writer) error {

	cr, err := buildCollector(op, d, ses, eng)
	if err != nil {
		return err
	}

	var count int64
	switch op.Kind {
	case "delete":
		predicate, err := op.predicate()
		if err != nil {
			return err
		}
		de := execute.NewDeleteExecutor()
		de.Options = execOpts
		count, err = de.Execute(ctx, ses, execute.DeleteRequest{
			Descriptor: d,
			Predicate:  predicate,
			Fetch:      op.fetchClause(),
			Collector:  cr.observer,
			Engine:     eng,
		})
		if err != nil {
			return err
		}

	case "update":
		predicate, err := op.predicate()
		if err != nil {
			return err
		}
		assigns, err := op.assignments()
		if err != nil {
			return err
		}
		ue := execute.NewUpdateExecutor()
		ue.Options = execOpts
		count, err = ue.Execute(ctx, ses, execute.UpdateRequest{
			Descriptor:  d,
			Predicate:   predicate,
			Fetch:       op.fetchClause(),
			Assignments: assigns,
			Collector:   cr.observer,
			Engine:      eng,
		})
		if err != nil {
			return err
		}

	case "insert":
		rows, err := op.insertRows(d)
		if err != nil {
			return err
		}
		ie := execute.NewInsertExecutor()
		ie.Options = execOpts
		count, err = ie.Execute(ctx, ses, execute.InsertRequest{
			Descriptor: d,
			Source:     &execute.ValuesSource{Rows: rows},
			Identity:   idgen,
			Collector:  cr.observer,
			Engine:     eng,
		})
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	fmt.Fprintf(w, "operation %d (%s): %d rows affected\n", idx, op.Kind, count)
	if cr.deltaSink != nil {
		printSink(w, strings.ToUpper(op.DeltaOption)+" TABLE", cr.deltaSink)
	}
	if cr.returningSink != nil {
		printSink(w, "RETURNING", cr.returningSink)
	}
	if cr.genKeysSink != nil {
		printSink(w, "GENERATED KEYS", cr.genKeysSink)
	}
	if ses.Mode.TakeInsertedIdentity && op.Kind == "insert" {
		fmt.Fprintf(w, "  last identity: %v\n", ses.LastIdentity())
	}
	return w.Flush()
}

func printSink(w *tabwriter.Writer, label string, sink *delta.Sink) {
	fmt.Fprintf(w, "  %s (%d rows):\n", label, sink.Len())
	rows := sink.Rows()
	defer rows.Close()

	cols := rows.Columns()
	fmt.Fprint(w, "\t")
	for _, c := range cols {
		fmt.Fprintf(w, "%s\t", strutil.QuoteIdentifier(c.String()))
	}
	fmt.Fprintln(w)

	dest := make([]sql.Value, len(cols))
	for {
		if err := rows.Next(context.Background(), dest); err == io.EOF {
			break
		} else if err != nil {
			break
		}
		fmt.Fprint(w, "\t")
		for _, v := range dest {
			fmt.Fprintf(w, "%s\t", formatValue(v))
		}
		fmt.Fprintln(w)
	}
}

// formatValue renders a row value for CLI display, quoting strings and
// hex-encoding byte strings the way strutil's quoting helpers do for SQL
// text (§6) rather than relying on each Value's own fmt.Stringer, which
// doesn't escape embedded quote characters.
func formatValue(v sql.Value) string {
	switch vv := v.(type) {
	case nil:
		return sql.NullString
	case sql.StringValue:
		return strutil.QuoteLiteral(string(vv))
	case sql.BytesValue:
		return "'\\x" + strutil.EncodeHex([]byte(vv)) + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// collectorResult keeps each sink a built collector writes into alongside
// the composed delta.Observer, so runOperation can print exactly the
// results the operation's script entry asked for.
type collectorResult struct {
	observer      delta.Observer
	deltaSink     *delta.Sink
	returningSink *delta.Sink
	genKeysSink   *delta.Sink
}

// buildCollector wires the collectors one script operation requested
// (data-change-delta-table, RETURNING, generated-keys) into a single
// Composite, then wraps it in LastIdentity exactly once if eligible
// (§4.1), the same composition every delta factory performs.
func buildCollector(op operation, d *execute.Descriptor, ses *session.Session,
	eng execute.ExpressionEngine) (*collectorResult, error) {

	res := &collectorResult{}
	var children []delta.Observer

	if op.DeltaOption != "" {
		var option delta.Option
		switch op.DeltaOption {
		case "old":
			option = delta.Old
		case "new":
			option = delta.New
		case "final":
			option = delta.Final
		default:
			return nil, fmt.Errorf("unknown delta option %q", op.DeltaOption)
		}
		res.deltaSink = delta.NewSink(d.Columns)
		children = append(children, delta.DataChangeDeltaTable{Option: option, Sink: res.deltaSink})
	}

	if len(op.Returning) > 0 {
		cols := make([]sql.Identifier, len(op.Returning))
		exprs := make([]sql.CExpr, len(op.Returning))
		for i, colIdx := range op.Returning {
			exprs[i] = colRefExpr{idx: colIdx}
			if colIdx >= 0 && colIdx < len(d.Columns) {
				cols[i] = d.Columns[colIdx]
			}
		}
		res.returningSink = delta.NewSink(cols)
		children = append(children, delta.Returning{Exprs: exprs, Sink: res.returningSink})
	}

	if op.GeneratedKeysAll || len(op.GeneratedKeys) > 0 {
		req := execute.GeneratedKeysRequest{All: op.GeneratedKeysAll}
		if !op.GeneratedKeysAll {
			req.Indexes = make([]int, len(op.GeneratedKeys))
			for i, colIdx := range op.GeneratedKeys {
				req.Indexes[i] = colIdx + 1 // ResolveGeneratedKeys expects 1-based
			}
		}
		idxs, err := execute.ResolveGeneratedKeys(d, eng, ses.Mode, req)
		if err != nil {
			return nil, err
		}
		if len(idxs) > 0 {
			cols := make([]sql.Identifier, len(idxs))
			for i, colIdx := range idxs {
				cols[i] = d.Columns[colIdx]
			}
			res.genKeysSink = delta.NewSink(cols)
			children = append(children, delta.GeneratedKeys{Indexes: idxs, Sink: res.genKeysSink})
		}
	}

	var inner delta.Observer
	switch len(children) {
	case 0:
		inner = delta.Noop{}
	case 1:
		inner = children[0]
	default:
		inner = delta.Composite(children)
	}

	eligible := ses.Mode.TakeInsertedIdentity && d.HasIdentity()
	res.observer = delta.WithLastIdentity(eligible, ses, d.IdentityColumn, inner)
	return res, nil
}

// colRefExpr is a RETURNING expression that reports one column of the row
// currently being reported, unevaluated (the script format has no
// expression syntax of its own — §1 puts the expression engine/optimizer
// out of scope, so this CLI's "expressions" are limited to column
// references, comparisons, and a literal/copy/increment SET form).
type colRefExpr struct{ idx int }

func (c colRefExpr) String() string { return fmt.Sprintf("col[%d]", c.idx) }

func (c colRefExpr) Eval(ctx context.Context, ectx sql.EvalContext) (sql.Value, error) {
	return ectx.EvalRef(c.idx), nil
}

// compareExpr is the script format's WHERE clause: one column compared
// against a literal value.
type compareExpr struct {
	column int
	op     string
	value  sql.Value
}

func (c compareExpr) String() string {
	return fmt.Sprintf("col[%d] %s %v", c.column, c.op, c.value)
}

func (c compareExpr) Eval(ctx context.Context, ectx sql.EvalContext) (sql.Value, error) {
	cv := ectx.EvalRef(c.column)
	if cv == nil {
		return sql.BoolValue(false), nil
	}
	cmp, err := cv.Compare(c.value)
	if err != nil {
		return nil, err
	}
	switch c.op {
	case "eq":
		return sql.BoolValue(cmp == 0), nil
	case "ne":
		return sql.BoolValue(cmp != 0), nil
	case "lt":
		return sql.BoolValue(cmp < 0), nil
	case "le":
		return sql.BoolValue(cmp <= 0), nil
	case "gt":
		return sql.BoolValue(cmp > 0), nil
	case "ge":
		return sql.BoolValue(cmp >= 0), nil
	default:
		return nil, fmt.Errorf("unknown where op %q", c.op)
	}
}

// setExpr is the script format's SET clause right-hand side: a literal, a
// copy of another column, or that column incremented by a literal delta
// (enough to express spec.md §8 scenario 2, "SET b=b+1", without a real
// expression engine).
type setExpr struct {
	op     string
	column int
	value  sql.Value
}

func (s setExpr) String() string { return fmt.Sprintf("%s(col[%d], %v)", s.op, s.column, s.value) }

func (s setExpr) Eval(ctx context.Context, ectx sql.EvalContext) (sql.Value, error) {
	switch s.op {
	case "literal":
		return s.value, nil
	case "copy":
		return ectx.EvalRef(s.column), nil
	case "incr":
		cur := ectx.EvalRef(s.column)
		return addValues(cur, s.value)
	default:
		return nil, fmt.Errorf("unknown set op %q", s.op)
	}
}

func addValues(a, b sql.Value) (sql.Value, error) {
	switch av := a.(type) {
	case sql.Int64Value:
		switch bv := b.(type) {
		case sql.Int64Value:
			return av + bv, nil
		case sql.Float64Value:
			return sql.Float64Value(av) + bv, nil
		}
	case sql.Float64Value:
		switch bv := b.(type) {
		case sql.Int64Value:
			return av + sql.Float64Value(bv), nil
		case sql.Float64Value:
			return av + bv, nil
		}
	}
	return nil, fmt.Errorf("cannot add %v and %v", a, b)
}

// seqGenerator is a standalone identity sequence for the run CLI; real
// sequence allocation is an external collaborator (§1), so this is only a
// stand-in that counts up from the largest identity value already seeded.
type seqGenerator struct{ next int64 }

func (g *seqGenerator) Next(ctx context.Context) (sql.Value, error) {
	g.next++
	return sql.Int64Value(g.next), nil
}

// --- script parsing ---------------------------------------------------

type column struct {
	Name string
	Type string
}

type operation struct {
	Kind string

	Rows     [][]interface{} // insert
	HasWhere bool            // delete/update
	Where    struct {
		Column int
		Op     string
		Value  interface{}
	}
	HasFetch bool
	Fetch    int64

	SetColumn int // update
	SetOp     string
	SetValue  interface{}
	SetSource int

	DeltaOption      string
	Returning        []int
	GeneratedKeysAll bool
	GeneratedKeys    []int
}

func (op operation) predicate() (sql.CExpr, error) {
	if !op.HasWhere {
		return nil, nil
	}
	v, err := rawToValue(op.Where.Value)
	if err != nil {
		return nil, err
	}
	return compareExpr{column: op.Where.Column, op: op.Where.Op, value: v}, nil
}

func (op operation) assignments() ([]execute.Assignment, error) {
	v, err := rawToValue(op.SetValue)
	if err != nil {
		return nil, err
	}
	source := op.SetSource
	if op.SetOp == "incr" {
		source = op.SetColumn
	}
	return []execute.Assignment{
		{Column: op.SetColumn, Expr: setExpr{op: op.SetOp, column: source, value: v}},
	}, nil
}

func (op operation) fetchClause() execute.FetchClause {
	if !op.HasFetch {
		return execute.FetchClause{}
	}
	return execute.FetchClause{Fetch: sql.Int64Value(op.Fetch), HasFetch: true}
}

func (op operation) insertRows(d *execute.Descriptor) ([][]sql.Value, error) {
	rows := make([][]sql.Value, len(op.Rows))
	for i, raw := range op.Rows {
		row, err := convertRow(d, raw)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// convertRow converts a script row (one value per column, or one fewer
// than the column count when the table has an identity column left for
// prepareRow to fill in) into typed sql.Values.
func convertRow(d *execute.Descriptor, raw []interface{}) ([]sql.Value, error) {
	row := make([]sql.Value, len(d.Types))
	skipIdentity := d.HasIdentity() && len(raw) == len(d.Types)-1

	ri := 0
	for i := range row {
		if skipIdentity && i == d.IdentityColumn {
			continue
		}
		if ri >= len(raw) {
			return nil, fmt.Errorf("row has %d values, table %s has %d columns", len(raw),
				d.Name, len(d.Types))
		}
		v, err := rawToValue(raw[ri])
		ri++
		if err != nil {
			return nil, err
		}
		if v == nil {
			row[i] = nil
			continue
		}
		cv, err := d.Types[i].ConvertValue(d.Columns[i], v)
		if err != nil {
			return nil, err
		}
		row[i] = cv
	}
	return row, nil
}

func rawToValue(raw interface{}) (sql.Value, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return sql.BoolValue(v), nil
	case int:
		return sql.Int64Value(int64(v)), nil
	case int64:
		return sql.Int64Value(v), nil
	case float64:
		if v == math.Trunc(v) {
			return sql.Int64Value(int64(v)), nil
		}
		return sql.Float64Value(v), nil
	case string:
		return sql.StringValue(v), nil
	default:
		return nil, fmt.Errorf("unsupported literal %v (%T)", raw, raw)
	}
}

func columnType(name string) sql.ColumnType {
	switch name {
	case "string":
		return sql.StringColType
	case "bool":
		return sql.BoolColType
	case "float64":
		return sql.ColumnType{Type: sql.FloatType, Size: 8, NotNull: true}
	default:
		return sql.Int64ColType
	}
}

type script struct {
	Table      string
	Columns    []column
	Identity   int
	Seed       [][]interface{}
	Operations []operation
}

func (sc *script) openTable() (*execute.Descriptor, func(), error) {
	cols := make([]sql.Identifier, len(sc.Columns))
	types := make([]sql.ColumnType, len(sc.Columns))
	for i, c := range sc.Columns {
		cols[i] = sql.ID(c.Name)
		types[i] = columnType(c.Type)
	}
	tn := sql.TableName{Table: sql.ID(sc.Table)}

	var tbl rowstore.Table
	var closeStore func()
	switch storeKind {
	case "bolt":
		st, err := boltstore.Open(dataFile)
		if err != nil {
			return nil, nil, err
		}
		if err := st.CreateTable(tn, cols, types); err != nil {
			return nil, nil, err
		}
		t, err := st.OpenTable(context.Background(), st.Begin(1), tn)
		if err != nil {
			return nil, nil, err
		}
		tbl = t
		closeStore = func() { st.Close() }
	case "btree", "":
		st := btreestore.New()
		st.CreateTable(tn, cols, types)
		t, err := st.OpenTable(context.Background(), st.Begin(1), tn)
		if err != nil {
			return nil, nil, err
		}
		tbl = t
		closeStore = func() {}
	default:
		return nil, nil, fmt.Errorf("store %q: want btree or bolt", storeKind)
	}

	for _, raw := range sc.Seed {
		row := make([]sql.Value, len(types))
		for i := range row {
			if i >= len(raw) {
				continue
			}
			v, err := rawToValue(raw[i])
			if err != nil {
				return nil, nil, err
			}
			if v == nil {
				continue
			}
			cv, err := types[i].ConvertValue(cols[i], v)
			if err != nil {
				return nil, nil, err
			}
			row[i] = cv
		}
		if _, err := tbl.AddRow(context.Background(), row); err != nil {
			return nil, nil, err
		}
	}

	d := execute.NewDescriptor(tn, tbl)
	d.IdentityColumn = sc.Identity
	return d, closeStore, nil
}

func (sc *script) newIdentityGenerator(d *execute.Descriptor) *seqGenerator {
	var max int64
	for _, raw := range sc.Seed {
		if d.IdentityColumn >= len(raw) {
			continue
		}
		v, err := rawToValue(raw[d.IdentityColumn])
		if err != nil {
			continue
		}
		if iv, ok := v.(sql.Int64Value); ok && int64(iv) > max {
			max = int64(iv)
		}
	}
	return &seqGenerator{next: max}
}

// parseScript decodes script text (HCL) into a *script. The shape is
// deliberately flat (unlabeled repeated blocks rather than nested object
// literals) because that is what hashicorp/hcl's v1 decoder into a
// generic map reliably round-trips, the same style cmd's own former
// "accounts" config block used.
func parseScript(b []byte) (*script, error) {
	var raw map[string]interface{}
	if err := hcl.Decode(&raw, string(b)); err != nil {
		return nil, err
	}

	sc := &script{Identity: -1}
	sc.Table = stringField(raw, "table", "")
	if sc.Table == "" {
		return nil, fmt.Errorf("script: \"table\" is required")
	}
	sc.Identity = intField(raw, "identity", -1)

	for _, m := range blocksOf(raw, "column") {
		sc.Columns = append(sc.Columns, column{
			Name: stringField(m, "name", ""),
			Type: stringField(m, "type", "int64"),
		})
	}
	if len(sc.Columns) == 0 {
		return nil, fmt.Errorf("script: at least one \"column\" block is required")
	}

	for _, m := range blocksOf(raw, "seed") {
		sc.Seed = append(sc.Seed, rawSlice(m, "values"))
	}

	for _, m := range blocksOf(raw, "operation") {
		op := operation{
			Kind:             stringField(m, "kind", ""),
			DeltaOption:      stringField(m, "delta", ""),
			GeneratedKeysAll: boolField(m, "generated_keys_all", false),
		}
		if values := rawSlice(m, "values"); len(values) > 0 {
			op.Rows = append(op.Rows, values)
		}
		for _, rm := range blocksOf(m, "row") {
			op.Rows = append(op.Rows, rawSlice(rm, "values"))
		}

		if _, ok := m["where_column"]; ok {
			op.HasWhere = true
			op.Where.Column = intField(m, "where_column", 0)
			op.Where.Op = stringField(m, "where_op", "eq")
			op.Where.Value = m["where_value"]
		}
		if _, ok := m["fetch"]; ok {
			op.HasFetch = true
			op.Fetch = int64(intField(m, "fetch", 0))
		}

		op.SetColumn = intField(m, "set_column", 0)
		op.SetOp = stringField(m, "set_op", "literal")
		op.SetValue = m["set_value"]
		op.SetSource = intField(m, "set_source", op.SetColumn)

		for _, v := range rawSlice(m, "returning") {
			op.Returning = append(op.Returning, intField(map[string]interface{}{"v": v}, "v", 0))
		}
		for _, v := range rawSlice(m, "generated_keys") {
			op.GeneratedKeys = append(op.GeneratedKeys,
				intField(map[string]interface{}{"v": v}, "v", 0))
		}

		if op.Kind == "" {
			return nil, fmt.Errorf("script: an \"operation\" block is missing \"kind\"")
		}
		sc.Operations = append(sc.Operations, op)
	}

	return sc, nil
}

// blocksOf normalizes the handful of shapes hashicorp/hcl's generic-map
// decoder produces for a repeated block name: a single map, a slice of
// maps, or (for ambiguous nesting) a slice of interface{} wrapping maps.
func blocksOf(raw map[string]interface{}, key string) []map[string]interface{} {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []map[string]interface{}:
		return vv
	case map[string]interface{}:
		return []map[string]interface{}{vv}
	case []interface{}:
		var out []map[string]interface{}
		for _, e := range vv {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringField(m map[string]interface{}, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func intField(m map[string]interface{}, key string, def int) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

func boolField(m map[string]interface{}, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func rawSlice(m map[string]interface{}, key string) []interface{} {
	v, ok := m[key]
	if !ok {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}
