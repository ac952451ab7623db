package nerdgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/source"
	"go.uber.org/zap"
)

// BatchOptions tunes the queue flush triggers.
type BatchOptions struct {
	BatchSize int
	Window    time.Duration
	Logger    *zap.Logger
}

const (
	defaultBatchSize   = 50
	defaultBatchWindow = 100 * time.Millisecond
)

type batchResult struct {
	data map[string]any
	err  error
}

type pendingOp struct {
	req    Request
	result chan batchResult
}

// Batcher coalesces queries queued within a short window into one combined
// GraphQL document. Sub-documents are merged structurally: each operation's
// root fields are aliased with an opN_ prefix and its variables renamed to
// match, so independent documents cannot collide. Results are split back to
// each waiter; a flush-level failure fails every waiter in that flush.
type Batcher struct {
	client *Client
	size   int
	window time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	queue []*pendingOp
	timer *time.Timer
}

// NewBatcher creates a batcher on top of a client. Flushes go through the
// client, so they are rate limited and retried like any other call.
func NewBatcher(client *Client, opts BatchOptions) *Batcher {
	size := opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	window := opts.Window
	if window <= 0 {
		window = defaultBatchWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{client: client, size: size, window: window, logger: logger}
}

// Queue adds a request to the pending batch and blocks until the batch
// holding it is flushed. The returned map holds the caller's own top-level
// fields under their original names.
func (b *Batcher) Queue(ctx context.Context, req Request) (map[string]any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := parseSingleOperation(req.Query); err != nil {
		return nil, err
	}

	op := &pendingOp{req: req, result: make(chan batchResult, 1)}

	b.mu.Lock()
	b.queue = append(b.queue, op)
	var flushNow []*pendingOp
	if len(b.queue) >= b.size {
		flushNow = b.takeLocked()
	} else if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.flushPending)
	}
	b.mu.Unlock()

	if flushNow != nil {
		b.flush(flushNow)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-op.result:
		return result.data, result.err
	}
}

// Flush forces any queued operations out immediately.
func (b *Batcher) Flush() {
	b.flushPending()
}

func (b *Batcher) flushPending() {
	b.mu.Lock()
	ops := b.takeLocked()
	b.mu.Unlock()
	if len(ops) > 0 {
		b.flush(ops)
	}
}

// takeLocked drains the queue and clears the window timer. Caller holds
// the lock.
func (b *Batcher) takeLocked() []*pendingOp {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	ops := b.queue
	b.queue = nil
	return ops
}

func (b *Batcher) flush(ops []*pendingOp) {
	requests := make([]Request, len(ops))
	for i, op := range ops {
		requests[i] = op.req
	}

	combined, err := CombineRequests(requests)
	if err != nil {
		b.fail(ops, err)
		return
	}

	b.logger.Debug("flushing batched queries", zap.Int("count", len(ops)))

	resp, err := b.client.Send(context.Background(), combined)
	if err != nil {
		b.fail(ops, err)
		return
	}

	var data map[string]json.RawMessage
	if err := resp.DecodeData(&data); err != nil {
		b.fail(ops, err)
		return
	}

	// A single queued request went out unaliased, so its response carries
	// the original field names rather than opN_ prefixes.
	if len(ops) == 1 {
		result, err := decodeRawFields(data)
		ops[0].result <- batchResult{data: result, err: err}
		return
	}

	for i, op := range ops {
		result, err := extractOpData(data, i)
		op.result <- batchResult{data: result, err: err}
	}
}

func decodeRawFields(data map[string]json.RawMessage) (map[string]any, error) {
	result := make(map[string]any, len(data))
	for key, raw := range data {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode batched result %s: %w", key, err)
		}
		result[key] = decoded
	}
	return result, nil
}

func (b *Batcher) fail(ops []*pendingOp, err error) {
	for _, op := range ops {
		op.result <- batchResult{err: err}
	}
}

// CombineRequests merges independent single-operation documents into one
// document with a synthetic operation, aliasing each request's root fields
// as opN_<field> and renaming its variables to opN_<name>.
func CombineRequests(requests []Request) (Request, error) {
	if len(requests) == 0 {
		return Request{}, &ValidationError{Message: "no requests to combine"}
	}
	if len(requests) == 1 {
		return requests[0], nil
	}

	opType := ""
	var selections []ast.Selection
	var varDefs []*ast.VariableDefinition
	combinedVars := make(map[string]any)

	for i, req := range requests {
		op, err := parseSingleOperation(req.Query)
		if err != nil {
			return Request{}, err
		}

		if opType == "" {
			opType = op.Operation
		} else if op.Operation != opType {
			return Request{}, &ValidationError{Message: "cannot mix query and mutation operations in one batch"}
		}

		prefix := fmt.Sprintf("op%d_", i)

		rename := make(map[string]string, len(op.VariableDefinitions))
		for _, varDef := range op.VariableDefinitions {
			oldName := varDef.Variable.Name.Value
			rename[oldName] = prefix + oldName
		}

		for _, varDef := range op.VariableDefinitions {
			oldName := varDef.Variable.Name.Value
			varDef.Variable.Name.Value = rename[oldName]
			varDefs = append(varDefs, varDef)
			if value, ok := req.Variables[oldName]; ok {
				combinedVars[rename[oldName]] = value
			}
		}

		rewriteSelections(op.SelectionSet, rename)

		for _, selection := range op.SelectionSet.Selections {
			field, ok := selection.(*ast.Field)
			if !ok {
				return Request{}, &ValidationError{Message: "batched operations must select plain fields at the root"}
			}
			name := field.Name.Value
			if field.Alias != nil {
				name = field.Alias.Value
			}
			field.Alias = ast.NewName(&ast.Name{Value: prefix + name})
			selections = append(selections, field)
		}
	}

	combinedOp := ast.NewOperationDefinition(&ast.OperationDefinition{
		Operation:           opType,
		Name:                ast.NewName(&ast.Name{Value: "batch"}),
		VariableDefinitions: varDefs,
		SelectionSet:        ast.NewSelectionSet(&ast.SelectionSet{Selections: selections}),
	})
	doc := ast.NewDocument(&ast.Document{Definitions: []ast.Node{combinedOp}})

	printed, ok := printer.Print(doc).(string)
	if !ok {
		return Request{}, &ValidationError{Message: "failed to render combined batch document"}
	}

	if len(combinedVars) == 0 {
		combinedVars = nil
	}
	return Request{Query: printed, Variables: combinedVars}, nil
}

// extractOpData collects the combined response's opN_ keys for one caller
// and restores the original field names.
func extractOpData(data map[string]json.RawMessage, index int) (map[string]any, error) {
	prefix := fmt.Sprintf("op%d_", index)
	result := make(map[string]any)
	for key, raw := range data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode batched result %s: %w", key, err)
		}
		result[strings.TrimPrefix(key, prefix)] = decoded
	}
	if len(result) == 0 {
		return nil, &GraphQLError{Errors: []GraphQLErrorDetail{{
			Message: fmt.Sprintf("combined response is missing results for batch position %d", index),
		}}}
	}
	return result, nil
}

// parseSingleOperation parses a document and enforces exactly one
// fragment-free operation definition.
func parseSingleOperation(query string) (*ast.OperationDefinition, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Message: "query is required"}
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query)}),
	})
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid graphql document: %v", err)}
	}

	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch node := def.(type) {
		case *ast.OperationDefinition:
			if op != nil {
				return nil, &ValidationError{Message: "batched documents must contain exactly one operation"}
			}
			op = node
		case *ast.FragmentDefinition:
			return nil, &ValidationError{Message: "fragment definitions are not supported in batched documents"}
		}
	}
	if op == nil || op.SelectionSet == nil {
		return nil, &ValidationError{Message: "document contains no operation"}
	}
	return op, nil
}

// rewriteSelections renames every variable usage beneath set according to
// the rename table.
func rewriteSelections(set *ast.SelectionSet, rename map[string]string) {
	if set == nil {
		return
	}
	for _, selection := range set.Selections {
		switch node := selection.(type) {
		case *ast.Field:
			for _, arg := range node.Arguments {
				rewriteValue(arg.Value, rename)
			}
			for _, directive := range node.Directives {
				for _, arg := range directive.Arguments {
					rewriteValue(arg.Value, rename)
				}
			}
			rewriteSelections(node.SelectionSet, rename)
		case *ast.InlineFragment:
			rewriteSelections(node.SelectionSet, rename)
		}
	}
}

func rewriteValue(value ast.Value, rename map[string]string) {
	switch node := value.(type) {
	case *ast.Variable:
		if renamed, ok := rename[node.Name.Value]; ok {
			node.Name.Value = renamed
		}
	case *ast.ListValue:
		for _, item := range node.Values {
			rewriteValue(item, rename)
		}
	case *ast.ObjectValue:
		for _, field := range node.Fields {
			rewriteValue(field.Value, rename)
		}
	}
}
