package broker

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/quernio/quern/internal/queue"
)

// messageFilter wraps a compiled CEL program evaluated against peeked
// messages. When the expression is empty the filter is disabled and matches
// everything.
type messageFilter struct {
	prog    cel.Program
	enabled bool
}

func newMessageFilter(expr string) (messageFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return messageFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("priority", cel.IntType),
		cel.Variable("receive_count", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("body_text", cel.StringType),
		// Parsed JSON body (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("enqueued_at_ms", cel.IntType),
		cel.Variable("available_at_ms", cel.IntType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return messageFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return messageFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return messageFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return messageFilter{}, err
	}
	return messageFilter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against a message. A disabled filter
// matches everything; evaluation errors exclude the message.
func (f messageFilter) Match(m *queue.Message) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(m.Body, &jsonObj)
	attrs := m.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":              m.ID,
		"sequence":        int64(m.EnqueueSequence),
		"priority":        int64(m.Priority),
		"receive_count":   int64(m.ReceiveCount),
		"status":          string(m.Status),
		"size":            int64(len(m.Body)),
		"body_text":       string(m.Body),
		"json":            jsonObj,
		"attributes":      attrs,
		"enqueued_at_ms":  m.EnqueuedAt,
		"available_at_ms": m.AvailableAt,
		"now_ms":          time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
