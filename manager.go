package dcaauth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/opengovern/dca-auth-go/apierr"
	"github.com/opengovern/dca-auth-go/emitter"
)

// manager is the shared core of the resource managers. Each manager owns an
// emitter for its namespaced events; the Client forwards all of them.
type manager struct {
	*emitter.Emitter

	exec      *Executor
	namespace string
	family    string
	logger    *slog.Logger
}

func newManager(exec *Executor, namespace, family string, logger *slog.Logger) manager {
	logger = logger.With(slog.String("component", namespace+"_manager"))
	return manager{
		Emitter:   emitter.New(emitter.WithLogger(logger)),
		exec:      exec,
		namespace: namespace,
		family:    family,
		logger:    logger,
	}
}

// emit publishes "<namespace>.<action>".
func (m *manager) emit(action string, payload any) {
	m.Emit(m.namespace+"."+action, payload)
}

// call executes a request and decodes a successful body into out.
func (m *manager) call(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	if opts.Family == "" {
		opts.Family = m.family
	}
	resp, err := m.exec.Execute(ctx, method, path, opts)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// send validates body, then executes it as the request body.
func (m *manager) send(ctx context.Context, method, path string, body, out any) error {
	if err := validateRequest(body); err != nil {
		return err
	}
	return m.call(ctx, method, path, RequestOptions{Body: body}, out)
}

func (m *manager) list(ctx context.Context, path string, params SearchParams, out any) error {
	if err := validateRequest(params); err != nil {
		return err
	}
	return m.call(ctx, "GET", path, RequestOptions{Query: params.Values()}, out)
}

// resourcePath joins escaped id segments onto base.
func resourcePath(base string, segments ...string) (string, error) {
	var b strings.Builder
	b.WriteString(base)
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return "", apierr.NewValidation("Validation failed", map[string][]string{"id": {"is required"}})
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String(), nil
}
