package engine

import (
	"context"

	"github.com/arkaos/arka/internal/resource"
)

// deliverySubmit walks the reactive-control handshake. It touches no files;
// every route reference must resolve before the first event goes out.
func deliverySubmit(ctx context.Context, ac *ActionContext) (*Result, error) {
	routes := make(map[string]any, len(ac.Def.RouteNames))
	for _, name := range ac.Def.RouteNames {
		ref := ac.Def.Routes[name]
		if _, err := ac.Resolve(ref); err != nil {
			return nil, err
		}
		routes[name] = ref
	}
	ac.Scope = resource.BuildScope(resource.Lookup("ticket"), ac.Input)

	reason := orDefault(str(ac.Input, "reason"), "delivery requires owner confirmation")
	steps := []struct {
		name    string
		details map[string]any
	}{
		{"DELIVERY_RECEIVED", map[string]any{"summary": str(ac.Input, "summary")}},
		{"AGP_ACK_SENT", nil},
		{"CONTROL_EVALUATED", map[string]any{"verdict": "ok"}},
		{"MISSION_RETURN_ISSUED", map[string]any{"next_steps": []string{}}},
		{"OWNER_CONFIRMATION_REQUESTED", map[string]any{"reason": reason}},
	}
	for _, s := range steps {
		if _, err := ac.Emit(ctx, s.name, controlNamespace, s.details); err != nil {
			return nil, err
		}
	}

	outputs := map[string]any{"status": "processed", "routes": routes}
	return Finalize(ctx, ac, Outcome{Outputs: outputs, Validations: []string{"agp_flow:pass"}, Memory: true})
}
