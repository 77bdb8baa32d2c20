package shopify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/llm"
	"github.com/storepilot/storepilot/model"
)

// scriptPattern matches script blocks in generated theme code. Models
// occasionally emit them even when told not to; they never belong in
// liquid or css output.
var scriptPattern = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)

// Service dispatches validated commands to Admin API operations, one
// handler per command domain. Code generation goes through the
// completion client instead of the REST API.
type Service struct {
	client Client
	llm    llm.Completer
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a dispatch service over the given API client and
// completion client.
func NewService(client Client, completer llm.Completer, opts ...ServiceOption) *Service {
	s := &Service{
		client: client,
		llm:    completer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs one command against the Admin API and returns the
// operation details. Unknown types and actions are terminal errors.
func (s *Service) Execute(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	switch cmd.Type {
	case command.TypeProduct:
		return s.executeProduct(ctx, cmd)
	case command.TypeOrder:
		return s.executeOrder(ctx, cmd)
	case command.TypeCustomer:
		return s.executeCustomer(ctx, cmd)
	case command.TypeTheme:
		return s.executeTheme(ctx, cmd)
	case command.TypeCode:
		return s.executeCode(ctx, cmd)
	case command.TypeStore:
		return s.executeStore(ctx, cmd)
	default:
		return nil, fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

func (s *Service) executeProduct(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	switch cmd.Action {
	case "create":
		product := map[string]any{"title": cmd.Parameters["title"]}
		if desc, ok := cmd.Parameters["description"]; ok {
			product["body_html"] = desc
		}
		if price, ok := cmd.Parameters["price"]; ok {
			product["variants"] = []map[string]any{{"price": fmt.Sprintf("%v", price)}}
		}
		if tags, ok := cmd.Parameters["tags"]; ok {
			product["tags"] = tags
		}
		return s.client.Post(ctx, "/products.json", map[string]any{"product": product})

	case "update":
		id, err := idParam(cmd, "productId")
		if err != nil {
			return nil, err
		}
		product := map[string]any{"id": id}
		for _, field := range []string{"title", "description", "price", "tags", "status"} {
			if v, ok := cmd.Parameters[field]; ok {
				if field == "description" {
					product["body_html"] = v
				} else {
					product[field] = v
				}
			}
		}
		return s.client.Put(ctx, "/products/"+id+".json", map[string]any{"product": product})

	case "delete":
		id, err := idParam(cmd, "productId")
		if err != nil {
			return nil, err
		}
		return s.client.Delete(ctx, "/products/"+id+".json")

	case "bulk_update":
		return s.executeProductBulkUpdate(ctx, cmd)

	default:
		return nil, fmt.Errorf("unknown product action: %s", cmd.Action)
	}
}

func (s *Service) executeProductBulkUpdate(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	updates, ok := cmd.Parameters["updates"].([]any)
	if !ok {
		return nil, fmt.Errorf("validation failed: parameter \"updates\" must be a list")
	}

	var updated []any
	for i, raw := range updates {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("validation failed: update %d is not an object", i)
		}
		id, ok := asID(item["productId"])
		if !ok {
			return nil, fmt.Errorf("validation failed: update %d is missing productId", i)
		}

		product := map[string]any{"id": id}
		for k, v := range item {
			if k == "productId" {
				continue
			}
			product[k] = v
		}

		result, err := s.client.Put(ctx, "/products/"+id+".json", map[string]any{"product": product})
		if err != nil {
			return nil, fmt.Errorf("bulk update stopped at product %s: %w", id, err)
		}
		updated = append(updated, result["product"])
	}

	return map[string]any{"updated": updated, "count": len(updated)}, nil
}

func (s *Service) executeOrder(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	id, err := idParam(cmd, "orderId")
	if err != nil {
		return nil, err
	}

	switch cmd.Action {
	case "update":
		order := map[string]any{"id": id}
		for _, field := range []string{"note", "tags", "email", "status"} {
			if v, ok := cmd.Parameters[field]; ok {
				order[field] = v
			}
		}
		return s.client.Put(ctx, "/orders/"+id+".json", map[string]any{"order": order})

	case "fulfill":
		fulfillment := map[string]any{"notify_customer": true}
		if v, ok := cmd.Parameters["trackingNumber"]; ok {
			fulfillment["tracking_number"] = v
		}
		return s.client.Post(ctx, "/orders/"+id+"/fulfillments.json", map[string]any{"fulfillment": fulfillment})

	case "cancel":
		body := map[string]any{}
		if v, ok := cmd.Parameters["reason"]; ok {
			body["reason"] = v
		}
		return s.client.Post(ctx, "/orders/"+id+"/cancel.json", body)

	default:
		return nil, fmt.Errorf("unknown order action: %s", cmd.Action)
	}
}

func (s *Service) executeCustomer(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	switch cmd.Action {
	case "create":
		customer := map[string]any{"email": cmd.Parameters["email"]}
		for _, field := range []string{"firstName", "lastName", "phone", "tags"} {
			if v, ok := cmd.Parameters[field]; ok {
				customer[snakeField(field)] = v
			}
		}
		return s.client.Post(ctx, "/customers.json", map[string]any{"customer": customer})

	case "update":
		id, err := idParam(cmd, "customerId")
		if err != nil {
			return nil, err
		}
		customer := map[string]any{"id": id}
		for _, field := range []string{"email", "firstName", "lastName", "phone", "tags"} {
			if v, ok := cmd.Parameters[field]; ok {
				customer[snakeField(field)] = v
			}
		}
		return s.client.Put(ctx, "/customers/"+id+".json", map[string]any{"customer": customer})

	case "delete":
		id, err := idParam(cmd, "customerId")
		if err != nil {
			return nil, err
		}
		return s.client.Delete(ctx, "/customers/"+id+".json")

	default:
		return nil, fmt.Errorf("unknown customer action: %s", cmd.Action)
	}
}

func (s *Service) executeTheme(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	id, err := idParam(cmd, "themeId")
	if err != nil {
		return nil, err
	}

	switch cmd.Action {
	case "update":
		theme := map[string]any{"id": id}
		if v, ok := cmd.Parameters["name"]; ok {
			theme["name"] = v
		}
		return s.client.Put(ctx, "/themes/"+id+".json", map[string]any{"theme": theme})

	case "publish":
		return s.client.Put(ctx, "/themes/"+id+".json", map[string]any{
			"theme": map[string]any{"id": id, "role": "main"},
		})

	default:
		return nil, fmt.Errorf("unknown theme action: %s", cmd.Action)
	}
}

func (s *Service) executeCode(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	switch cmd.Action {
	case "generate":
		return s.generateCode(ctx, cmd)

	case "deploy":
		themeID, err := idParam(cmd, "themeId")
		if err != nil {
			return nil, err
		}
		assetKey, err := stringParam(cmd, "assetKey")
		if err != nil {
			return nil, err
		}
		code, err := stringParam(cmd, "code")
		if err != nil {
			return nil, err
		}
		return s.client.Put(ctx, "/themes/"+themeID+"/assets.json", map[string]any{
			"asset": map[string]any{"key": assetKey, "value": code},
		})

	default:
		return nil, fmt.Errorf("unknown code action: %s", cmd.Action)
	}
}

// generateCode produces theme code through the completion client.
// Script blocks are stripped from liquid and css output after
// generation.
func (s *Service) generateCode(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	codeType, err := stringParam(cmd, "type")
	if err != nil {
		return nil, err
	}
	requirements, err := stringParam(cmd, "requirements")
	if err != nil {
		return nil, err
	}

	tier := model.Tier(cmd.Tier)
	if !tier.IsValid() {
		tier = model.TierLaunch
	}

	temp := 0.3
	resp, err := s.llm.Complete(ctx, llm.Request{
		Tier:        tier,
		Temperature: &temp,
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(
				"You are a Shopify theme developer. Generate %s code only. Respond with the raw code, no markdown, no commentary.", codeType)},
			{Role: "user", Content: requirements},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("code generation: %w", err)
	}

	code := strings.TrimSpace(resp.Content)
	if code == "" {
		return nil, fmt.Errorf("code generation returned empty output")
	}
	if codeType != "javascript" {
		code = scriptPattern.ReplaceAllString(code, "")
	}

	return map[string]any{
		"code":  code,
		"type":  codeType,
		"model": resp.Model,
	}, nil
}

func (s *Service) executeStore(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	themeID, err := idParam(cmd, "themeId")
	if err != nil {
		return nil, err
	}

	switch cmd.Action {
	case "build":
		template, err := stringParam(cmd, "template")
		if err != nil {
			return nil, err
		}

		// Apply the template's layout asset, then any customizations
		// provided alongside it.
		result, err := s.client.Put(ctx, "/themes/"+themeID+"/assets.json", map[string]any{
			"asset": map[string]any{
				"key":   "templates/index.liquid",
				"value": template,
			},
		})
		if err != nil {
			return nil, err
		}

		if custom, ok := cmd.Parameters["customizations"].(map[string]any); ok {
			for key, value := range custom {
				if _, err := s.client.Put(ctx, "/themes/"+themeID+"/assets.json", map[string]any{
					"asset": map[string]any{"key": key, "value": value},
				}); err != nil {
					return nil, fmt.Errorf("apply customization %q: %w", key, err)
				}
			}
		}
		return result, nil

	case "configure":
		settings, ok := cmd.Parameters["settings"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("validation failed: parameter \"settings\" must be an object")
		}
		return s.client.Put(ctx, "/themes/"+themeID+"/assets.json", map[string]any{
			"asset": map[string]any{
				"key":   "config/settings_data.json",
				"value": settings,
			},
		})

	default:
		return nil, fmt.Errorf("unknown store action: %s", cmd.Action)
	}
}

// idParam extracts a resource identifier, accepting the string and
// numeric forms models produce.
func idParam(cmd *command.Command, name string) (string, error) {
	id, ok := asID(cmd.Parameters[name])
	if !ok {
		return "", fmt.Errorf("validation failed: parameter %q must be an identifier", name)
	}
	return id, nil
}

func asID(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		if value == "" {
			return "", false
		}
		return value, true
	case float64:
		return strconv.FormatInt(int64(value), 10), true
	case int:
		return strconv.Itoa(value), true
	case int64:
		return strconv.FormatInt(value, 10), true
	}
	return "", false
}

func stringParam(cmd *command.Command, name string) (string, error) {
	value, ok := cmd.Parameters[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("validation failed: parameter %q must be a non-empty string", name)
	}
	return value, nil
}

// snakeField converts the camelCase parameter names the parser emits
// to the snake_case fields the Admin API expects.
func snakeField(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'A' && ch <= 'Z' {
			b.WriteByte('_')
			b.WriteByte(ch - 'A' + 'a')
		} else {
			b.WriteByte(ch)
		}
	}
	return b.String()
}
