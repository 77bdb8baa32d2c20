package command

import (
	"fmt"
	"net/mail"
	"net/url"
)

// requiredParams maps (type, action) to the parameter names that must be
// present before dispatch. An action absent from its type's table is not
// a recognized action.
var requiredParams = map[Type]map[string][]string{
	TypeProduct: {
		"create":      {"title", "price"},
		"update":      {"productId"},
		"delete":      {"productId"},
		"bulk_update": {"updates"},
	},
	TypeOrder: {
		"update":  {"orderId"},
		"fulfill": {"orderId"},
		"cancel":  {"orderId"},
	},
	TypeCustomer: {
		"create": {"email"},
		"update": {"customerId"},
		"delete": {"customerId"},
	},
	TypeTheme: {
		"update":  {"themeId"},
		"publish": {"themeId"},
	},
	TypeCode: {
		"generate": {"type", "requirements"},
		"deploy":   {"themeId", "assetKey", "code"},
	},
	TypeStore: {
		"build":     {"themeId", "template"},
		"configure": {"themeId", "settings"},
	},
}

// Actions returns the recognized actions for a type in unspecified order.
func Actions(t Type) []string {
	table, ok := requiredParams[t]
	if !ok {
		return nil
	}
	actions := make([]string, 0, len(table))
	for action := range table {
		actions = append(actions, action)
	}
	return actions
}

// RequiredParams returns the required parameter names for (t, action),
// or false if the action is not recognized for that type.
func RequiredParams(t Type, action string) ([]string, bool) {
	table, ok := requiredParams[t]
	if !ok {
		return nil, false
	}
	params, ok := table[action]
	return params, ok
}

// fieldCheck validates a single parameter value. It is only invoked when
// the parameter is present; requiredness is handled separately.
type fieldCheck func(value any) error

// fieldChecks is the stricter per-field layer applied when decoding model
// output. It constrains value shapes beyond the coarse required-key
// check used before dispatch.
var fieldChecks = map[Type]map[string]fieldCheck{
	TypeProduct: {
		"title":          checkNonEmptyString,
		"description":    checkString,
		"price":          checkPositiveNumber,
		"compareAtPrice": checkPositiveNumber,
		"vendor":         checkString,
		"productType":    checkString,
		"tags":           checkStringSlice,
		"images":         checkURLSlice,
	},
	TypeOrder: {
		"orderId":         checkNonEmptyString,
		"status":          checkEnum("fulfilled", "cancelled", "pending"),
		"trackingNumber":  checkString,
		"trackingCompany": checkString,
		"notifyCustomer":  checkBool,
	},
	TypeCustomer: {
		"customerId": checkNonEmptyString,
		"email":      checkEmail,
		"firstName":  checkString,
		"lastName":   checkString,
		"phone":      checkString,
		"tags":       checkStringSlice,
	},
	TypeTheme: {
		"themeId": checkNonEmptyString,
	},
	TypeCode: {
		"type":         checkEnum("liquid", "javascript", "css"),
		"requirements": checkNonEmptyString,
		"themeId":      checkNonEmptyString,
		"assetKey":     checkNonEmptyString,
		"code":         checkNonEmptyString,
	},
	TypeStore: {
		"themeId":  checkNonEmptyString,
		"template": checkNonEmptyString,
	},
}

func checkString(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	return nil
}

func checkNonEmptyString(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func checkBool(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", v)
	}
	return nil
}

// checkPositiveNumber accepts float64 (the JSON decode shape) and int.
func checkPositiveNumber(v any) error {
	switch n := v.(type) {
	case float64:
		if n <= 0 {
			return fmt.Errorf("must be positive, got %v", n)
		}
	case int:
		if n <= 0 {
			return fmt.Errorf("must be positive, got %v", n)
		}
	default:
		return fmt.Errorf("expected number, got %T", v)
	}
	return nil
}

func checkStringSlice(v any) error {
	items, ok := v.([]any)
	if !ok {
		if _, ok := v.([]string); ok {
			return nil
		}
		return fmt.Errorf("expected array of strings, got %T", v)
	}
	for i, item := range items {
		if _, ok := item.(string); !ok {
			return fmt.Errorf("element %d: expected string, got %T", i, item)
		}
	}
	return nil
}

func checkURLSlice(v any) error {
	if err := checkStringSlice(v); err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	for i, item := range items {
		s := item.(string)
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("element %d: not a valid URL: %q", i, s)
		}
	}
	return nil
}

func checkEmail(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("not a valid email address: %q", s)
	}
	return nil
}

func checkEnum(allowed ...string) fieldCheck {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if !set[s] {
			return fmt.Errorf("%q is not one of %v", s, allowed)
		}
		return nil
	}
}
