package command_test

import (
	"fmt"
	"testing"

	"github.com/storepilot/storepilot/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Success(t *testing.T) {
	cmd := &command.Command{
		Type:   command.TypeProduct,
		Action: "create",
		Parameters: map[string]any{
			"title": "Wool socks",
			"price": 12.5,
		},
	}

	require.NoError(t, command.Validate(cmd))
	assert.True(t, command.IsValid(cmd))
}

func TestValidate_UnknownType(t *testing.T) {
	cmd := &command.Command{
		Type:       command.Type("inventory"),
		Action:     "create",
		Parameters: map[string]any{},
	}

	err := command.Validate(cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, command.ErrInvalidCommand)
}

func TestValidate_UnrecognizedAction(t *testing.T) {
	cmd := &command.Command{
		Type:       command.TypeOrder,
		Action:     "refund",
		Parameters: map[string]any{"orderId": "123"},
	}

	assert.ErrorIs(t, command.Validate(cmd), command.ErrInvalidCommand)
}

// Every (type, action) pair must fail validation when any single
// required parameter is missing.
func TestValidate_MissingRequiredParameter(t *testing.T) {
	for _, typ := range command.Types() {
		for _, action := range command.Actions(typ) {
			required, ok := command.RequiredParams(typ, action)
			require.True(t, ok)

			for _, omitted := range required {
				t.Run(fmt.Sprintf("%s.%s/missing_%s", typ, action, omitted), func(t *testing.T) {
					params := make(map[string]any)
					for _, name := range required {
						if name != omitted {
							params[name] = "value"
						}
					}

					cmd := &command.Command{Type: typ, Action: action, Parameters: params}
					err := command.Validate(cmd)
					require.Error(t, err)
					assert.ErrorIs(t, err, command.ErrInvalidCommand)
					assert.Contains(t, err.Error(), omitted)
				})
			}
		}
	}
}

func TestValidate_NilRequiredParameter(t *testing.T) {
	cmd := &command.Command{
		Type:   command.TypeCustomer,
		Action: "create",
		Parameters: map[string]any{
			"email": nil,
		},
	}

	assert.ErrorIs(t, command.Validate(cmd), command.ErrInvalidCommand)
}

func TestValidateStrict_FieldChecks(t *testing.T) {
	tests := []struct {
		name    string
		cmd     *command.Command
		wantErr string
	}{
		{
			name: "negative price rejected",
			cmd: &command.Command{
				Type:   command.TypeProduct,
				Action: "create",
				Parameters: map[string]any{
					"title": "Socks",
					"price": -3.0,
				},
			},
			wantErr: "price",
		},
		{
			name: "malformed email rejected",
			cmd: &command.Command{
				Type:   command.TypeCustomer,
				Action: "create",
				Parameters: map[string]any{
					"email": "not-an-email",
				},
			},
			wantErr: "email",
		},
		{
			name: "unknown code type rejected",
			cmd: &command.Command{
				Type:   command.TypeCode,
				Action: "generate",
				Parameters: map[string]any{
					"type":         "python",
					"requirements": "a discount banner",
				},
			},
			wantErr: "type",
		},
		{
			name: "invalid tier rejected",
			cmd: &command.Command{
				Type:   command.TypeTheme,
				Action: "publish",
				Parameters: map[string]any{
					"themeId": "t1",
				},
				Tier: 5,
			},
			wantErr: "tier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := command.ValidateStrict(tt.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, command.ErrInvalidCommand)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStrict_PassesCoarseAndFieldLayers(t *testing.T) {
	cmd := &command.Command{
		Type:   command.TypeOrder,
		Action: "fulfill",
		Parameters: map[string]any{
			"orderId":        "450789469",
			"trackingNumber": "1Z999",
			"notifyCustomer": true,
		},
		Tier: 2,
	}

	require.NoError(t, command.ValidateStrict(cmd))
}

func TestValidateStrict_UnknownParameterPassesFieldLayer(t *testing.T) {
	cmd := &command.Command{
		Type:   command.TypeProduct,
		Action: "update",
		Parameters: map[string]any{
			"productId": "88",
			"note":      42, // not in the field table; open mapping admits it
		},
	}

	require.NoError(t, command.ValidateStrict(cmd))
}
