package disclosure

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"selective-disclosure/shared"
)

func init() {
	// url: require scheme and host; the scheme itself is checked by NewSessionConfig
	gojsonschema.FormatCheckers.Add("url", urlFormatChecker{})
}

type urlFormatChecker struct{}

func (urlFormatChecker) IsFormat(input interface{}) bool {
	str, ok := input.(string)
	if !ok {
		return false
	}
	u, err := url.Parse(str)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

var directionPolicySchema = map[string]interface{}{
	"type":                 "object",
	"required":             []interface{}{"mode", "keypaths"},
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"mode": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{string(Allowlist), string(Denylist)},
		},
		"keypaths": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string", "minLength": 1},
		},
	},
}

// sessionRequestSchema describes the JSON form of SessionRequest
var sessionRequestSchema = map[string]interface{}{
	"type":                 "object",
	"required":             []interface{}{"server_uri"},
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"server_uri":       map[string]interface{}{"type": "string", "format": "url"},
		"verifier_address": map[string]interface{}{"type": "string", "minLength": 1},
		"headers": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string", "pattern": "^[^:]+:.*$"},
		},
		"max_sent_data": map[string]interface{}{"type": "integer", "minimum": 1},
		"max_recv_data": map[string]interface{}{"type": "integer", "minimum": 1},
		"policy": map[string]interface{}{
			"type":                 "object",
			"required":             []interface{}{"sent", "received"},
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"sent":     directionPolicySchema,
				"received": directionPolicySchema,
			},
		},
	},
}

var (
	compiledSchema *gojsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

func sessionSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(sessionRequestSchema))
	})
	return compiledSchema, schemaErr
}

// DecodeSessionRequest validates a JSON session request against its schema and decodes it
func DecodeSessionRequest(data []byte) (SessionRequest, error) {
	schema, err := sessionSchema()
	if err != nil {
		return SessionRequest{}, fmt.Errorf("failed to compile session request schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return SessionRequest{}, invalidRequest("session request is not valid JSON", err)
	}
	if !result.Valid() {
		var b strings.Builder
		for _, e := range result.Errors() {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(e.String())
		}
		return SessionRequest{}, invalidRequest("session request validation failed: "+b.String(), nil)
	}

	var req SessionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return SessionRequest{}, invalidRequest("session request could not be decoded", err)
	}
	return req, nil
}

func invalidRequest(message string, cause error) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Stage:   StageConfigured,
		Reason:  shared.ReasonInvalidSessionRequest,
		Message: message,
		Cause:   cause,
	}
}
