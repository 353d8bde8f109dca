// Package validation holds the JSON schemas guarding mutating request bodies.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

const emotionRequestSchema = `{
	"type": "object",
	"required": ["emotion"],
	"properties": {
		"emotion": {"type": "string", "minLength": 1, "maxLength": 500},
		"content_type": {"type": "string", "enum": ["movie", "tv", "all"]},
		"page": {"type": "integer", "minimum": 1, "maximum": 5},
		"page_size": {"type": "integer", "minimum": 1, "maximum": 45}
	},
	"additionalProperties": true
}`

const hybridRequestSchema = `{
	"type": "object",
	"required": ["emotion_text"],
	"properties": {
		"emotion_text": {"type": "string", "minLength": 1, "maxLength": 500},
		"content_type": {"type": "string", "enum": ["movie", "tv"]}
	},
	"additionalProperties": true
}`

const roomCreateSchema = `{
	"type": "object",
	"required": ["content_type", "creator_session_id"],
	"properties": {
		"content_type": {"type": "string", "enum": ["movie", "tv", "mixed"]},
		"max_participants": {"type": "integer", "minimum": 2, "maximum": 5},
		"duration_minutes": {"type": "integer", "minimum": 1, "maximum": 30},
		"creator_session_id": {"type": "string", "minLength": 1, "maxLength": 128}
	},
	"additionalProperties": false
}`

const ratingSchema = `{
	"type": "object",
	"required": ["tmdb_id", "content_type", "rating"],
	"properties": {
		"tmdb_id": {"type": "integer", "minimum": 1},
		"content_type": {"type": "string", "enum": ["movie", "tv"]},
		"rating": {"type": "integer", "minimum": 1, "maximum": 10},
		"comment": {"type": "string", "maxLength": 2000}
	},
	"additionalProperties": false
}`

const watchlistSchema = `{
	"type": "object",
	"required": ["tmdb_id", "content_type"],
	"properties": {
		"tmdb_id": {"type": "integer", "minimum": 1},
		"content_type": {"type": "string", "enum": ["movie", "tv"]},
		"status": {"type": "string", "enum": ["to_watch", "watching", "completed"]},
		"from_recommendation": {"type": "boolean"},
		"recommendation_type": {"type": "string"},
		"recommendation_score": {"type": "number"}
	},
	"additionalProperties": false
}`

// SchemaValidator compiles the request schemas once at startup.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	raw := map[string]string{
		"emotion-request": emotionRequestSchema,
		"hybrid-request":  hybridRequestSchema,
		"room-create":     roomCreateSchema,
		"rating":          ratingSchema,
		"watchlist":       watchlistSchema,
	}

	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema, len(raw))}
	for name, source := range raw {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return sv, nil
}

func (sv *SchemaValidator) ValidateEmotionRequest(data any) *ValidationResult {
	return sv.validate("emotion-request", data)
}

func (sv *SchemaValidator) ValidateHybridRequest(data any) *ValidationResult {
	return sv.validate("hybrid-request", data)
}

func (sv *SchemaValidator) ValidateRoomCreate(data any) *ValidationResult {
	return sv.validate("room-create", data)
}

func (sv *SchemaValidator) ValidateRating(data any) *ValidationResult {
	return sv.validate("rating", data)
}

func (sv *SchemaValidator) ValidateWatchlist(data any) *ValidationResult {
	return sv.validate("watchlist", data)
}

func (sv *SchemaValidator) validate(schemaName string, data any) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return &ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Field:   "data",
					Message: fmt.Sprintf("Failed to marshal data to JSON: %v", err),
					Code:    "JSON_MARSHAL_ERROR",
				}},
			}
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "validation",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}
	if !result.Valid() {
		for _, err := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   err.Field(),
				Message: err.Description(),
				Code:    "VALIDATION_ERROR",
			})
		}
	}
	return validationResult
}

// ValidationResult is the outcome of validating one request body.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// ToAPIError converts validation errors into the API error envelope.
func (vr *ValidationResult) ToAPIError() map[string]any {
	if vr.Valid {
		return nil
	}

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	return map[string]any{
		"error": map[string]any{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": map[string]any{
				"validationErrors": vr.Errors,
				"fieldErrors":      fieldErrors,
			},
			"requestId": uuid.New().String(),
		},
	}
}
