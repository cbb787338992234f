package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// QueryParams is the body of POST /api/v1/request.
type QueryParams struct {
	Prompt string `json:"prompt" validate:"required"`
	K      int    `json:"k" validate:"omitempty,min=1,max=100"`
}

// ConfigParams is the body of PATCH /api/v1/config. Zero fields are left unchanged.
type ConfigParams struct {
	TopK      int `json:"k" validate:"omitempty,min=1,max=100"`
	MaxTokens int `json:"max_tokens" validate:"omitempty,min=1,max=32768"`
}

// AddParams is the body of POST /api/v1/collection/documents.
type AddParams struct {
	Documents []string   `json:"documents" validate:"required,min=1"`
	Metadatas []Metadata `json:"metadatas"`
	IDs       []string   `json:"ids" validate:"omitempty,dive,required"`
}

// CollectionQueryParams is the body of POST /api/v1/collection/query.
type CollectionQueryParams struct {
	QueryTexts []string `json:"query_texts" validate:"required,min=1,dive,required"`
	NResults   int      `json:"n_results" validate:"omitempty,min=1,max=1000"`
	Where      Metadata `json:"where"`
}

// DeleteParams is the body of DELETE /api/v1/collection/documents.
type DeleteParams struct {
	IDs   []string `json:"ids" validate:"omitempty,dive,required"`
	Where Metadata `json:"where"`
}

// UpdateParams is the body of PATCH /api/v1/collection/documents.
type UpdateParams struct {
	IDs       []string   `json:"ids" validate:"required,min=1,dive,required"`
	Documents []string   `json:"documents"`
	Metadatas []Metadata `json:"metadatas"`
}

func validateStruct(v any) map[string]string {
	if err := validate.Struct(v); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *QueryParams) Validate() map[string]string           { return validateStruct(params) }
func (params *ConfigParams) Validate() map[string]string          { return validateStruct(params) }
func (params *AddParams) Validate() map[string]string             { return validateStruct(params) }
func (params *CollectionQueryParams) Validate() map[string]string { return validateStruct(params) }
func (params *DeleteParams) Validate() map[string]string          { return validateStruct(params) }
func (params *UpdateParams) Validate() map[string]string          { return validateStruct(params) }

type SearchResponse struct {
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type UploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}
