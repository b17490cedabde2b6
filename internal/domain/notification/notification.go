package notification

import (
	"context"
	"errors"
)

type Type string

const (
	TypeSuccess      Type = "success"
	TypeInvalidInput Type = "invalid_input"
	TypeOtherError   Type = "other_error"
)

var ErrTemplateNotFound = errors.New("notification template not found")

type Template struct {
	Type    Type   `json:"notification_type"`
	Subject string `json:"email_subject"`
	Body    string `json:"text_body"`
}

type Repository interface {
	FindByType(ctx context.Context, t Type) (*Template, error)
	Upsert(ctx context.Context, t *Template) error
}
