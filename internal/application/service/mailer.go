package service

import "context"

type Message struct {
	To      []string
	Subject string
	Body    string
	// Vars are per-recipient substitution variables, keyed by address.
	Vars map[string]map[string]string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
