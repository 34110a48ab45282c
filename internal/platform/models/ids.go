package models

import "github.com/google/uuid"

const (
	PrefixConnection = "conn_"
	PrefixJob        = "job_"
	PrefixEvent      = "evt_"
	PrefixProvider   = "prov_"
	PrefixAudit      = "audit_"
)

// NewID returns a random UUID with a type prefix, e.g. "job_3f0c...".
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
